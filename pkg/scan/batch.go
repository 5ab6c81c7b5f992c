package scan

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Batch is a contiguous block of selected rows with one array per projected
// column. Batches own their arrays; call Release when done.
type Batch struct {
	// Start is the first row of the batch in table coordinates
	Start  int64
	Length int64
	// Names and Columns follow the order of the scan's projection
	Names   []string
	Columns []arrow.Array
}

// End returns the row after the last row of the batch.
func (b *Batch) End() int64 { return b.Start + b.Length }

// Len returns the number of rows.
func (b *Batch) Len() int { return int(b.Length) }

// Column returns the array of the named column, or nil.
func (b *Batch) Column(name string) arrow.Array {
	for i, n := range b.Names {
		if n == name {
			return b.Columns[i]
		}
	}
	return nil
}

// Record assembles the batch into an arrow record. Run-encoded columns are
// run-end encoded in every batch, so all records of a scan share one schema.
// The caller releases the record.
func (b *Batch) Record() arrow.Record {
	fields := make([]arrow.Field, len(b.Columns))
	for i, col := range b.Columns {
		fields[i] = arrow.Field{Name: b.Names[i], Type: col.DataType(), Nullable: false}
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), b.Columns, b.Length)
}

// Release frees the column arrays.
func (b *Batch) Release() {
	for _, col := range b.Columns {
		if col != nil {
			col.Release()
		}
	}
	b.Columns = nil
}
