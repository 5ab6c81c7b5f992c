// Package runenc decodes run-encoded columns.
//
// A run-encoded column stores one value per run together with the row at
// which the run starts. Run i covers [runStarts[i], runStarts[i+1]) and the
// last run extends to the table's total row count. A Column is immutable once
// loaded, so lookups and batch emission need no locking.
package runenc

import (
	"context"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/errors"
	"github.com/ajitpratap0/runscan/pkg/store"
)

// Column is the run metadata of one run-encoded column.
type Column struct {
	name      string
	typ       columnar.Type
	runStarts []int64
	values    any
	totalRows int64
}

// Load validates run metadata and builds a Column. runStarts must start at
// row 0, be strictly increasing and stay below totalRows; values must hold one
// entry per run. A column of a table without rows may have no runs.
func Load(name string, runStarts []int64, values any, totalRows int64) (*Column, error) {
	typ, ok := columnar.TypeOf(values)
	if !ok {
		return nil, invalid(name, "unsupported value type %T", values)
	}
	if n := columnar.Len(values); n != len(runStarts) {
		return nil, invalid(name, "%d run starts but %d values", len(runStarts), n)
	}
	if totalRows < 0 {
		return nil, invalid(name, "negative row count %d", totalRows)
	}
	if len(runStarts) == 0 {
		if totalRows > 0 {
			return nil, invalid(name, "no runs for %d rows", totalRows)
		}
	} else if runStarts[0] != 0 {
		return nil, invalid(name, "first run starts at row %d, not 0", runStarts[0])
	}
	for i, start := range runStarts {
		if start >= totalRows {
			return nil, invalid(name, "run %d starts at row %d beyond %d rows", i, start, totalRows)
		}
		if i > 0 && start <= runStarts[i-1] {
			return nil, invalid(name, "run starts not strictly increasing at run %d (%d after %d)", i, start, runStarts[i-1])
		}
	}

	return &Column{
		name:      name,
		typ:       typ,
		runStarts: runStarts,
		values:    values,
		totalRows: totalRows,
	}, nil
}

// LoadFromStore reads the run starts and values datasets of a column from s.
func LoadFromStore(ctx context.Context, s store.Store, name, startsRef, valuesRef string, totalRows int64) (*Column, error) {
	rawStarts, _, err := store.ReadAll(ctx, s, startsRef)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeIO, "read run starts of %s", name)
	}
	starts, err := columnar.ToInt64s(rawStarts)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeValidation, "run starts of %s", name)
	}
	values, info, err := store.ReadAll(ctx, s, valuesRef)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeIO, "read run values of %s", name)
	}
	if info.Width != 1 {
		return nil, invalid(name, "run values must be scalar, got width %d", info.Width)
	}
	return Load(name, starts, values, totalRows)
}

func invalid(name, format string, args ...any) error {
	return errors.Newf(errors.ErrorTypeValidation, format, args...).WithDetail("column", name)
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Type returns the element type of the run values.
func (c *Column) Type() columnar.Type { return c.typ }

// TotalRows returns the number of rows the runs cover.
func (c *Column) TotalRows() int64 { return c.totalRows }

// NumRuns returns the number of runs.
func (c *Column) NumRuns() int { return len(c.runStarts) }

// RunStart returns the first row of run i.
func (c *Column) RunStart(i int) int64 { return c.runStarts[i] }

// RunEnd returns the row after the last row of run i.
func (c *Column) RunEnd(i int) int64 {
	if i+1 < len(c.runStarts) {
		return c.runStarts[i+1]
	}
	return c.totalRows
}

// Value returns the value of run i.
func (c *Column) Value(i int) any {
	return columnar.Index(c.values, i)
}

// FindRun returns the index of the run containing row.
func (c *Column) FindRun(row int64) int {
	return sort.Search(len(c.runStarts), func(i int) bool { return c.runStarts[i] > row }) - 1
}

// ValueAt returns the value of a single row.
func (c *Column) ValueAt(row int64) any {
	return c.Value(c.FindRun(row))
}

// EmitBatch returns the count values starting at row start as a run-end
// encoded array with one run per covered run, so a batch inside a single run
// is a constant block and every batch of a column has the same arrow type.
func (c *Column) EmitBatch(mem memory.Allocator, start, count int64) (arrow.Array, error) {
	if start < 0 || count <= 0 || start+count > c.totalRows {
		return nil, errors.Newf(errors.ErrorTypeInternal,
			"batch [%d,%d) outside of %s with %d rows", start, start+count, c.name, c.totalRows)
	}

	b := columnar.NewRunBuilder(mem, c.typ)
	run := c.FindRun(start)
	pos, end := start, start+count
	for pos < end {
		n := min(c.RunEnd(run), end) - pos
		b.AppendRun(c.Value(run), int(n))
		pos += n
		run++
	}
	arr, err := b.Finish()
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeInternal, "emit batch of %s", c.name)
	}
	return arr, nil
}

// ArrowType returns the arrow type of every batch EmitBatch produces.
func (c *Column) ArrowType() arrow.DataType {
	return columnar.RunArrowType(c.typ)
}
