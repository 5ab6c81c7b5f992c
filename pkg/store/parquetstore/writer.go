package parquetstore

import (
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.uber.org/multierr"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/errors"
)

// Column is one column handed to WriteFile.
type Column struct {
	Name string
	// Values holds Rows*Width elements
	Values any
	Width  int
}

// WriteFile writes columns to a parquet file at path with row groups of at
// most rowGroupRows rows. codec is one of none, snappy, gzip or zstd.
func WriteFile(path string, columns []Column, rowGroupRows int64, codec string) (err error) {
	if len(columns) == 0 {
		return errors.New(errors.ErrorTypeValidation, "parquet file needs at least one column")
	}
	comp, err := parquetCodec(codec)
	if err != nil {
		return err
	}

	mem := memory.NewGoAllocator()
	fields := make([]arrow.Field, len(columns))
	arrays := make([]arrow.Array, len(columns))
	defer func() {
		for _, a := range arrays {
			if a != nil {
				a.Release()
			}
		}
	}()

	rows := int64(-1)
	for i, col := range columns {
		t, ok := columnar.TypeOf(col.Values)
		if !ok {
			return errors.Newf(errors.ErrorTypeValidation, "column %s: unsupported values %T", col.Name, col.Values)
		}
		width := max(col.Width, 1)
		n := int64(columnar.Len(col.Values) / width)
		if rows >= 0 && n != rows {
			return errors.Newf(errors.ErrorTypeValidation, "column %s has %d rows, want %d", col.Name, n, rows)
		}
		rows = n

		b := columnar.NewBuilder(mem, t, width)
		err := columnar.Append(b, col.Values)
		if err == nil {
			arrays[i] = b.NewArray()
		}
		b.Release()
		if err != nil {
			return errors.Wrapf(err, errors.ErrorTypeValidation, "column %s", col.Name)
		}
		fields[i] = arrow.Field{Name: col.Name, Type: arrays[i].DataType()}
	}

	schema := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(schema, arrays, rows)
	defer rec.Release()

	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "create parquet file")
	}
	// the parquet writer closes f once it has been created
	owned := true
	defer func() {
		if owned {
			err = multierr.Append(err, f.Close())
		}
	}()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(comp),
		parquet.WithMaxRowGroupLength(max(rowGroupRows, 1)),
	)
	fw, err := pqarrow.NewFileWriter(schema, f, props, pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(mem),
		pqarrow.WithStoreSchema(),
	))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "create parquet writer")
	}
	if err := fw.Write(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "write parquet rows")
	}
	owned = false
	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "close parquet writer")
	}
	return nil
}

func parquetCodec(name string) (compress.Compression, error) {
	switch name {
	case "", "none":
		return compress.Codecs.Uncompressed, nil
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	default:
		return compress.Codecs.Uncompressed, errors.Newf(errors.ErrorTypeConfig, "unsupported parquet codec %q", name)
	}
}
