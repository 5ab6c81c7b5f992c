// Package store defines the capability the scan engine uses to read regular
// column data, and the run metadata of run-encoded columns, from external
// storage.
//
// A Store is addressed by opaque references (a file path, a parquet column, an
// object key). Reads return typed Go slices; multi-dimensional columns return
// the flattened elements of the requested rows. Implementations must be safe
// for concurrent use or serialize internally.
package store

import (
	"context"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/errors"
)

// Info describes one dataset inside a store.
type Info struct {
	// Type of each element
	Type columnar.Type
	// Rows is the number of rows
	Rows int64
	// Width is the number of elements per row, 1 for scalar columns
	Width int
}

// Store reads rows of a dataset.
type Store interface {
	// Describe returns the shape of the dataset at ref.
	Describe(ctx context.Context, ref string) (Info, error)
	// ReadRows returns rows [start, start+count) as a typed slice of
	// count*Width elements.
	ReadRows(ctx context.Context, ref string, start, count int64) (any, error)
}

// ChunkHinter is implemented by stores with a natural block size, such as
// compressed blocks or parquet row groups.
type ChunkHinter interface {
	NativeChunkHint(ref string) int64
}

// ChunkHint returns the native block size of ref in rows, or 0 when s offers
// no hint.
func ChunkHint(s Store, ref string) int64 {
	if h, ok := s.(ChunkHinter); ok {
		return h.NativeChunkHint(ref)
	}
	return 0
}

// CheckWindow validates a read window against the dataset shape.
func CheckWindow(ref string, info Info, start, count int64) error {
	if start < 0 || count < 0 || start+count > info.Rows {
		return errors.Newf(errors.ErrorTypeValidation,
			"rows [%d,%d) outside of %s with %d rows", start, start+count, ref, info.Rows)
	}
	return nil
}

// ReadAll reads every row of the dataset at ref.
func ReadAll(ctx context.Context, s Store, ref string) (any, Info, error) {
	info, err := s.Describe(ctx, ref)
	if err != nil {
		return nil, Info{}, err
	}
	values, err := s.ReadRows(ctx, ref, 0, info.Rows)
	if err != nil {
		return nil, Info{}, err
	}
	return values, info, nil
}
