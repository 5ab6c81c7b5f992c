// Package memstore is an in-memory column store.
package memstore

import (
	"context"
	"sync"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/errors"
	"github.com/ajitpratap0/runscan/pkg/store"
)

type dataset struct {
	values any
	info   store.Info
	hint   int64
}

// Store keeps datasets as typed slices keyed by reference.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]*dataset
}

// New creates an empty store.
func New() *Store {
	return &Store{datasets: make(map[string]*dataset)}
}

// Put registers values under ref. width is the number of elements per row.
func (s *Store) Put(ref string, values any, width int) error {
	typ, ok := columnar.TypeOf(values)
	if !ok {
		return errors.Newf(errors.ErrorTypeValidation, "unsupported values %T for %s", values, ref)
	}
	if width < 1 {
		width = 1
	}
	n := columnar.Len(values)
	if n%width != 0 {
		return errors.Newf(errors.ErrorTypeValidation, "%s: %d elements do not fill rows of width %d", ref, n, width)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[ref] = &dataset{
		values: values,
		info:   store.Info{Type: typ, Rows: int64(n / width), Width: width},
	}
	return nil
}

// MustPut is Put for fixtures.
func (s *Store) MustPut(ref string, values any, width int) *Store {
	if err := s.Put(ref, values, width); err != nil {
		panic(err)
	}
	return s
}

// SetChunkHint sets the native block size reported for ref.
func (s *Store) SetChunkHint(ref string, rows int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.datasets[ref]; ok {
		d.hint = rows
	}
}

func (s *Store) get(ref string) (*dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[ref]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "dataset %q not found", ref)
	}
	return d, nil
}

// Describe implements store.Store.
func (s *Store) Describe(_ context.Context, ref string) (store.Info, error) {
	d, err := s.get(ref)
	if err != nil {
		return store.Info{}, err
	}
	return d.info, nil
}

// ReadRows implements store.Store. The result is a copy.
func (s *Store) ReadRows(_ context.Context, ref string, start, count int64) (any, error) {
	d, err := s.get(ref)
	if err != nil {
		return nil, err
	}
	if err := store.CheckWindow(ref, d.info, start, count); err != nil {
		return nil, err
	}
	w := int64(d.info.Width)
	out := columnar.MakeSlice(d.info.Type, int(count*w))
	if _, err := columnar.Copy(out, 0, columnar.Slice(d.values, int(start*w), int((start+count)*w))); err != nil {
		return nil, err
	}
	return out, nil
}

// NativeChunkHint implements store.ChunkHinter.
func (s *Store) NativeChunkHint(ref string) int64 {
	d, err := s.get(ref)
	if err != nil {
		return 0
	}
	return d.hint
}
