// Package rawfile stores fixed-width columns as flat little-endian files read
// through memory mappings.
package rawfile

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/errors"
	"github.com/ajitpratap0/runscan/pkg/mmap"
	"github.com/ajitpratap0/runscan/pkg/store"
)

type dataset struct {
	reader *mmap.Reader
	info   store.Info
}

// Store serves raw files registered under references.
type Store struct {
	logger *zap.Logger

	mu       sync.RWMutex
	datasets map[string]*dataset
}

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger, datasets: make(map[string]*dataset)}
}

// Open maps the file at path and registers it under ref. Each row holds width
// elements of type t.
func (s *Store) Open(ref, path string, t columnar.Type, width int) error {
	if !t.IsFixedWidth() {
		return errors.Newf(errors.ErrorTypeValidation, "raw file %s: %s is not fixed width", path, t)
	}
	if width < 1 {
		width = 1
	}
	r, err := mmap.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "open raw file")
	}
	rowBytes := int64(t.Size() * width)
	if r.Len()%rowBytes != 0 {
		r.Close()
		return errors.Newf(errors.ErrorTypeValidation,
			"raw file %s: %d bytes is not a multiple of the %d byte row", path, r.Len(), rowBytes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.datasets[ref]; ok {
		old.reader.Close()
	}
	s.datasets[ref] = &dataset{
		reader: r,
		info:   store.Info{Type: t, Rows: r.Len() / rowBytes, Width: width},
	}
	s.logger.Debug("raw file mapped",
		zap.String("ref", ref),
		zap.String("path", path),
		zap.Int64("rows", r.Len()/rowBytes))
	return nil
}

func (s *Store) get(ref string) (*dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[ref]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "raw dataset %q not opened", ref)
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

// ReadRows implements store.Store.
func (s *Store) ReadRows(_ context.Context, ref string, start, count int64) (any, error) {
	d, err := s.get(ref)
	if err != nil {
		return nil, err
	}
	if err := store.CheckWindow(ref, d.info, start, count); err != nil {
		return nil, err
	}
	rowBytes := int64(d.info.Type.Size() * d.info.Width)
	data, err := d.reader.Slice(start*rowBytes, count*rowBytes)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "read raw rows")
	}
	values, err := columnar.DecodeFixed(d.info.Type, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "decode raw rows")
	}
	return values, nil
}

// Prefetch advises the kernel that rows [start, start+count) of ref will be
// read soon.
func (s *Store) Prefetch(ref string, start, count int64) {
	d, err := s.get(ref)
	if err != nil {
		return
	}
	rowBytes := int64(d.info.Type.Size() * d.info.Width)
	d.reader.WillNeed(start*rowBytes, count*rowBytes)
}

// Close unmaps every file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for ref, d := range s.datasets {
		if err := d.reader.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.datasets, ref)
	}
	return first
}

// WriteFile writes values to path in the raw layout.
func WriteFile(path string, values any) error {
	data, err := columnar.EncodeFixed(values)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "encode raw file")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeIO, "write raw file")
	}
	return nil
}
