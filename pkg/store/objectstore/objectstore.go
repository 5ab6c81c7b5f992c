// Package objectstore reads fixed-width columns stored as raw little-endian
// objects in S3 or GCS. Every read is a ranged GET of exactly the requested
// rows.
package objectstore

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/errors"
	"github.com/ajitpratap0/runscan/pkg/store"
)

// DefaultChunkRows is the read size suggested to the chunk cache when none is
// configured. Object requests are expensive, so reads should be large.
const DefaultChunkRows = 1 << 16

// Backend fetches byte ranges of objects.
type Backend interface {
	// Size returns the length of the object in bytes.
	Size(ctx context.Context, key string) (int64, error)
	// ReadRange returns length bytes of the object starting at offset.
	ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error)
}

// Options configures a Store.
type Options struct {
	// ChunkRows is reported as the native chunk size
	ChunkRows int64
	// RequestsPerSecond limits range requests; zero means unlimited
	RequestsPerSecond float64
	Logger            *zap.Logger
}

type dataset struct {
	key  string
	info store.Info
}

// Store serves objects of one backend registered under references.
type Store struct {
	backend   Backend
	limiter   *rate.Limiter
	chunkRows int64
	logger    *zap.Logger

	mu       sync.RWMutex
	datasets map[string]*dataset
}

// New creates a store over backend.
func New(backend Backend, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	chunk := opts.ChunkRows
	if chunk <= 0 {
		chunk = DefaultChunkRows
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return &Store{
		backend:   backend,
		limiter:   limiter,
		chunkRows: chunk,
		logger:    logger,
		datasets:  make(map[string]*dataset),
	}
}

// Open registers the object key under ref. When rows is zero the row count is
// derived from the object size.
func (s *Store) Open(ctx context.Context, ref, key string, t columnar.Type, width int, rows int64) error {
	if !t.IsFixedWidth() {
		return errors.Newf(errors.ErrorTypeValidation, "object %s: %s is not fixed width", key, t)
	}
	if width < 1 {
		width = 1
	}
	rowBytes := int64(t.Size() * width)

	size, err := s.backend.Size(ctx, key)
	if err != nil {
		return classify(err, "stat object "+key)
	}
	if size%rowBytes != 0 {
		return errors.Newf(errors.ErrorTypeValidation,
			"object %s: %d bytes is not a multiple of the %d byte row", key, size, rowBytes)
	}
	if rows == 0 {
		rows = size / rowBytes
	} else if rows*rowBytes > size {
		return errors.Newf(errors.ErrorTypeValidation, "object %s holds %d rows, %d configured", key, size/rowBytes, rows)
	}

	s.mu.Lock()
	s.datasets[ref] = &dataset{key: key, info: store.Info{Type: t, Rows: rows, Width: width}}
	s.mu.Unlock()

	s.logger.Debug("object opened", zap.String("ref", ref), zap.String("key", key), zap.Int64("rows", rows))
	return nil
}

func (s *Store) get(ref string) (*dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[ref]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "object dataset %q not opened", ref)
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

// NativeChunkHint implements store.ChunkHinter.
func (s *Store) NativeChunkHint(string) int64 {
	return s.chunkRows
}

// ReadRows implements store.Store.
func (s *Store) ReadRows(ctx context.Context, ref string, start, count int64) (any, error) {
	d, err := s.get(ref)
	if err != nil {
		return nil, err
	}
	if err := store.CheckWindow(ref, d.info, start, count); err != nil {
		return nil, err
	}
	if count == 0 {
		return columnar.MakeSlice(d.info.Type, 0), nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "wait for request budget")
	}

	rowBytes := int64(d.info.Type.Size() * d.info.Width)
	data, err := s.backend.ReadRange(ctx, d.key, start*rowBytes, count*rowBytes)
	if err != nil {
		return nil, classify(err, "read object "+d.key)
	}
	if int64(len(data)) != count*rowBytes {
		return nil, errors.Newf(errors.ErrorTypeIO, "object %s returned %d of %d bytes", d.key, len(data), count*rowBytes)
	}
	values, err := columnar.DecodeFixed(d.info.Type, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "decode object rows")
	}
	return values, nil
}

// errNotFound is returned by backends for missing objects.
var errNotFound = errors.New(errors.ErrorTypeNotFound, "object not found")

func classify(err error, message string) error {
	if errors.Is(err, errNotFound) {
		return errors.Wrap(err, errors.ErrorTypeNotFound, message)
	}
	return errors.Wrap(err, errors.ErrorTypeIO, message)
}
