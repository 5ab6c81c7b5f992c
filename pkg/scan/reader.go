package scan

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/errors"
	"github.com/ajitpratap0/runscan/pkg/metrics"
	"github.com/ajitpratap0/runscan/pkg/rowrange"
	"github.com/ajitpratap0/runscan/pkg/runenc"
	"github.com/ajitpratap0/runscan/pkg/store"
)

// columnReader produces the values of one projected column for a batch.
type columnReader interface {
	read(ctx context.Context, mem memory.Allocator, batch rowrange.RowRange) (arrow.Array, error)
}

// runReader emits batches of a run-encoded column from its run metadata.
type runReader struct {
	col *runenc.Column
}

func (r *runReader) read(_ context.Context, mem memory.Allocator, batch rowrange.RowRange) (arrow.Array, error) {
	return r.col.EmitBatch(mem, batch.Start, batch.Len())
}

// directReader fetches every batch from the store.
type directReader struct {
	name  string
	store store.Store
	ref   string
	info  store.Info
}

func (r *directReader) read(ctx context.Context, mem memory.Allocator, batch rowrange.RowRange) (arrow.Array, error) {
	timer := metrics.NewTimer(r.name)
	values, err := r.store.ReadRows(ctx, r.ref, batch.Start, batch.Len())
	metrics.ReadLatency.WithLabelValues(r.name, metrics.ModeDirect).Observe(timer.Stop().Seconds())
	metrics.DirectReads.WithLabelValues(r.name).Inc()
	if err != nil {
		metrics.ReadErrors.WithLabelValues(r.name, metrics.ModeDirect).Inc()
		return nil, errors.Wrapf(err, errors.ErrorTypeIO, "read %s rows %s", r.name, batch)
	}
	if want := batch.Len() * int64(r.info.Width); int64(columnar.Len(values)) != want {
		return nil, errors.Newf(errors.ErrorTypeIO,
			"store returned %d elements for %d rows of %s", columnar.Len(values), batch.Len(), r.name)
	}
	return buildArray(mem, r.info.Type, r.info.Width, values)
}

// cachedReader serves a scalar column through a ChunkCache.
type cachedReader[T columnar.Number] struct {
	typ   columnar.Type
	cache *ChunkCache[T]
}

func (r *cachedReader[T]) read(ctx context.Context, mem memory.Allocator, batch rowrange.RowRange) (arrow.Array, error) {
	dst := make([]T, batch.Len())
	if err := r.cache.Read(ctx, batch.Start, batch.Len(), dst); err != nil {
		return nil, err
	}
	return buildArray(mem, r.typ, 1, dst)
}

// waiter is implemented by readers that block on the eviction horizon.
type waiter interface {
	Notify()
	Abort(err error)
}

func (r *cachedReader[T]) Notify()         { r.cache.Notify() }
func (r *cachedReader[T]) Abort(err error) { r.cache.Abort(err) }

func newCachedReader[T columnar.Number](t columnar.Type, opts CacheOptions) *cachedReader[T] {
	return &cachedReader[T]{typ: t, cache: NewChunkCache[T](opts)}
}

// cachedReaderFor instantiates a cached reader for the element type t. ok is
// false for types the cache does not hold.
func cachedReaderFor(t columnar.Type, opts CacheOptions) (columnReader, bool) {
	switch t {
	case columnar.TypeInt8:
		return newCachedReader[int8](t, opts), true
	case columnar.TypeInt16:
		return newCachedReader[int16](t, opts), true
	case columnar.TypeInt32:
		return newCachedReader[int32](t, opts), true
	case columnar.TypeInt64:
		return newCachedReader[int64](t, opts), true
	case columnar.TypeUint8:
		return newCachedReader[uint8](t, opts), true
	case columnar.TypeUint16:
		return newCachedReader[uint16](t, opts), true
	case columnar.TypeUint32:
		return newCachedReader[uint32](t, opts), true
	case columnar.TypeUint64:
		return newCachedReader[uint64](t, opts), true
	case columnar.TypeFloat32:
		return newCachedReader[float32](t, opts), true
	case columnar.TypeFloat64:
		return newCachedReader[float64](t, opts), true
	default:
		return nil, false
	}
}

func buildArray(mem memory.Allocator, t columnar.Type, width int, values any) (arrow.Array, error) {
	b := columnar.NewBuilder(mem, t, width)
	defer b.Release()
	if err := columnar.Append(b, values); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "build column array")
	}
	return b.NewArray(), nil
}

// chunkRows sizes the chunks of a cached column. A native store block size is
// rounded up to a multiple that holds a full batch; otherwise the byte budget
// decides, floored at the configured minimum and the batch size.
func chunkRows(hint int64, elemSize, targetBytes, minRows, batchSize int64) int64 {
	if hint > 0 {
		return (batchSize + hint - 1) / hint * hint
	}
	rows := targetBytes / max(elemSize, 1)
	return max(rows, minRows, batchSize)
}

func logReader(logger *zap.Logger, name, mode string, chunk int64) {
	logger.Debug("column reader ready",
		zap.String("column", name),
		zap.String("mode", mode),
		zap.Int64("chunk_rows", chunk))
}
