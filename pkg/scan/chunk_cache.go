package scan

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/errors"
	"github.com/ajitpratap0/runscan/pkg/metrics"
	"github.com/ajitpratap0/runscan/pkg/observability"
	"github.com/ajitpratap0/runscan/pkg/rowrange"
	"github.com/ajitpratap0/runscan/pkg/store"
)

// Horizon reports the row below which no reader will ask for data again.
type Horizon interface {
	Done() int64
}

// CacheOptions configures a ChunkCache.
type CacheOptions struct {
	// Column is used in logs and metric labels
	Column string
	// Store and Ref locate the column data
	Store store.Store
	Ref   string
	// ChunkRows is the capacity of each chunk; it must be at least the
	// largest batch a reader asks for
	ChunkRows int64
	// Ranges are the selected rows; rows outside them are never fetched
	Ranges    rowrange.List
	TotalRows int64
	Horizon   Horizon
	Logger    *zap.Logger
}

type chunk[T columnar.Number] struct {
	buf []T
	// rows held by buf; nil while empty or being refilled
	window atomic.Pointer[rowrange.RowRange]
}

func (c *chunk[T]) rows() rowrange.RowRange {
	if w := c.window.Load(); w != nil {
		return *w
	}
	return rowrange.RowRange{}
}

// ChunkCache serves rows of one fixed-width scalar column from two chunk
// buffers. One reader at a time becomes the fetcher and refills every chunk
// whose rows all lie below the eviction horizon with the next window of
// selected rows. Other readers copy straight from published chunks, or block
// until a refill round ends or the horizon moves.
type ChunkCache[T columnar.Number] struct {
	opts   CacheOptions
	logger *zap.Logger
	chunks [2]chunk[T]

	// fetching admits a single refilling reader
	fetching atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
	// generation changes after every refill round and horizon advance
	generation uint64
	err        error

	fetches atomic.Int64
	waits   atomic.Int64
}

// NewChunkCache creates an empty cache. Buffers are allocated on first
// refill.
func NewChunkCache[T columnar.Number](opts CacheOptions) *ChunkCache[T] {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &ChunkCache[T]{
		opts:   opts,
		logger: logger.With(zap.String("column", opts.Column)),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Read copies rows [start, start+count) into dst. The rows must lie inside
// one selected range and at or above the horizon.
func (c *ChunkCache[T]) Read(ctx context.Context, start, count int64, dst []T) error {
	if count > c.opts.ChunkRows {
		return errors.Newf(errors.ErrorTypeInternal,
			"read of %d rows exceeds chunk size %d of %s", count, c.opts.ChunkRows, c.opts.Column)
	}
	end := start + count
	for {
		seen, err := c.state()
		if err != nil {
			return err
		}
		if c.copyOut(dst, start, end) {
			return nil
		}

		if c.fetching.CompareAndSwap(false, true) {
			progressed, err := c.refill(ctx)
			after := c.endRound(err)
			if err != nil {
				return err
			}
			// only wait when nothing else happened while refilling
			if progressed || after != seen+1 {
				continue
			}
			seen = after
		}

		c.waits.Add(1)
		metrics.CacheWaits.WithLabelValues(c.opts.Column).Inc()
		c.await(seen)
	}
}

// Notify wakes readers blocked on the horizon. The scanner calls it whenever
// the horizon advances.
func (c *ChunkCache[T]) Notify() {
	c.mu.Lock()
	c.generation++
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Abort fails the cache with err and wakes every waiting reader. Later reads
// return the first recorded error.
func (c *ChunkCache[T]) Abort(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.generation++
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Fetches returns the number of refill reads issued so far.
func (c *ChunkCache[T]) Fetches() int64 {
	return c.fetches.Load()
}

// Waits returns the number of times a reader blocked.
func (c *ChunkCache[T]) Waits() int64 {
	return c.waits.Load()
}

func (c *ChunkCache[T]) state() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation, c.err
}

func (c *ChunkCache[T]) await(seen uint64) {
	c.mu.Lock()
	for c.generation == seen && c.err == nil {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

// endRound releases the fetcher gate, records a failure and wakes every
// waiter. It returns the generation after the round.
func (c *ChunkCache[T]) endRound(err error) uint64 {
	c.fetching.Store(false)
	c.mu.Lock()
	c.generation++
	if err != nil && c.err == nil {
		c.err = err
	}
	gen := c.generation
	c.mu.Unlock()
	c.cond.Broadcast()
	return gen
}

// copyOut copies [start, end) from the lower then the higher chunk and
// reports whether the whole window was available.
func (c *ChunkCache[T]) copyOut(dst []T, start, end int64) bool {
	a, b := &c.chunks[0], &c.chunks[1]
	wa, wb := a.rows(), b.rows()
	if wa.End > wb.End {
		a, b = b, a
		wa, wb = wb, wa
	}
	if !covers(wa, wb, start, end) {
		return false
	}

	pos := start
	for _, ch := range [2]struct {
		c *chunk[T]
		w rowrange.RowRange
	}{{a, wa}, {b, wb}} {
		if pos < end && ch.w.Contains(pos) {
			n := min(end, ch.w.End) - pos
			off := pos - ch.w.Start
			copy(dst[pos-start:pos-start+n], ch.c.buf[off:off+n])
			pos += n
		}
	}
	return pos == end
}

// covers reports whether [start, end) lies in hi, in lo, or in lo and hi
// joined end to start.
func covers(lo, hi rowrange.RowRange, start, end int64) bool {
	in := func(w rowrange.RowRange) bool { return w.Start <= start && end <= w.End }
	if in(hi) || in(lo) {
		return true
	}
	return lo.Start <= start && start < lo.End && lo.End == hi.Start && end <= hi.End
}

// refill loads the next windows into stale chunks, lower chunk first. It
// must only run while holding the fetcher gate.
func (c *ChunkCache[T]) refill(ctx context.Context) (progressed bool, err error) {
	done := c.opts.Horizon.Done()
	order := [2]*chunk[T]{&c.chunks[0], &c.chunks[1]}
	if order[0].rows().End > order[1].rows().End {
		order[0], order[1] = order[1], order[0]
	}
	furthest := order[1].rows().End

	for _, ch := range order {
		if ch.rows().End > done {
			continue
		}
		next, ok := c.nextWindow(max(furthest, done))
		if !ok {
			break
		}
		if err := c.load(ctx, ch, next); err != nil {
			return progressed, err
		}
		furthest = next.End
		progressed = true
	}
	return progressed, nil
}

// nextWindow returns up to ChunkRows selected rows starting at the first
// selected row at or after from, clipped to the range holding that row.
func (c *ChunkCache[T]) nextWindow(from int64) (rowrange.RowRange, bool) {
	start := c.opts.Ranges.NextRow(from, c.opts.TotalRows)
	if start >= c.opts.TotalRows {
		return rowrange.RowRange{}, false
	}
	end, _ := c.opts.Ranges.EndOf(start)
	end = min(end, start+c.opts.ChunkRows, c.opts.TotalRows)
	return rowrange.RowRange{Start: start, End: end}, true
}

func (c *ChunkCache[T]) load(ctx context.Context, ch *chunk[T], w rowrange.RowRange) error {
	ctx, span := observability.StartSpan(ctx, "cache.refill")
	defer span.End()
	span.SetAttribute("column", c.opts.Column)
	span.SetAttribute("start", w.Start)
	span.SetAttribute("rows", w.Len())

	// unpublish first so no reader trusts the buffer while it is rewritten
	ch.window.Store(nil)
	if ch.buf == nil {
		ch.buf = make([]T, c.opts.ChunkRows)
	}

	timer := metrics.NewTimer("refill")
	values, err := c.opts.Store.ReadRows(ctx, c.opts.Ref, w.Start, w.Len())
	metrics.ReadLatency.WithLabelValues(c.opts.Column, metrics.ModeCache).Observe(timer.Stop().Seconds())
	if err != nil {
		metrics.ReadErrors.WithLabelValues(c.opts.Column, metrics.ModeCache).Inc()
		span.RecordError(err)
		c.logger.Error("chunk refill failed",
			zap.Int64("start", w.Start),
			zap.Int64("rows", w.Len()),
			zap.Error(err))
		return errors.Wrapf(err, errors.ErrorTypeIO, "refill %s rows %s", c.opts.Column, w)
	}
	typed, ok := values.([]T)
	if !ok || int64(len(typed)) != w.Len() {
		return errors.Newf(errors.ErrorTypeIO,
			"store returned %T of %d elements for %d rows of %s", values, columnar.Len(values), w.Len(), c.opts.Column)
	}
	copy(ch.buf, typed)
	ch.window.Store(&w)

	c.fetches.Add(1)
	metrics.CacheFetches.WithLabelValues(c.opts.Column).Inc()
	metrics.CacheFetchedRows.WithLabelValues(c.opts.Column).Add(float64(w.Len()))
	c.logger.Debug("chunk refilled", zap.Int64("start", w.Start), zap.Int64("end", w.End))
	return nil
}
