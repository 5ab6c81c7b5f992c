package scan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/runscan/pkg/errors"
	"github.com/ajitpratap0/runscan/pkg/rowrange"
	"github.com/ajitpratap0/runscan/pkg/store/memstore"
)

type cacheFixture struct {
	store   *countingStore
	cache   *ChunkCache[int64]
	cursor  *RangeCursor
	tracker *CompletionTracker
}

func newCacheFixture(total, chunk int64, ranges rowrange.List) *cacheFixture {
	values := make([]int64, total)
	for i := range values {
		values[i] = int64(i) * 3
	}
	st := &countingStore{Store: memstore.New().MustPut("col", values, 1)}

	f := &cacheFixture{store: st}
	mu := &sync.Mutex{}
	f.cursor = newRangeCursor(ranges, mu)
	f.tracker = newCompletionTracker(ranges, total, mu, func() { f.cache.Notify() })
	f.cache = NewChunkCache[int64](CacheOptions{
		Column:    "col",
		Store:     st,
		Ref:       "col",
		ChunkRows: chunk,
		Ranges:    ranges,
		TotalRows: total,
		Horizon:   f.tracker,
	})
	return f
}

// drain reads every batch with workers goroutines and returns the first error.
func (f *cacheFixture) drain(t *testing.T, workers int, batch int64) error {
	t.Helper()
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				r, ok := f.cursor.Next(batch)
				if !ok {
					return
				}
				dst := make([]int64, r.Len())
				if err := f.cache.Read(context.Background(), r.Start, r.Len(), dst); err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
				for i, v := range dst {
					if v != (r.Start+int64(i))*3 {
						errOnce.Do(func() { firstErr = assert.AnError })
						return
					}
				}
				f.tracker.Complete(r.Start, r.End)
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func TestChunkCacheSequentialReadBound(t *testing.T) {
	f := newCacheFixture(1000, 100, rowrange.Full(1000))

	require.NoError(t, f.drain(t, 1, 30))

	// each window of 100 rows is fetched once
	assert.Equal(t, int64(10), f.store.calls.Load())
	assert.Equal(t, int64(10), f.cache.Fetches())
	assert.Equal(t, int64(1000), f.tracker.Done())
}

func TestChunkCacheBatchSpanningChunks(t *testing.T) {
	f := newCacheFixture(300, 100, rowrange.Full(300))

	dst := make([]int64, 100)
	require.NoError(t, f.cache.Read(context.Background(), 50, 100, dst))
	assert.Equal(t, int64(150), dst[0])
	assert.Equal(t, int64(447), dst[99])
}

func TestChunkCacheConcurrentReaders(t *testing.T) {
	f := newCacheFixture(5000, 256, rowrange.Full(5000))
	f.store.delay = time.Millisecond

	require.NoError(t, f.drain(t, 8, 64))

	assert.LessOrEqual(t, f.store.calls.Load(), int64(20))
	assert.Equal(t, int64(5000), f.tracker.Done())
}

func TestChunkCacheFetchesOnlySelectedRows(t *testing.T) {
	ranges := rowrange.List{{Start: 0, End: 50}, {Start: 300, End: 350}, {Start: 900, End: 1000}}
	f := newCacheFixture(1000, 100, ranges)

	require.NoError(t, f.drain(t, 4, 20))

	windows := f.store.requested()
	assert.Len(t, windows, 3)
	for _, w := range windows {
		end, ok := ranges.EndOf(w.Start)
		require.True(t, ok, "window %s starts outside the ranges", w)
		assert.LessOrEqual(t, w.End, end, "window %s leaves its range", w)
	}
}

func TestChunkCacheFailureWakesAllReaders(t *testing.T) {
	f := newCacheFixture(1000, 100, rowrange.Full(1000))
	f.store.fail = "col"
	f.store.delay = 5 * time.Millisecond

	var err error
	finished := withTimeout(5*time.Second, func() { err = f.drain(t, 6, 50) })

	require.True(t, finished, "readers deadlocked after a failed refill")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))
	assert.Contains(t, err.Error(), "disk on fire")

	// the failure is sticky
	dst := make([]int64, 10)
	assert.Error(t, f.cache.Read(context.Background(), 0, 10, dst))
}

func TestChunkCacheWaitsForHorizon(t *testing.T) {
	f := newCacheFixture(100, 10, rowrange.Full(100))
	ctx := context.Background()

	dst := make([]int64, 10)
	require.NoError(t, f.cache.Read(ctx, 0, 10, dst))

	// both chunks hold rows at or above the horizon, so this read must wait
	got := make(chan error, 1)
	go func() { got <- f.cache.Read(ctx, 20, 10, make([]int64, 10)) }()

	select {
	case err := <-got:
		t.Fatalf("read returned before the horizon moved: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	f.tracker.Complete(0, 10)
	select {
	case err := <-got:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("read not woken by horizon advance")
	}
	assert.GreaterOrEqual(t, f.cache.Waits(), int64(1))
}

func TestChunkCacheAbortWakesWaiter(t *testing.T) {
	f := newCacheFixture(100, 10, rowrange.Full(100))
	ctx := context.Background()
	require.NoError(t, f.cache.Read(ctx, 0, 10, make([]int64, 10)))

	got := make(chan error, 1)
	go func() { got <- f.cache.Read(ctx, 40, 10, make([]int64, 10)) }()
	time.Sleep(20 * time.Millisecond)

	f.cache.Abort(assert.AnError)
	select {
	case err := <-got:
		assert.ErrorIs(t, err, assert.AnError)
	case <-time.After(5 * time.Second):
		t.Fatal("abort did not wake the reader")
	}
}

func TestChunkCacheRejectsOversizedRead(t *testing.T) {
	f := newCacheFixture(100, 10, rowrange.Full(100))
	err := f.cache.Read(context.Background(), 0, 11, make([]int64, 11))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
}

func TestChunkRows(t *testing.T) {
	tests := []struct {
		name                               string
		hint, elem, target, minRows, batch int64
		want                               int64
	}{
		{name: "hint above batch", hint: 10000, elem: 8, target: 1 << 20, minRows: 2048, batch: 2048, want: 10000},
		{name: "hint rounded up", hint: 300, elem: 8, target: 1 << 20, minRows: 2048, batch: 1000, want: 1200},
		{name: "byte budget", elem: 8, target: 1 << 20, minRows: 2048, batch: 2048, want: 131072},
		{name: "min rows floor", elem: 8, target: 64, minRows: 100, batch: 10, want: 100},
		{name: "batch floor", elem: 8, target: 64, minRows: 1, batch: 500, want: 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunkRows(tt.hint, tt.elem, tt.target, tt.minRows, tt.batch))
		})
	}
}
