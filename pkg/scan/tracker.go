package scan

import (
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/runscan/pkg/rowrange"
)

// CompletionTracker turns out-of-order batch completions into the eviction
// horizon: the largest row N such that every selected row below N has been
// emitted. Rows outside the selected ranges count as done, so the horizon
// moves across pruned gaps instead of stalling at the end of a range.
type CompletionTracker struct {
	mu        *sync.Mutex
	ranges    rowrange.List
	totalRows int64
	done      atomic.Int64
	// completed batches waiting for the rows before them, keyed by start
	pending   map[int64]int64
	onAdvance func()
}

// NewCompletionTracker creates a tracker for a scan over ranges.
func NewCompletionTracker(ranges rowrange.List, totalRows int64) *CompletionTracker {
	return newCompletionTracker(ranges, totalRows, &sync.Mutex{}, nil)
}

func newCompletionTracker(ranges rowrange.List, totalRows int64, mu *sync.Mutex, onAdvance func()) *CompletionTracker {
	t := &CompletionTracker{
		mu:        mu,
		ranges:    ranges,
		totalRows: totalRows,
		pending:   make(map[int64]int64),
		onAdvance: onAdvance,
	}
	t.done.Store(ranges.NextRow(0, totalRows))
	return t
}

// Done returns the current horizon. It never decreases and may be read
// without holding any lock.
func (t *CompletionTracker) Done() int64 {
	return t.done.Load()
}

// Complete records that rows [start, end) have been emitted.
func (t *CompletionTracker) Complete(start, end int64) {
	t.mu.Lock()
	done := t.done.Load()
	if start != done {
		t.pending[start] = end
		t.mu.Unlock()
		return
	}

	done = t.ranges.NextRow(end, t.totalRows)
	for {
		next, ok := t.pending[done]
		if !ok {
			break
		}
		delete(t.pending, done)
		done = t.ranges.NextRow(next, t.totalRows)
	}
	t.done.Store(done)
	t.mu.Unlock()

	if t.onAdvance != nil {
		t.onAdvance()
	}
}

// Pending returns the number of completions waiting to be merged.
func (t *CompletionTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
