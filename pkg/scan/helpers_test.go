package scan

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/runscan/pkg/rowrange"
	"github.com/ajitpratap0/runscan/pkg/store"
)

// countingStore records every ReadRows call of the wrapped store and can be
// told to fail or slow down.
type countingStore struct {
	store.Store

	calls atomic.Int64
	delay time.Duration
	// fail makes every read of ref return an error
	fail string

	mu      sync.Mutex
	windows []rowrange.RowRange
}

func (s *countingStore) ReadRows(ctx context.Context, ref string, start, count int64) (any, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.windows = append(s.windows, rowrange.RowRange{Start: start, End: start + count})
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if ref == s.fail {
		return nil, fmt.Errorf("disk on fire reading %s", ref)
	}
	return s.Store.ReadRows(ctx, ref, start, count)
}

func (s *countingStore) requested() []rowrange.RowRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rowrange.RowRange(nil), s.windows...)
}

func sequence(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i)
	}
	return out
}

// withTimeout runs fn and reports whether it returned within d.
func withTimeout(d time.Duration, fn func()) bool {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
