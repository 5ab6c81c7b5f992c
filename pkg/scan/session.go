package scan

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/runscan/pkg/errors"
	"github.com/ajitpratap0/runscan/pkg/metrics"
	"github.com/ajitpratap0/runscan/pkg/rowrange"
)

// Session is one open scan. NextBatch may be called from any number of
// goroutines.
type Session struct {
	id        string
	scan      string
	names     []string
	readers   []columnReader
	waiters   []waiter
	ranges    rowrange.List
	totalRows int64
	batchSize int64
	mem       memory.Allocator
	logger    *zap.Logger

	cursor  *RangeCursor
	tracker *CompletionTracker
	emitted *metrics.ThroughputTracker

	errMu  sync.Mutex
	err    error
	closed atomic.Bool
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Columns returns the projected column names.
func (s *Session) Columns() []string { return s.names }

// Ranges returns the row ranges that survived pruning.
func (s *Session) Ranges() rowrange.List { return s.ranges }

// RowCountEstimate returns the table's total row count. It is exact and known
// before the first batch.
func (s *Session) RowCountEstimate() int64 { return s.totalRows }

// SelectedRows returns the number of rows the session will emit.
func (s *Session) SelectedRows() int64 {
	if len(s.readers) == 0 {
		return 0
	}
	return s.ranges.Rows()
}

// Done returns the eviction horizon: every selected row below it has been
// emitted.
func (s *Session) Done() int64 { return s.tracker.Done() }

// EmittedRows returns the number of rows emitted so far.
func (s *Session) EmittedRows() int64 { return s.emitted.Total() }

// NextBatch returns the next batch of at most maxRows rows, or io.EOF when
// every selected row has been handed out. maxRows above the configured batch
// size, or not positive, is clamped to it. A read failure fails the session:
// the failing call and every later one return the error.
func (s *Session) NextBatch(ctx context.Context, maxRows int) (*Batch, error) {
	if err := s.failure(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, errors.New(errors.ErrorTypeValidation, "session is closed")
	}
	if len(s.readers) == 0 {
		return nil, io.EOF
	}

	n := s.batchSize
	if maxRows > 0 && int64(maxRows) < n {
		n = int64(maxRows)
	}
	r, ok := s.cursor.Next(n)
	if !ok {
		return nil, io.EOF
	}

	cols := make([]arrow.Array, 0, len(s.readers))
	for i, reader := range s.readers {
		arr, err := reader.read(ctx, s.mem, r)
		if err != nil {
			for _, c := range cols {
				c.Release()
			}
			s.fail(err)
			s.logger.Error("batch failed",
				zap.String("column", s.names[i]),
				zap.Stringer("rows", r),
				zap.Error(err))
			return nil, s.failure()
		}
		cols = append(cols, arr)
	}

	s.tracker.Complete(r.Start, r.End)
	s.emitted.Increment(r.Len())
	metrics.BatchesEmitted.WithLabelValues(s.scan).Inc()
	metrics.RowsEmitted.WithLabelValues(s.scan).Add(float64(r.Len()))

	return &Batch{Start: r.Start, Length: r.Len(), Names: s.names, Columns: cols}, nil
}

// Drain pulls batches with workers goroutines and passes each to fn until the
// session is exhausted. fn owns the batch it receives. The first error from
// fn or the session stops the scan and is returned.
func (s *Session) Drain(ctx context.Context, workers int, fn func(context.Context, *Batch) error) error {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				batch, err := s.NextBatch(ctx, 0)
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				if err := fn(ctx, batch); err != nil {
					s.fail(err)
					return err
				}
			}
		})
	}
	return g.Wait()
}

// Close ends the session. Batches already returned stay valid.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	metrics.ActiveSessions.Dec()
	s.logger.Info("scan closed",
		zap.Int64("emitted_rows", s.emitted.Total()),
		zap.Int64("done", s.tracker.Done()))
	return nil
}

func (s *Session) failure() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// fail records the first error and releases every reader blocked on the
// horizon, which cannot advance past the failed batch.
func (s *Session) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	for _, w := range s.waiters {
		w.Abort(err)
	}
}

func (s *Session) horizonAdvanced() {
	for _, w := range s.waiters {
		w.Notify()
	}
}
