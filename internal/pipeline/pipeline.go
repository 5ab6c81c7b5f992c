// Package pipeline drives a scan session to a row sink, applying row filters
// the scan could not push down.
//
// # Architecture
//
// A pipeline consists of:
//   - Source: a scan session handing out batches
//   - Filters: residual predicates evaluated per row
//   - Sink: the destination of the projected rows
//   - Workers: goroutines pulling batches concurrently
//
// Workers convert batches into rows and hand each batch of rows to a single
// writer goroutine, which enforces the row limit and writes to the sink.
//
// # Basic Usage
//
//	p := pipeline.New(session, writer, &pipeline.Config{
//	    Workers: 8,
//	    Output:  []string{"id", "score"},
//	}, logger)
//	p.AddFilter(residual)
//	stats, err := p.Run(ctx)
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/metrics"
	"github.com/ajitpratap0/runscan/pkg/pushdown"
	"github.com/ajitpratap0/runscan/pkg/scan"
)

// Source hands out batches until io.EOF. *scan.Session implements it.
type Source interface {
	ID() string
	Columns() []string
	NextBatch(ctx context.Context, maxRows int) (*scan.Batch, error)
}

// Sink receives projected rows. WriteRows is only called from one goroutine.
type Sink interface {
	WriteRows(rows [][]any) error
}

// Filter decides whether a row is kept. Filters run concurrently.
type Filter func(row pushdown.Row) (bool, error)

// Config contains pipeline parameters.
type Config struct {
	Workers int // Concurrent batch readers
	// BatchRows caps the rows requested per batch; zero uses the session default
	BatchRows int
	// Output lists the emitted columns in order; empty emits every session column
	Output []string
	// Limit stops the pipeline after this many rows; zero means no limit
	Limit int64
	// ProgressInterval controls throughput logging; zero disables it
	ProgressInterval time.Duration
}

// DefaultConfig returns a configuration with four workers and no limit.
func DefaultConfig() *Config {
	return &Config{Workers: 4}
}

// Stats summarizes a finished run.
type Stats struct {
	Batches  int64
	Scanned  int64 // Rows read from the session
	Written  int64 // Rows passed to the sink
	Duration time.Duration
}

// Pipeline moves rows from a Source to a Sink.
type Pipeline struct {
	source  Source
	sink    Sink
	config  Config
	filters []Filter
	logger  *zap.Logger
}

// New creates a pipeline. A nil config uses DefaultConfig.
func New(source Source, sink Sink, config *Config, logger *zap.Logger) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := *config
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if len(cfg.Output) == 0 {
		cfg.Output = source.Columns()
	}
	return &Pipeline{source: source, sink: sink, config: cfg, logger: logger}
}

// AddFilter adds a row filter. A row is emitted only when every filter keeps
// it.
func (p *Pipeline) AddFilter(f Filter) {
	p.filters = append(p.filters, f)
}

type rowGroup struct {
	scanned int64
	rows    [][]any
}

// errLimit stops the readers once the writer has emitted Limit rows.
var errLimit = errors.New("row limit reached")

// Run executes the pipeline until the source is exhausted, the limit is
// reached or an error occurs.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	columns := p.source.Columns()
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	output := make([]int, len(p.config.Output))
	for i, c := range p.config.Output {
		j, ok := index[c]
		if !ok {
			return Stats{}, fmt.Errorf("output column %q is not scanned", c)
		}
		output[i] = j
	}

	p.logger.Info("starting pipeline",
		zap.String("session", p.source.ID()),
		zap.Int("workers", p.config.Workers),
		zap.Int("filters", len(p.filters)),
		zap.Int64("limit", p.config.Limit))

	tracker := metrics.NewThroughputTracker(p.source.ID())
	groups := make(chan rowGroup, p.config.Workers*2)

	g, gctx := errgroup.WithContext(ctx)
	readers, rctx := errgroup.WithContext(gctx)
	for i := 0; i < p.config.Workers; i++ {
		readers.Go(func() error {
			return p.read(rctx, index, output, groups)
		})
	}
	g.Go(func() error {
		defer close(groups)
		return readers.Wait()
	})

	var stats Stats
	g.Go(func() error {
		return p.write(gctx, groups, tracker, &stats)
	})

	err := g.Wait()
	if errors.Is(err, errLimit) {
		err = nil
	}
	stats.Duration = time.Since(start)

	p.logger.Info("pipeline completed",
		zap.String("session", p.source.ID()),
		zap.Int64("batches", stats.Batches),
		zap.Int64("rows_scanned", stats.Scanned),
		zap.Int64("rows_written", stats.Written),
		zap.Duration("duration", stats.Duration),
		zap.Float64("throughput_rps", float64(stats.Scanned)/stats.Duration.Seconds()),
		zap.Error(err))
	return stats, err
}

// read pulls batches and converts them into filtered rows.
func (p *Pipeline) read(ctx context.Context, index map[string]int, output []int, out chan<- rowGroup) error {
	for ctx.Err() == nil {
		b, err := p.source.NextBatch(ctx, p.config.BatchRows)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		group, err := p.rows(b, index, output)
		b.Release()
		if err != nil {
			return err
		}

		select {
		case out <- group:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func (p *Pipeline) rows(b *scan.Batch, index map[string]int, output []int) (rowGroup, error) {
	group := rowGroup{scanned: b.Length, rows: make([][]any, 0, b.Len())}
	for i := 0; i < b.Len(); i++ {
		row := func(column string) (any, bool) {
			j, ok := index[column]
			if !ok {
				return nil, false
			}
			return columnar.ValueAt(b.Columns[j], i), true
		}

		keep := true
		for _, f := range p.filters {
			ok, err := f(row)
			if err != nil {
				return rowGroup{}, fmt.Errorf("filter row %d: %w", b.Start+int64(i), err)
			}
			if !ok {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}

		values := make([]any, len(output))
		for k, j := range output {
			values[k] = columnar.ValueAt(b.Columns[j], i)
		}
		group.rows = append(group.rows, values)
	}
	return group, nil
}

// write is the only goroutine calling the sink.
func (p *Pipeline) write(ctx context.Context, in <-chan rowGroup, tracker *metrics.ThroughputTracker, stats *Stats) error {
	var ticks <-chan time.Time
	if p.config.ProgressInterval > 0 {
		ticker := time.NewTicker(p.config.ProgressInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case group, ok := <-in:
			if !ok {
				return nil
			}
			stats.Batches++
			stats.Scanned += group.scanned
			tracker.Increment(group.scanned)

			rows := group.rows
			limited := false
			if p.config.Limit > 0 && stats.Written+int64(len(rows)) >= p.config.Limit {
				rows = rows[:p.config.Limit-stats.Written]
				limited = true
			}
			if err := p.sink.WriteRows(rows); err != nil {
				return fmt.Errorf("sink write failed: %w", err)
			}
			stats.Written += int64(len(rows))
			if limited {
				p.logger.Debug("row limit reached", zap.Int64("limit", p.config.Limit))
				return errLimit
			}

		case <-ticks:
			p.logger.Info("scan progress",
				zap.String("session", p.source.ID()),
				zap.Int64("rows_scanned", stats.Scanned),
				zap.Int64("rows_written", stats.Written),
				zap.Float64("rows_per_sec", tracker.GetAndReset()))

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
