// Package scan runs parallel, pruned scans over a table of run-encoded and
// regular columns.
//
// A Scanner is bound to a Catalog. OpenScan prunes the table with the claimed
// filters and returns a Session from which any number of workers pull batches
// concurrently:
//
//	sc := scan.New(catalog, cfg, logger)
//	sess, err := sc.OpenScan(ctx, []string{"id", "region"}, filters)
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	for {
//	    batch, err := sess.NextBatch(ctx, 0)
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//
// Batches are assigned in row order but may complete out of order. Regular
// scalar columns are served through a ChunkCache bounded to two chunks;
// run-encoded columns are emitted from their run metadata without locking.
package scan

import (
	"context"
	"sort"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/runscan/pkg/config"
	"github.com/ajitpratap0/runscan/pkg/errors"
	"github.com/ajitpratap0/runscan/pkg/metrics"
	"github.com/ajitpratap0/runscan/pkg/observability"
	"github.com/ajitpratap0/runscan/pkg/pushdown"
	"github.com/ajitpratap0/runscan/pkg/runenc"
	"github.com/ajitpratap0/runscan/pkg/store"
)

// Scanner opens scan sessions over a catalog.
type Scanner struct {
	catalog *Catalog
	config  *config.Config
	logger  *zap.Logger
	mem     memory.Allocator
}

// New creates a scanner. A nil config selects the defaults and a nil logger
// disables logging.
func New(catalog *Catalog, cfg *config.Config, logger *zap.Logger) *Scanner {
	if cfg == nil {
		cfg = config.NewDefault("scan")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		catalog: catalog,
		config:  cfg,
		logger:  logger,
		mem:     memory.DefaultAllocator,
	}
}

// SetAllocator sets the arrow allocator used for batch arrays.
func (s *Scanner) SetAllocator(mem memory.Allocator) {
	s.mem = mem
}

// TotalRows returns the row count of the table: the smallest row count of
// its regular columns, or the catalog's explicit count when it has none.
func (s *Scanner) TotalRows(ctx context.Context) (int64, error) {
	total, _, err := s.describe(ctx)
	return total, err
}

func (s *Scanner) describe(ctx context.Context) (int64, map[string]store.Info, error) {
	infos := make(map[string]store.Info)
	total := int64(-1)
	for _, spec := range s.catalog.Columns {
		reg, ok := spec.(Regular)
		if !ok {
			continue
		}
		info, err := reg.Store.Describe(ctx, reg.Ref)
		if err != nil {
			return 0, nil, errors.Wrapf(err, errors.ErrorTypeIO, "describe column %s", reg.Name)
		}
		if info.Width < 1 {
			info.Width = 1
		}
		infos[reg.Name] = info
		if total < 0 || info.Rows < total {
			total = info.Rows
		}
	}
	if total < 0 {
		total = s.catalog.Rows
	}
	if total < 0 {
		return 0, nil, errors.Newf(errors.ErrorTypeValidation, "negative row count %d", total)
	}
	return total, infos, nil
}

// OpenScan prepares a scan of columns restricted by filters. Every filter
// must use a claimable comparator. Filters on columns that are not
// run-encoded, or with constants that cannot be compared to the column, do
// not prune; callers still apply their predicates to the emitted rows.
func (s *Scanner) OpenScan(ctx context.Context, columns []string, filters []pushdown.Filter) (*Session, error) {
	ctx, span := observability.StartSpan(ctx, "scan.open")
	defer span.End()

	seen := make(map[string]bool, len(columns))
	for _, name := range columns {
		if _, ok := s.catalog.Lookup(name); !ok {
			return nil, errors.Newf(errors.ErrorTypeNotFound, "unknown column %q", name).
				WithDetail("column", name)
		}
		if seen[name] {
			return nil, errors.Newf(errors.ErrorTypeValidation, "column %q requested twice", name)
		}
		seen[name] = true
	}

	total, infos, err := s.describe(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	runCols, err := s.loadRunColumns(ctx, columns, filters, total)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ranges := pushdown.Prune(runCols, filters, total, s.logger)
	id := uuid.NewString()
	logger := s.logger.With(zap.String("session_id", id), zap.String("scan", s.config.Name))

	mu := &sync.Mutex{}
	sess := &Session{
		id:        id,
		scan:      s.config.Name,
		names:     append([]string(nil), columns...),
		ranges:    ranges,
		totalRows: total,
		batchSize: int64(s.config.Performance.BatchSize),
		mem:       s.mem,
		logger:    logger,
		cursor:    newRangeCursor(ranges, mu),
		emitted:   metrics.NewThroughputTracker(s.config.Name),
	}
	sess.tracker = newCompletionTracker(ranges, total, mu, sess.horizonAdvanced)

	for _, name := range columns {
		spec, _ := s.catalog.Lookup(name)
		switch col := spec.(type) {
		case RunEncoded:
			sess.readers = append(sess.readers, &runReader{col: runCols[name]})
		case Regular:
			reader := s.regularReader(col, infos[name], sess)
			sess.readers = append(sess.readers, reader)
			if w, ok := reader.(waiter); ok {
				sess.waiters = append(sess.waiters, w)
			}
		}
	}

	span.SetAttribute("session_id", id)
	span.SetAttribute("total_rows", total)
	span.SetAttribute("selected_rows", ranges.Rows())
	metrics.SelectedRows.WithLabelValues(s.config.Name).Set(float64(ranges.Rows()))
	metrics.ActiveSessions.Inc()

	logger.Info("scan opened",
		zap.Strings("columns", columns),
		zap.Int("filters", len(filters)),
		zap.Int64("total_rows", total),
		zap.Int("ranges", len(ranges)),
		zap.Int64("selected_rows", ranges.Rows()))
	return sess, nil
}

// loadRunColumns loads the run metadata of every run-encoded column that is
// projected or filtered on.
func (s *Scanner) loadRunColumns(ctx context.Context, columns []string, filters []pushdown.Filter, total int64) (map[string]*runenc.Column, error) {
	needed := make(map[string]bool)
	for _, name := range columns {
		needed[name] = true
	}
	for _, f := range filters {
		needed[f.Column] = true
	}
	names := make([]string, 0, len(needed))
	for name := range needed {
		names = append(names, name)
	}
	sort.Strings(names)

	loaded := make(map[string]*runenc.Column)
	for _, name := range names {
		spec, ok := s.catalog.Lookup(name)
		if !ok {
			continue
		}
		re, ok := spec.(RunEncoded)
		if !ok {
			continue
		}
		col, err := runenc.LoadFromStore(ctx, re.Store, re.Name, re.StartsRef, re.ValuesRef, total)
		if err != nil {
			return nil, err
		}
		loaded[name] = col
	}
	return loaded, nil
}

func (s *Scanner) regularReader(col Regular, info store.Info, sess *Session) columnReader {
	logger := sess.logger
	direct := &directReader{name: col.Name, store: col.Store, ref: col.Ref, info: info}
	if !s.config.Cache.Enabled || info.Width != 1 || !info.Type.IsFixedWidth() {
		logReader(logger, col.Name, metrics.ModeDirect, 0)
		return direct
	}

	rows := chunkRows(
		store.ChunkHint(col.Store, col.Ref),
		int64(info.Type.Size()),
		int64(s.config.Cache.TargetChunkBytes),
		int64(s.config.Cache.MinChunkRows),
		int64(s.config.Performance.BatchSize),
	)
	reader, ok := cachedReaderFor(info.Type, CacheOptions{
		Column:    col.Name,
		Store:     col.Store,
		Ref:       col.Ref,
		ChunkRows: rows,
		Ranges:    sess.ranges,
		TotalRows: sess.totalRows,
		Horizon:   sess.tracker,
		Logger:    logger,
	})
	if !ok {
		return direct
	}
	logReader(logger, col.Name, metrics.ModeCache, rows)
	return reader
}
