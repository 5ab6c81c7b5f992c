// Package runscan is a parallel columnar scan engine for tables that mix
// regular columns with run-encoded columns.
//
// # Architecture
//
// A table is described by a catalog of columns:
//   - Regular columns are read row by row from a column store (memory-mapped
//     raw files, compressed block files, parquet, S3 or GCS objects)
//   - Run-encoded columns are stored as run starts plus one value per run and
//     are expanded in memory, never fetched per row
//
// Comparisons on run-encoded columns are pushed down: whole runs that cannot
// match are pruned into a sorted list of valid row ranges before any regular
// column is read. Worker goroutines then claim batches from a shared cursor
// that never crosses a range boundary. Every regular column sits behind a
// two-chunk cache that a single fetcher refills once all workers have moved
// past the older chunk, so each selected row is fetched once.
//
// # Quick Start
//
//	opened, _ := catalog.Load(ctx, "table.yaml", logger.Get())
//	defer opened.Close()
//
//	sess, _ := scan.New(opened.Catalog, config.NewDefault("demo"), logger.Get()).
//	    OpenScan(ctx, []string{"id", "score"},
//	        []pushdown.Filter{{Column: "category", Op: pushdown.Equal, Value: 3}})
//	defer sess.Close()
//
//	err := sess.Drain(ctx, 8, func(ctx context.Context, b *scan.Batch) error {
//	    defer b.Release()
//	    return process(b.Record())
//	})
//
// # Key Packages
//
//	pkg/scan        - cursor, completion tracker, chunk cache, scanner and sessions
//	pkg/pushdown    - filters, predicate parsing and range pruning
//	pkg/runenc      - run-encoded column loading and batch emission
//	pkg/rowrange    - half-open row ranges and sorted range lists
//	pkg/store/...   - column stores (raw, block, parquet, object, memory)
//	pkg/catalog     - YAML manifests bound to stores
//	pkg/config      - scan configuration with environment substitution
//	pkg/errors      - structured error handling
//	pkg/logger      - structured logging
//	pkg/metrics     - prometheus collectors
//
// The runscan command in cmd/runscan scans, inspects and generates tables.
package runscan
