package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/runscan/internal/pipeline"
	"github.com/ajitpratap0/runscan/pkg/catalog"
	"github.com/ajitpratap0/runscan/pkg/json"
	"github.com/ajitpratap0/runscan/pkg/pushdown"
	"github.com/ajitpratap0/runscan/pkg/scan"
)

func newScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan columns of a catalog",
		Long: `Scan the selected columns of a catalog and write the rows as JSON.

Comparisons on run-encoded columns are pushed down and prune whole runs.
Every predicate is also evaluated per row, so the output is exact.

Example:
  runscan scan --catalog table.yaml --columns id,score --where "category = 3"`,
		RunE: runScan,
	}

	f := cmd.Flags()
	f.String("catalog", "", "Path to the catalog manifest (required)")
	f.StringSlice("columns", nil, "Columns to emit, all when empty")
	f.String("where", "", "Predicate, e.g. \"category BETWEEN 2 AND 4 AND score > 1.5\"")
	f.String("format", "jsonl", "Output format (jsonl, array, count)")
	f.Int64("limit", 0, "Stop after this many rows, 0 for all")
	f.Int("workers", 0, "Concurrent batch readers, defaults to the number of CPUs")
	f.Int("batch-size", 0, "Maximum rows per batch")
	f.Bool("no-cache", false, "Read regular columns directly instead of through the chunk cache")
	f.Int("chunk-bytes", 0, "Target cache chunk size when the store has no native block size")
	f.String("metrics-addr", "", "Serve prometheus metrics on this address, e.g. :9090")
	f.Bool("trace", false, "Write OpenTelemetry spans to stderr")
	f.Duration("timeout", 0, "Abort the scan after this duration")
	f.Duration("progress", 0, "Log throughput at this interval")
	_ = cmd.MarkFlagRequired("catalog")
	return cmd
}

type countSink struct{ rows int64 }

func (s *countSink) WriteRows(rows [][]any) error {
	s.rows += int64(len(rows))
	return nil
}

func runScan(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	log, cleanup, err := setup(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := commandContext(v.GetDuration("timeout"))
	defer cancel()

	opened, err := catalog.Load(ctx, v.GetString("catalog"), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := opened.Close(); err != nil {
			log.Warn("failed to close catalog", zap.Error(err))
		}
	}()
	cat := opened.Catalog

	output := v.GetStringSlice("columns")
	if len(output) == 0 {
		output = cat.Names()
	}

	expr, err := pushdown.ParsePredicate(v.GetString("where"))
	if err != nil {
		return fmt.Errorf("invalid --where: %w", err)
	}
	var claimed []pushdown.Filter
	scanned := output
	if expr != nil {
		var unclaimed []pushdown.Expr
		claimed, unclaimed = pushdown.Claim(expr, func(column string) bool {
			col, ok := cat.Lookup(column)
			if !ok {
				return false
			}
			_, runEncoded := col.(scan.RunEncoded)
			return runEncoded
		})
		log.Info("predicate claimed",
			zap.Int("claimed", len(claimed)),
			zap.Int("unclaimed", len(unclaimed)))
		scanned = union(output, pushdown.Columns(expr))
	}

	sess, err := scan.New(cat, cfg, log).OpenScan(ctx, scanned, claimed)
	if err != nil {
		return err
	}
	defer sess.Close()

	var sink pipeline.Sink
	var writer *json.RowWriter
	counter := &countSink{}
	switch format := v.GetString("format"); format {
	case "count":
		sink = counter
	default:
		f, ok := json.ParseFormat(format)
		if !ok {
			return fmt.Errorf("unknown format %q", format)
		}
		writer, err = json.NewRowWriter(cmd.OutOrStdout(), f, output)
		if err != nil {
			return err
		}
		sink = writer
	}

	p := pipeline.New(sess, sink, &pipeline.Config{
		Workers:          cfg.Performance.GetWorkers(),
		BatchRows:        cfg.Performance.BatchSize,
		Output:           output,
		Limit:            v.GetInt64("limit"),
		ProgressInterval: v.GetDuration("progress"),
	}, log)
	if expr != nil {
		p.AddFilter(func(row pushdown.Row) (bool, error) {
			return pushdown.Evaluate(expr, row)
		})
	}

	start := time.Now()
	stats, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), counter.rows)
	}

	log.Info("scan finished",
		zap.String("session", sess.ID()),
		zap.Int64("total_rows", sess.RowCountEstimate()),
		zap.Int64("selected_rows", sess.SelectedRows()),
		zap.Int64("rows_written", stats.Written),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// union appends the names of extra missing from base.
func union(base, extra []string) []string {
	out := append([]string(nil), base...)
	seen := make(map[string]bool, len(out))
	for _, c := range out {
		seen[c] = true
	}
	for _, c := range extra {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
