package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/runscan/pkg/compression"
	"github.com/ajitpratap0/runscan/pkg/config"
	"github.com/ajitpratap0/runscan/pkg/store/blockfile"
	"github.com/ajitpratap0/runscan/pkg/store/parquetstore"
	"github.com/ajitpratap0/runscan/pkg/store/rawfile"
)

func newGenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a sample table and its catalog",
		Long: `Generate a sample table using every local storage layout:

  id         int64, raw memory-mapped file
  score      float64, compressed block file
  embedding  float32[4], raw file
  label      string, parquet
  reading    int32, parquet
  category   int32, run-encoded (starts raw, values block file)

The catalog is written to DIR/catalog.yaml.`,
		RunE: runGen,
	}
	f := cmd.Flags()
	f.String("dir", "", "Output directory (required)")
	f.Int64("rows", 1_000_000, "Number of rows")
	f.Int("runs", 100, "Number of category runs")
	f.String("codec", "lz4", "Block file codec (none, gzip, snappy, lz4, zstd, s2)")
	f.Int64("block-rows", 65536, "Rows per compressed block")
	f.Int64("row-group-rows", 131072, "Rows per parquet row group")
	f.String("parquet-codec", "snappy", "Parquet codec (none, snappy, gzip, zstd)")
	f.Int64("seed", 1, "Random seed")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

type genOptions struct {
	dir          string
	rows         int64
	runs         int
	codec        *compression.Config
	blockRows    int64
	rowGroupRows int64
	parquetCodec string
	seed         int64
}

func runGen(cmd *cobra.Command, _ []string) error {
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

	algo, err := compression.ParseAlgorithm(v.GetString("codec"))
	if err != nil {
		return err
	}
	opts := genOptions{
		dir:          v.GetString("dir"),
		rows:         v.GetInt64("rows"),
		runs:         v.GetInt("runs"),
		codec:        &compression.Config{Algorithm: algo, Level: compression.Default},
		blockRows:    v.GetInt64("block-rows"),
		rowGroupRows: v.GetInt64("row-group-rows"),
		parquetCodec: v.GetString("parquet-codec"),
		seed:         v.GetInt64("seed"),
	}
	path, err := generate(opts)
	if err != nil {
		return err
	}
	log.Info("table generated", zap.String("catalog", path), zap.Int64("rows", opts.rows))
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// generate writes the sample table and returns the catalog path.
func generate(o genOptions) (string, error) {
	if o.rows < 0 || o.runs < 1 || int64(o.runs) > max(o.rows, 1) {
		return "", fmt.Errorf("need 1 <= runs <= rows, got %d runs for %d rows", o.runs, o.rows)
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return "", err
	}
	rng := rand.New(rand.NewSource(o.seed))
	n := int(o.rows)

	ids := make([]int64, n)
	scores := make([]float64, n)
	embedding := make([]float32, n*4)
	labels := make([]string, n)
	readings := make([]int32, n)
	for i := 0; i < n; i++ {
		ids[i] = int64(i)
		scores[i] = rng.Float64() * 100
		for d := 0; d < 4; d++ {
			embedding[i*4+d] = rng.Float32()
		}
		labels[i] = fmt.Sprintf("item-%d", i%997)
		readings[i] = int32(rng.Intn(1000))
	}

	runs := o.runs
	if n == 0 {
		runs = 0
	}
	starts := make([]int64, runs)
	categories := make([]int32, runs)
	for r := 0; r < runs; r++ {
		starts[r] = int64(r) * o.rows / int64(runs)
		categories[r] = int32(r)
	}

	file := func(name string) string { return filepath.Join(o.dir, name) }
	steps := []struct {
		name  string
		write func() error
	}{
		{"id.i64", func() error { return rawfile.WriteFile(file("id.i64"), ids) }},
		{"score.blk", func() error { return blockfile.WriteFile(file("score.blk"), scores, 1, o.blockRows, o.codec) }},
		{"embedding.f32", func() error { return rawfile.WriteFile(file("embedding.f32"), embedding) }},
		{"events.parquet", func() error {
			return parquetstore.WriteFile(file("events.parquet"), []parquetstore.Column{
				{Name: "label", Values: labels, Width: 1},
				{Name: "reading", Values: readings, Width: 1},
			}, o.rowGroupRows, o.parquetCodec)
		}},
		{"category.starts", func() error { return rawfile.WriteFile(file("category.starts"), starts) }},
		{"category.values", func() error {
			return blockfile.WriteFile(file("category.values"), categories, 1, o.blockRows, o.codec)
		}},
	}
	for _, s := range steps {
		if err := s.write(); err != nil {
			return "", fmt.Errorf("write %s: %w", s.name, err)
		}
	}

	cat := &config.CatalogConfig{
		Name: filepath.Base(o.dir),
		Rows: o.rows,
		Columns: []config.ColumnConfig{
			{Name: "id", Kind: config.KindRegular, Source: &config.SourceConfig{Driver: config.DriverRaw, Path: file("id.i64"), Type: "int64"}},
			{Name: "score", Kind: config.KindRegular, Source: &config.SourceConfig{Driver: config.DriverBlock, Path: file("score.blk")}},
			{Name: "embedding", Kind: config.KindRegular, Source: &config.SourceConfig{Driver: config.DriverRaw, Path: file("embedding.f32"), Type: "float32", Dims: []int{4}}},
			{Name: "label", Kind: config.KindRegular, Source: &config.SourceConfig{Driver: config.DriverParquet, Path: file("events.parquet"), Column: "label"}},
			{Name: "reading", Kind: config.KindRegular, Source: &config.SourceConfig{Driver: config.DriverParquet, Path: file("events.parquet"), Column: "reading"}},
			{
				Name:      "category",
				Kind:      config.KindRunEncoded,
				RunStarts: &config.SourceConfig{Driver: config.DriverRaw, Path: file("category.starts"), Type: "int64"},
				Values:    &config.SourceConfig{Driver: config.DriverBlock, Path: file("category.values")},
			},
		},
	}
	path := file("catalog.yaml")
	if err := config.Save(path, cat); err != nil {
		return "", err
	}
	return path, nil
}
