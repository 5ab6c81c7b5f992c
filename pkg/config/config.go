// Package config defines the configuration of the scan engine and its CLI.
//
// The configuration is organized into logical sections:
//   - Performance: batch size and worker count
//   - Cache: chunk cache sizing for regular columns
//   - Observability: logging, metrics and tracing
//
// Example usage:
//
//	cfg := config.NewDefault("nightly-export")
//	cfg.Performance.BatchSize = 4096
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"runtime"
)

const (
	// DefaultBatchSize is the number of rows handed to a worker per batch
	DefaultBatchSize = 2048
	// DefaultTargetChunkBytes is the per-chunk byte budget when a store has no native block size
	DefaultTargetChunkBytes = 1 << 20
	// DefaultMinChunkRows floors the computed chunk size
	DefaultMinChunkRows = 2048
)

// Config is the top level configuration of a scan.
type Config struct {
	// Name identifies the scan in logs and metrics
	Name string `yaml:"name" json:"name"`

	// Performance settings control batch size and parallelism
	Performance PerformanceConfig `yaml:"performance" json:"performance"`

	// Cache settings for regular columns
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// PerformanceConfig contains throughput related settings.
type PerformanceConfig struct {
	// BatchSize is the maximum rows per batch
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// Workers defines the number of concurrent scan workers
	Workers int `yaml:"workers" json:"workers"`
}

// CacheConfig controls the two-chunk cache kept per regular column.
type CacheConfig struct {
	// Enabled turns the cache off when false; every batch then reads directly
	Enabled bool `yaml:"enabled" json:"enabled"`
	// TargetChunkBytes sizes a chunk when the store gives no hint
	TargetChunkBytes int `yaml:"target_chunk_bytes" json:"target_chunk_bytes"`
	// MinChunkRows is the smallest chunk in rows
	MinChunkRows int `yaml:"min_chunk_rows" json:"min_chunk_rows"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogEncoding is json or console
	LogEncoding string `yaml:"log_encoding" json:"log_encoding"`
	// LogFile additionally writes rotated JSON logs to this path
	LogFile string `yaml:"log_file" json:"log_file"`
	// EnableMetrics activates prometheus collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// MetricsAddr is the listen address of the metrics endpoint, empty to disable
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	// EnableTracing activates OpenTelemetry spans written to stderr
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
}

// NewDefault returns a configuration with defaults applied.
func NewDefault(name string) *Config {
	return &Config{
		Name: name,
		Performance: PerformanceConfig{
			BatchSize: DefaultBatchSize,
			Workers:   runtime.NumCPU(),
		},
		Cache: CacheConfig{
			Enabled:          true,
			TargetChunkBytes: DefaultTargetChunkBytes,
			MinChunkRows:     DefaultMinChunkRows,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			LogEncoding:   "json",
			EnableMetrics: true,
		},
	}
}

// Validate checks that values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Performance.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.Performance.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}
	if c.Cache.TargetChunkBytes <= 0 {
		return fmt.Errorf("target_chunk_bytes must be positive")
	}
	if c.Cache.MinChunkRows <= 0 {
		return fmt.Errorf("min_chunk_rows must be positive")
	}
	switch c.Observability.LogEncoding {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown log_encoding %q", c.Observability.LogEncoding)
	}
	return nil
}

// GetWorkers returns the number of workers, ensuring it's at least 1
func (p *PerformanceConfig) GetWorkers() int {
	if p.Workers <= 0 {
		return runtime.NumCPU()
	}
	return p.Workers
}
