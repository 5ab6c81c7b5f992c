package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/runscan/pkg/config"
	"github.com/ajitpratap0/runscan/pkg/logger"
	"github.com/ajitpratap0/runscan/pkg/observability"
)

var version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "runscan",
		Short: "runscan - parallel columnar scans with run-length pruning",
		Long: `runscan reads tables made of regular columns and run-encoded columns.
Filters on run-encoded columns are pushed down into row ranges, so only
selected rows are fetched from files or object storage.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "Path to a scan configuration YAML file")
	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-encoding", "console", "Log encoding (json, console)")
	root.PersistentFlags().String("log-file", "", "Also write JSON logs to this rotated file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "runscan v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(newScanCommand(), newInspectCommand(), newGenCommand())
	return root
}

// newViper binds the flags of cmd and RUNSCAN_* environment variables.
// Dashes in flag names become underscores: --batch-size is RUNSCAN_BATCH_SIZE.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("RUNSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	return v, bindErr
}

// loadConfig layers the config file, environment and flags, in increasing
// precedence.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.NewDefault("runscan")
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		if cfg.Name == "" {
			cfg.Name = "runscan"
		}
	}

	if v.IsSet("batch-size") {
		cfg.Performance.BatchSize = v.GetInt("batch-size")
	}
	if v.IsSet("workers") {
		cfg.Performance.Workers = v.GetInt("workers")
	}
	if v.IsSet("no-cache") {
		cfg.Cache.Enabled = !v.GetBool("no-cache")
	}
	if v.IsSet("chunk-bytes") {
		cfg.Cache.TargetChunkBytes = v.GetInt("chunk-bytes")
	}
	if v.IsSet("log-level") || cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = v.GetString("log-level")
	}
	if v.IsSet("log-encoding") || v.GetString("config") == "" {
		cfg.Observability.LogEncoding = v.GetString("log-encoding")
	}
	if v.IsSet("log-file") {
		cfg.Observability.LogFile = v.GetString("log-file")
	}
	if v.IsSet("metrics-addr") {
		cfg.Observability.MetricsAddr = v.GetString("metrics-addr")
	}
	if v.IsSet("trace") {
		cfg.Observability.EnableTracing = v.GetBool("trace")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup initializes logging, the metrics endpoint and tracing. The returned
// function releases them.
func setup(cfg *config.Config) (*zap.Logger, func(), error) {
	obs := cfg.Observability
	if err := logger.Init(logger.Config{
		Level:    obs.LogLevel,
		Encoding: obs.LogEncoding,
		File:     obs.LogFile,
	}); err != nil {
		return nil, nil, err
	}
	log := logger.With(zap.String("component", "runscan-cli"), zap.String("scan", cfg.Name))

	var cleanups []func()
	if obs.EnableMetrics && obs.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: obs.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		log.Info("serving metrics", zap.String("addr", obs.MetricsAddr))
		cleanups = append(cleanups, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})
	}

	if obs.EnableTracing {
		shutdown, err := observability.InitTracing(observability.TracingConfig{
			ServiceName:    "runscan",
			ServiceVersion: version,
			SamplingRate:   1,
		})
		if err != nil {
			return nil, nil, err
		}
		cleanups = append(cleanups, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Warn("failed to flush traces", zap.Error(err))
			}
		})
	}

	return log, func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		_ = logger.Sync()
	}, nil
}

// commandContext is cancelled on SIGINT, SIGTERM or after timeout.
func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}
