// Package metrics provides Prometheus collectors for the scan engine.
//
// # Basic Usage
//
//	// Count a batch handed to a consumer
//	metrics.BatchesEmitted.WithLabelValues(scan).Inc()
//	metrics.RowsEmitted.WithLabelValues(scan).Add(float64(n))
//
//	// Time a store read
//	timer := metrics.NewTimer("refill")
//	values, err := st.ReadRows(ctx, ref, start, count)
//	metrics.ReadLatency.WithLabelValues(column, metrics.ModeCache).Observe(timer.Stop().Seconds())
//
//	// Track throughput of a scan
//	tracker := metrics.NewThroughputTracker(scan)
//	tracker.Increment(int64(batch.Len()))
//	rowsPerSec := tracker.GetAndReset()
//
// Collectors are registered with the default registry on package load.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Read modes used as the mode label of ReadLatency.
const (
	ModeCache  = "cache"
	ModeDirect = "direct"
)

var (
	// BatchesEmitted counts batches returned by sessions.
	// Labels: scan (configured scan name)
	BatchesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runscan_batches_emitted_total",
			Help: "Total number of batches emitted",
		},
		[]string{"scan"},
	)

	// RowsEmitted counts rows returned by sessions.
	RowsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runscan_rows_emitted_total",
			Help: "Total number of rows emitted",
		},
		[]string{"scan"},
	)

	// SelectedRows records the rows left after pruning at scan open.
	SelectedRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "runscan_selected_rows",
			Help: "Rows inside the pruned row ranges of the last opened scan",
		},
		[]string{"scan"},
	)

	// ActiveSessions tracks open scan sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runscan_active_sessions",
			Help: "Number of open scan sessions",
		},
	)

	// CacheFetches counts chunk refills issued against the column store.
	// Labels: column
	CacheFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runscan_cache_fetches_total",
			Help: "Total number of chunk refills",
		},
		[]string{"column"},
	)

	// CacheFetchedRows counts rows loaded into chunks.
	CacheFetchedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runscan_cache_fetched_rows_total",
			Help: "Total number of rows loaded into chunk caches",
		},
		[]string{"column"},
	)

	// CacheWaits counts readers that blocked on another thread's refill or
	// on the eviction horizon.
	CacheWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runscan_cache_waits_total",
			Help: "Total number of cache reader waits",
		},
		[]string{"column"},
	)

	// DirectReads counts per-batch reads of non-cacheable columns.
	DirectReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runscan_direct_reads_total",
			Help: "Total number of direct column reads",
		},
		[]string{"column"},
	)

	// ReadErrors counts failed store reads.
	ReadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runscan_read_errors_total",
			Help: "Total number of failed column store reads",
		},
		[]string{"column", "mode"},
	)

	// ReadLatency tracks column store read latency in seconds.
	// Labels: column, mode (cache/direct)
	ReadLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "runscan_read_latency_seconds",
			Help: "Column store read latency in seconds",
			Buckets: []float64{
				1e-5, // 10μs - memory stores
				1e-4, // 100μs - mapped files
				1e-3, // 1ms - local decompression
				1e-2, // 10ms
				1e-1, // 100ms - object stores
				1,    // 1s
			},
		},
		[]string{"column", "mode"},
	)

	// Throughput tracks rows per second of a scan.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "runscan_throughput_rows_per_second",
			Help: "Current throughput in rows per second",
		},
		[]string{"scan"},
	)
)

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the name the timer was created with.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called
// repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks throughput (rows per second) over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64     // Rows since last reset
	total     int64     // Rows since creation
	lastReset time.Time // Time of last reset
	scan      string
}

// NewThroughputTracker creates a throughput tracker for a scan.
func NewThroughputTracker(scan string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		scan:      scan,
	}
}

// Increment adds n to the row count. Safe for concurrent use.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
	t.total += n
}

// Total returns the rows counted since creation.
func (t *ThroughputTracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// GetAndReset calculates the current throughput, updates the Prometheus
// gauge, resets the window and returns the throughput.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	// Reset for next period
	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.scan).Set(throughput)

	return throughput
}
