package metrics

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Metrics holds the ingestion batching core's metrics for Prometheus export.
type Metrics struct {
	startTime time.Time

	// Cassandra ingestion batching core
	cassandraEventsTotal            atomic.Int64
	cassandraEventsSkippedTTLTotal  atomic.Int64
	cassandraBatchesSubmittedTotal  atomic.Int64
	cassandraBatchesFailedTotal     atomic.Int64
	cassandraBatchReductionsTotal   atomic.Int64
	cassandraRowKeyCacheHitsTotal   atomic.Int64
	cassandraRowKeyCacheMissesTotal atomic.Int64
	cassandraMetricCacheHitsTotal   atomic.Int64
	cassandraMetricCacheMissesTotal atomic.Int64
	cassandraTerminalFailuresTotal  atomic.Int64

	logger zerolog.Logger
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			startTime: time.Now(),
		}
	})
	return instance
}

// Init initializes the metrics with a logger
func Init(logger zerolog.Logger) *Metrics {
	m := Get()
	m.logger = logger.With().Str("component", "metrics").Logger()
	m.logger.Info().Msg("Metrics collector initialized")
	return m
}

// Cassandra ingestion batching core metrics
func (m *Metrics) IncCassandraEvents(count int64) { m.cassandraEventsTotal.Add(count) }
func (m *Metrics) IncCassandraEventsSkippedTTL()  { m.cassandraEventsSkippedTTLTotal.Add(1) }
func (m *Metrics) IncCassandraBatchesSubmitted()  { m.cassandraBatchesSubmittedTotal.Add(1) }
func (m *Metrics) IncCassandraBatchesFailed()     { m.cassandraBatchesFailedTotal.Add(1) }
func (m *Metrics) IncCassandraBatchReductions()   { m.cassandraBatchReductionsTotal.Add(1) }
func (m *Metrics) IncCassandraRowKeyCacheHit()    { m.cassandraRowKeyCacheHitsTotal.Add(1) }
func (m *Metrics) IncCassandraRowKeyCacheMiss()   { m.cassandraRowKeyCacheMissesTotal.Add(1) }
func (m *Metrics) IncCassandraMetricCacheHit()    { m.cassandraMetricCacheHitsTotal.Add(1) }
func (m *Metrics) IncCassandraMetricCacheMiss()   { m.cassandraMetricCacheMissesTotal.Add(1) }
func (m *Metrics) IncCassandraTerminalFailures()  { m.cassandraTerminalFailuresTotal.Add(1) }

// Snapshot returns all metrics as a map (for JSON endpoint)
func (m *Metrics) Snapshot() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		// Process info
		"uptime_seconds": time.Since(m.startTime).Seconds(),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
		"num_cpu":        runtime.NumCPU(),
		"gomaxprocs":     runtime.GOMAXPROCS(0),

		// Memory (Go runtime)
		"memory_alloc_bytes":       memStats.Alloc,
		"memory_total_alloc_bytes": memStats.TotalAlloc,
		"memory_sys_bytes":         memStats.Sys,
		"memory_heap_alloc_bytes":  memStats.HeapAlloc,
		"memory_heap_sys_bytes":    memStats.HeapSys,
		"memory_heap_inuse_bytes":  memStats.HeapInuse,
		"memory_stack_inuse_bytes": memStats.StackInuse,
		"gc_cycles":                memStats.NumGC,
		"gc_pause_total_ns":        memStats.PauseTotalNs,

		// Cassandra ingestion batching core
		"cassandra_events_total":              m.cassandraEventsTotal.Load(),
		"cassandra_events_skipped_ttl_total":   m.cassandraEventsSkippedTTLTotal.Load(),
		"cassandra_batches_submitted_total":    m.cassandraBatchesSubmittedTotal.Load(),
		"cassandra_batches_failed_total":       m.cassandraBatchesFailedTotal.Load(),
		"cassandra_batch_reductions_total":     m.cassandraBatchReductionsTotal.Load(),
		"cassandra_row_key_cache_hits_total":   m.cassandraRowKeyCacheHitsTotal.Load(),
		"cassandra_row_key_cache_misses_total": m.cassandraRowKeyCacheMissesTotal.Load(),
		"cassandra_metric_cache_hits_total":    m.cassandraMetricCacheHitsTotal.Load(),
		"cassandra_metric_cache_misses_total":  m.cassandraMetricCacheMissesTotal.Load(),
		"cassandra_terminal_failures_total":    m.cassandraTerminalFailuresTotal.Load(),
	}
}

// PrometheusFormat returns metrics in Prometheus text exposition format
func (m *Metrics) PrometheusFormat() string {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptimeSeconds := time.Since(m.startTime).Seconds()

	var b []byte
	b = append(b, "# HELP arc_uptime_seconds Time since the process started\n"...)
	b = append(b, "# TYPE arc_uptime_seconds gauge\n"...)
	b = appendMetric(b, "arc_uptime_seconds", uptimeSeconds)

	b = append(b, "# HELP arc_goroutines Number of goroutines\n"...)
	b = append(b, "# TYPE arc_goroutines gauge\n"...)
	b = appendMetric(b, "arc_goroutines", float64(runtime.NumGoroutine()))

	b = append(b, "# HELP arc_memory_alloc_bytes Current allocated memory\n"...)
	b = append(b, "# TYPE arc_memory_alloc_bytes gauge\n"...)
	b = appendMetric(b, "arc_memory_alloc_bytes", float64(memStats.Alloc))

	b = append(b, "# HELP arc_memory_heap_alloc_bytes Heap memory allocated\n"...)
	b = append(b, "# TYPE arc_memory_heap_alloc_bytes gauge\n"...)
	b = appendMetric(b, "arc_memory_heap_alloc_bytes", float64(memStats.HeapAlloc))

	b = append(b, "# HELP arc_memory_sys_bytes Total memory obtained from system\n"...)
	b = append(b, "# TYPE arc_memory_sys_bytes gauge\n"...)
	b = appendMetric(b, "arc_memory_sys_bytes", float64(memStats.Sys))

	b = append(b, "# HELP arc_gc_cycles_total Total number of GC cycles\n"...)
	b = append(b, "# TYPE arc_gc_cycles_total counter\n"...)
	b = appendMetric(b, "arc_gc_cycles_total", float64(memStats.NumGC))

	// Cassandra ingestion batching core metrics
	b = append(b, "# HELP arc_cassandra_events_total Total data point events processed\n"...)
	b = append(b, "# TYPE arc_cassandra_events_total counter\n"...)
	b = appendMetric(b, "arc_cassandra_events_total", float64(m.cassandraEventsTotal.Load()))

	b = append(b, "# HELP arc_cassandra_events_skipped_ttl_total Events dropped for having an already-expired aligned TTL\n"...)
	b = append(b, "# TYPE arc_cassandra_events_skipped_ttl_total counter\n"...)
	b = appendMetric(b, "arc_cassandra_events_skipped_ttl_total", float64(m.cassandraEventsSkippedTTLTotal.Load()))

	b = append(b, "# HELP arc_cassandra_batches_submitted_total Batches successfully submitted to the backend\n"...)
	b = append(b, "# TYPE arc_cassandra_batches_submitted_total counter\n"...)
	b = appendMetric(b, "arc_cassandra_batches_submitted_total", float64(m.cassandraBatchesSubmittedTotal.Load()))

	b = append(b, "# HELP arc_cassandra_batches_failed_total Batch submissions that returned a backend error\n"...)
	b = append(b, "# TYPE arc_cassandra_batches_failed_total counter\n"...)
	b = appendMetric(b, "arc_cassandra_batches_failed_total", float64(m.cassandraBatchesFailedTotal.Load()))

	b = append(b, "# HELP arc_cassandra_batch_reductions_total Handler invocations that finished with a reduced batch limit\n"...)
	b = append(b, "# TYPE arc_cassandra_batch_reductions_total counter\n"...)
	b = appendMetric(b, "arc_cassandra_batch_reductions_total", float64(m.cassandraBatchReductionsTotal.Load()))

	b = append(b, "# HELP arc_cassandra_row_key_cache_hits_total Row key cache lookups that found an existing entry\n"...)
	b = append(b, "# TYPE arc_cassandra_row_key_cache_hits_total counter\n"...)
	b = appendMetric(b, "arc_cassandra_row_key_cache_hits_total", float64(m.cassandraRowKeyCacheHitsTotal.Load()))

	b = append(b, "# HELP arc_cassandra_row_key_cache_misses_total Row key cache lookups that inserted a new entry\n"...)
	b = append(b, "# TYPE arc_cassandra_row_key_cache_misses_total counter\n"...)
	b = appendMetric(b, "arc_cassandra_row_key_cache_misses_total", float64(m.cassandraRowKeyCacheMissesTotal.Load()))

	b = append(b, "# HELP arc_cassandra_metric_cache_hits_total Metric name cache lookups that found an existing entry\n"...)
	b = append(b, "# TYPE arc_cassandra_metric_cache_hits_total counter\n"...)
	b = appendMetric(b, "arc_cassandra_metric_cache_hits_total", float64(m.cassandraMetricCacheHitsTotal.Load()))

	b = append(b, "# HELP arc_cassandra_metric_cache_misses_total Metric name cache lookups that inserted a new entry\n"...)
	b = append(b, "# TYPE arc_cassandra_metric_cache_misses_total counter\n"...)
	b = appendMetric(b, "arc_cassandra_metric_cache_misses_total", float64(m.cassandraMetricCacheMissesTotal.Load()))

	b = append(b, "# HELP arc_cassandra_terminal_failures_total Handler invocations that exhausted retries and dumped events\n"...)
	b = append(b, "# TYPE arc_cassandra_terminal_failures_total counter\n"...)
	b = appendMetric(b, "arc_cassandra_terminal_failures_total", float64(m.cassandraTerminalFailuresTotal.Load()))

	return string(b)
}

// Helper functions for Prometheus format
func appendMetric(b []byte, name string, value float64) []byte {
	b = append(b, name...)
	b = append(b, ' ')
	b = appendFloat(b, value)
	b = append(b, '\n')
	return b
}

func appendFloat(b []byte, v float64) []byte {
	if v == float64(int64(v)) {
		return appendInt(b, int64(v))
	}
	intPart := int64(v)
	fracPart := int64((v - float64(intPart)) * 1000000)
	if fracPart < 0 {
		fracPart = -fracPart
	}
	b = appendInt(b, intPart)
	b = append(b, '.')
	if fracPart < 100000 {
		b = append(b, '0')
	}
	if fracPart < 10000 {
		b = append(b, '0')
	}
	if fracPart < 1000 {
		b = append(b, '0')
	}
	if fracPart < 100 {
		b = append(b, '0')
	}
	if fracPart < 10 {
		b = append(b, '0')
	}
	b = appendInt(b, fracPart)
	return b
}

func appendInt(b []byte, v int64) []byte {
	if v < 0 {
		b = append(b, '-')
		v = -v
	}
	if v == 0 {
		return append(b, '0')
	}
	var digits [20]byte
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return append(b, digits[i:]...)
}
