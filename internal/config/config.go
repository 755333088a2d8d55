package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the ingestion batching core.
type Config struct {
	Log       LogConfig
	Metrics   MetricsConfig
	Cassandra CassandraConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	TimeseriesRetentionMinutes int // Retention period for timeseries data in minutes (default: 30, max: 1440)
	TimeseriesIntervalSeconds  int // Collection interval in seconds (default: 5)
}

// CassandraConfig holds configuration for the wide-column ingestion backend
// (row-keyed data point storage plus the row-key/metric-name/time indexes).
type CassandraConfig struct {
	Enabled                 bool     // Run the wide-column ingestion core; cmd/arc exits when false
	ContactPoints           []string // Backend cluster contact points (host:port)
	Keyspace                string   // Keyspace/database holding the data point tables
	WriteClusterName        string   // Logical cluster name embedded in every row key
	ConsistencyLevel        string   // QUORUM, LOCAL_QUORUM, ONE, ...
	DefaultTtlSec           int      // Default column TTL when an event carries none
	AlignTtlWithTimestamp   bool     // Subtract data point age from TTL before writing
	ForceDefaultTtl         bool     // Ignore per-event TTL, always use DefaultTtlSec
	RowWidthMs              int64    // Width of one wide row bucket, in milliseconds
	CacheCapacityRowKey     int      // Max entries in the row-key dedupe cache
	CacheCapacityMetricName int      // Max entries in the metric-name dedupe cache
	MinBatchLimit           int      // Retry floor below which a failure is terminal
	HandlerWorkers          int      // Size of the bounded batch-handler worker pool
	HandlerQueueSize        int      // Loaded but not read: the handler pool has no queue, Submit blocks once HandlerWorkers calls run
	FailedEventTraceLog     bool     // Dump events to the failed-event log on terminal failure
}

// Load loads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("ARC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("arc")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/arc/")
	v.AddConfigPath("$HOME/.arc/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Metrics: MetricsConfig{
			TimeseriesRetentionMinutes: v.GetInt("metrics.timeseries_retention_minutes"),
			TimeseriesIntervalSeconds:  v.GetInt("metrics.timeseries_interval_seconds"),
		},
		Cassandra: CassandraConfig{
			Enabled:                 v.GetBool("cassandra.enabled"),
			ContactPoints:           v.GetStringSlice("cassandra.contact_points"),
			Keyspace:                v.GetString("cassandra.keyspace"),
			WriteClusterName:        v.GetString("cassandra.write_cluster_name"),
			ConsistencyLevel:        v.GetString("cassandra.consistency_level"),
			DefaultTtlSec:           v.GetInt("cassandra.default_ttl_sec"),
			AlignTtlWithTimestamp:   v.GetBool("cassandra.align_ttl_with_timestamp"),
			ForceDefaultTtl:         v.GetBool("cassandra.force_default_ttl"),
			RowWidthMs:              v.GetInt64("cassandra.row_width_ms"),
			CacheCapacityRowKey:     v.GetInt("cassandra.cache_capacity_row_key"),
			CacheCapacityMetricName: v.GetInt("cassandra.cache_capacity_metric_name"),
			MinBatchLimit:           v.GetInt("cassandra.min_batch_limit"),
			HandlerWorkers:          v.GetInt("cassandra.handler_workers"),
			HandlerQueueSize:        v.GetInt("cassandra.handler_queue_size"),
			FailedEventTraceLog:     v.GetBool("cassandra.failed_event_trace_log"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Metrics defaults
	v.SetDefault("metrics.timeseries_retention_minutes", 30) // 30 minutes retention
	v.SetDefault("metrics.timeseries_interval_seconds", 5)   // Collect every 5 seconds

	// Cassandra ingestion backend defaults
	v.SetDefault("cassandra.enabled", false)
	v.SetDefault("cassandra.contact_points", []string{"127.0.0.1:9042"})
	v.SetDefault("cassandra.keyspace", "kairosdb")
	v.SetDefault("cassandra.write_cluster_name", "default")
	v.SetDefault("cassandra.consistency_level", "LOCAL_QUORUM")
	v.SetDefault("cassandra.default_ttl_sec", 0) // 0 = no expiry
	v.SetDefault("cassandra.align_ttl_with_timestamp", false)
	v.SetDefault("cassandra.force_default_ttl", false)
	v.SetDefault("cassandra.row_width_ms", 1814400000) // 3 weeks
	v.SetDefault("cassandra.cache_capacity_row_key", 50000)
	v.SetDefault("cassandra.cache_capacity_metric_name", 200000)
	v.SetDefault("cassandra.min_batch_limit", 10)
	v.SetDefault("cassandra.handler_workers", getDefaultHandlerWorkers())
	v.SetDefault("cassandra.handler_queue_size", getDefaultHandlerWorkers()*4)
	v.SetDefault("cassandra.failed_event_trace_log", false)
}

func getDefaultHandlerWorkers() int {
	n := runtime.NumCPU() * 2
	if n < 4 {
		return 4
	}
	if n > 32 {
		return 32
	}
	return n
}
