package cassandra

import (
	"github.com/rs/zerolog"

	"github.com/rverma-nsl/kairosdb/internal/config"
	"github.com/rverma-nsl/kairosdb/internal/eventbus"
)

// Composition holds every long-lived object the ingestion batching core
// needs, wired once at startup. It replaces the framework-driven Guice
// object graph of CoreModule.configure() with an explicit constructor,
// matching the way cmd/arc/main.go wires its own subsystems by hand.
type Composition struct {
	RowSpec RowSpec

	RowKeyCache     *BoundedCache[string]
	MetricNameCache *BoundedCache[TimedString]

	RowKeyBus         *eventbus.Bus[RowKeyEvent]
	BatchReductionBus *eventbus.Bus[BatchReductionEvent]

	Submitter Submitter
	Pool      *HandlerPool
}

// NewComposition builds the caches, publishers, and handler pool for one
// write cluster around the given submitter, and returns them wired together. cfg.Cassandra
// must be populated (internal/config.Load). submitter is supplied by the
// caller so tests can pass a fake without opening a real backend
// connection.
func NewComposition(cfg *config.Config, submitter Submitter, logger zerolog.Logger) *Composition {
	cc := cfg.Cassandra

	rowSpec := NewRowSpec(cc.RowWidthMs)

	rowKeyCache := NewBoundedCache[string](cc.CacheCapacityRowKey)
	metricNameCache := NewBoundedCache[TimedString](cc.CacheCapacityMetricName)

	rowKeyBus := eventbus.New[RowKeyEvent]("row-key", 0, logger)
	batchReductionBus := eventbus.New[BatchReductionEvent]("batch-reduction", 0, logger)

	handler := NewBatchHandler(
		HandlerConfig{
			ClusterName:           cc.WriteClusterName,
			DefaultTtlSec:         cc.DefaultTtlSec,
			AlignTtlWithTimestamp: cc.AlignTtlWithTimestamp,
			ForceDefaultTtl:       cc.ForceDefaultTtl,
			MinBatchLimit:         cc.MinBatchLimit,
			FailedEventTraceLog:   cc.FailedEventTraceLog,
		},
		rowSpec,
		submitter,
		rowKeyCache,
		metricNameCache,
		rowKeyBus,
		batchReductionBus,
		logger,
	)

	pool := NewHandlerPool(handler, cc.HandlerWorkers, logger)

	return &Composition{
		RowSpec:           rowSpec,
		RowKeyCache:       rowKeyCache,
		MetricNameCache:   metricNameCache,
		RowKeyBus:         rowKeyBus,
		BatchReductionBus: batchReductionBus,
		Submitter:         submitter,
		Pool:              pool,
	}
}
