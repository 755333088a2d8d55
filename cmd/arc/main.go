// Command arc runs the wide-column ingestion batching core standalone: it
// loads configuration, opens the backend session, wires the batch handler
// pool, and serves Prometheus/JSON metrics until told to shut down.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rverma-nsl/kairosdb/internal/cassandra"
	"github.com/rverma-nsl/kairosdb/internal/config"
	"github.com/rverma-nsl/kairosdb/internal/logger"
	"github.com/rverma-nsl/kairosdb/internal/metrics"
	"github.com/rverma-nsl/kairosdb/internal/shutdown"
)

// Version is set at build time
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", Version).Msg("Starting ingestion batching core")

	metrics.Init(log.Logger)
	metrics.GetTimeSeriesCollector()

	shutdownCoordinator := shutdown.New(30*time.Second, log.Logger)

	if !cfg.Cassandra.Enabled {
		log.Warn().Msg("cassandra.enabled is false; nothing to ingest, exiting")
		return
	}

	startCassandra(cfg, shutdownCoordinator, log.Logger)

	httpSrv := startMetricsServer()
	shutdownCoordinator.RegisterHook("metrics-http-server", func(ctx context.Context) error {
		return httpSrv.Shutdown(ctx)
	}, shutdown.PriorityStorage)

	sig := shutdownCoordinator.WaitForSignal()
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	if err := shutdownCoordinator.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Shutdown completed with errors")
	}
}

// startCassandra opens the backend session and wires the batch handler
// pool, registering both with the shutdown coordinator so a signal drains
// in-flight batches before the process exits.
func startCassandra(cfg *config.Config, shutdownCoordinator *shutdown.Coordinator, base zerolog.Logger) *cassandra.Composition {
	chSubmitter, err := cassandra.NewChSubmitter(cassandra.SubmitterConfig{
		ContactPoints:    cfg.Cassandra.ContactPoints,
		Keyspace:         cfg.Cassandra.Keyspace,
		ConsistencyLevel: cfg.Cassandra.ConsistencyLevel,
	}, logger.Get("cassandra"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open wide-column backend session")
	}
	shutdownCoordinator.Register("cassandra-submitter", chSubmitter, shutdown.PriorityStorage)

	composition := cassandra.NewComposition(cfg, chSubmitter, logger.Get("cassandra"))
	shutdownCoordinator.Register("cassandra-handler-pool", composition.Pool, shutdown.PriorityCassandra)

	log.Info().
		Strs("contact_points", cfg.Cassandra.ContactPoints).
		Str("keyspace", cfg.Cassandra.Keyspace).
		Str("write_cluster", cfg.Cassandra.WriteClusterName).
		Int("handler_workers", cfg.Cassandra.HandlerWorkers).
		Msg("Wide-column ingestion batching core initialized")

	return composition
}

// startMetricsServer exposes the Prometheus and JSON metrics endpoints the
// batch handler pool's counters feed, plus a diagnostics route over the
// in-memory log ring buffer so an operator can inspect recent warnings
// from the retry loop without external log aggregation.
func startMetricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Write([]byte(metrics.Get().PrometheusFormat()))
	})
	mux.HandleFunc("/metrics/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metrics.Get().Snapshot())
	})
	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		sinceMinutes := 60
		if v := r.URL.Query().Get("since_minutes"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				sinceMinutes = n
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(logger.GetBuffer().GetRecent(limit, r.URL.Query().Get("level"), sinceMinutes))
	})

	srv := &http.Server{
		Addr:    "0.0.0.0:9090",
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server stopped unexpectedly")
		}
	}()
	log.Info().Str("addr", srv.Addr).Msg("Metrics server listening")
	return srv
}
