package cassandra

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/rverma-nsl/kairosdb/internal/eventbus"
	"github.com/rverma-nsl/kairosdb/internal/metrics"
)

// HandlerConfig carries the per-cluster ingestion settings the handler
// consults for every event (spec.md §6 Configuration).
type HandlerConfig struct {
	ClusterName           string
	DefaultTtlSec         int
	AlignTtlWithTimestamp bool
	ForceDefaultTtl       bool
	MinBatchLimit         int
	FailedEventTraceLog   bool
}

// BatchHandler is the retry-driven orchestrator: it partitions events into
// batches, invokes the builder, submits, handles failures, and on terminal
// failure logs each event in a recoverable wire form before completing the
// upstream callback (spec.md §4.4).
//
// A BatchHandler is not safe for concurrent use by multiple goroutines on
// the same invocation, but the caches and publishers it holds are shared
// safely across many concurrently running handlers (spec.md §5).
type BatchHandler struct {
	cfg       HandlerConfig
	rowSpec   RowSpec
	submitter Submitter

	rowKeyCache     *BoundedCache[string]
	metricNameCache *BoundedCache[TimedString]

	rowKeyPublisher         *eventbus.Bus[RowKeyEvent]
	batchReductionPublisher *eventbus.Bus[BatchReductionEvent]

	logger       zerolog.Logger
	failedLogger zerolog.Logger
	metrics      *metrics.Metrics

	// now returns the current time in milliseconds since epoch. Overridable
	// in tests; defaults to wall-clock time via nowMillis.
	now func() int64
}

// NewBatchHandler builds a handler sharing the given caches, submitter, and
// publishers. Multiple handlers are expected to share the same caches and
// publishers so that only one handler "wins" the index write for a given
// new key (spec.md §5).
func NewBatchHandler(
	cfg HandlerConfig,
	rowSpec RowSpec,
	submitter Submitter,
	rowKeyCache *BoundedCache[string],
	metricNameCache *BoundedCache[TimedString],
	rowKeyPublisher *eventbus.Bus[RowKeyEvent],
	batchReductionPublisher *eventbus.Bus[BatchReductionEvent],
	logger zerolog.Logger,
) *BatchHandler {
	if cfg.MinBatchLimit <= 0 {
		cfg.MinBatchLimit = 10
	}
	return &BatchHandler{
		cfg:                     cfg,
		rowSpec:                 rowSpec,
		submitter:               submitter,
		rowKeyCache:             rowKeyCache,
		metricNameCache:         metricNameCache,
		rowKeyPublisher:         rowKeyPublisher,
		batchReductionPublisher: batchReductionPublisher,
		logger:                  logger.With().Str("component", "cassandra-batch-handler").Logger(),
		failedLogger:            logger.With().Str("component", "failed_logger").Logger(),
		metrics:                 metrics.Get(),
		now:                     nowMillis,
	}
}

func nowMillis() int64 { return timeNowUnixMilli() }

// Handle runs the adaptive retry loop described in spec.md §4.4 against
// events and invokes callback exactly once, unless the failure is a
// transport-level unavailability — in that case Handle returns the error
// without invoking callback, so the caller's own backoff layer owns
// completion (spec.md §4.4, §8 scenario 5).
func (h *BatchHandler) Handle(ctx context.Context, events []DataPointEvent, callback CompletionCallback) (err error) {
	handlerID := uuid.NewString()
	log := h.logger.With().Str("handler_id", handlerID).Logger()

	n := len(events)
	if n == 0 {
		callback()
		return nil
	}

	// A negative TTL surviving config (AddRowKey/AddDataPoint panic on it) or
	// any other invariant violation reachable from processEvent is a
	// programming error, not a backend failure (spec.md §7). There is no
	// partial-commit guarantee to uphold here, but the callback must still
	// fire exactly once so the upstream durable queue is not stalled.
	callbackFired := false
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("programming error in batch handler, failing invocation")
			h.metrics.IncCassandraTerminalFailures()
			if !callbackFired {
				callback()
			}
			err = nil
		}
	}()

	divisor := 1
	limit := n

	for {
		limit = n / divisor
		if limit <= 0 {
			limit = 1
		}

		var lastBatch *CQLBatch
		var submitErr error
		cursor := 0

		for cursor < n {
			batch := NewCQLBatch()
			lastBatch = batch

			consumed := h.loadBatch(&log, events, cursor, limit, batch)
			cursor += consumed

			if err := batch.Submit(ctx, h.submitter); err != nil {
				submitErr = err
				break
			}
			h.metrics.IncCassandraBatchesSubmitted()
		}

		if submitErr == nil {
			break
		}

		h.metrics.IncCassandraBatchesFailed()
		h.rollbackCaches(lastBatch)

		if IsUnavailable(submitErr) {
			log.Error().Err(submitErr).Msg("backend reports no host available, rethrowing for backoff retry")
			return submitErr
		}

		if IsBatchTooLarge(submitErr) {
			log.Warn().Err(submitErr).Msg("batch size is too large")
		} else {
			log.Error().Err(submitErr).Msg("error sending data points")
		}

		if limit > h.cfg.MinBatchLimit {
			divisor++
			log.Info().Int("limit", n/divisor).Msg("retrying batch with smaller limit")
			continue
		}

		log.Error().Err(submitErr).Msg("failed to send data points")
		h.metrics.IncCassandraTerminalFailures()
		h.dumpFailedEvents(&log, events)
		break
	}

	if limit < n {
		h.batchReductionPublisher.Publish(BatchReductionEvent{EffectiveLimit: limit})
		h.metrics.IncCassandraBatchReductions()
	}

	callbackFired = true
	callback()
	return nil
}

// loadBatch consumes at most limit events from events[start:] and applies
// the per-event algorithm (spec.md §4.4) to each, returning the number of
// events consumed.
func (h *BatchHandler) loadBatch(log *zerolog.Logger, events []DataPointEvent, start, limit int, batch *CQLBatch) int {
	count := 0
	i := start
	for i < len(events) && count < limit {
		h.processEvent(log, events[i], batch)
		i++
		count++
	}
	return count
}

func (h *BatchHandler) processEvent(log *zerolog.Logger, event DataPointEvent, batch *CQLBatch) {
	h.metrics.IncCassandraEvents(1)

	if event.MetricName == "" {
		log.Warn().
			Int64("timestamp", event.DataPoint.Timestamp).
			Msg("attempted to add empty metric name to string index")
	}

	ttl := event.TTLSeconds
	if h.cfg.ForceDefaultTtl {
		ttl = h.cfg.DefaultTtlSec
	}
	log.Trace().Int("ttl_seconds", ttl).Msg("ttl")

	writeTime := h.now()

	if ttl == 0 {
		ttl = h.cfg.DefaultTtlSec
	}

	if h.cfg.AlignTtlWithTimestamp {
		ageSeconds := int((writeTime - event.DataPoint.Timestamp) / 1000)
		log.Trace().Int("age_seconds", ageSeconds).Msg("data point age")
		ttl -= ageSeconds
		log.Trace().Int("aligned_ttl_seconds", ttl).Msg("aligned ttl")
		if ttl <= 0 {
			log.Warn().
				Str("metric", event.MetricName).
				Msg("aligned ttl is negative, data point is already dead, skipping")
			h.metrics.IncCassandraEventsSkippedTTL()
			return
		}
	}

	rowTime := h.rowSpec.RowTime(event.DataPoint.Timestamp)
	rowKey := NewRowKey(event.MetricName, h.cfg.ClusterName, rowTime, event.DataPoint.DataType, event.Tags)

	if alreadyCached := h.rowKeyCache.CacheItem(rowKey.CacheKey()); !alreadyCached {
		h.metrics.IncCassandraRowKeyCacheMiss()

		rowKeyTtl := 0
		if ttl != 0 {
			rowKeyTtl = ttl + int(h.rowSpec.RowWidthMillis()/1000)
		}
		batch.AddRowKey(rowKey, rowKeyTtl)
		h.rowKeyPublisher.Publish(RowKeyEvent{
			MetricName: rowKey.MetricName,
			RowKey:     rowKey,
			TTLSeconds: rowKeyTtl,
		})

		metricNameTime := TimedString{Name: rowKey.MetricName, RowTime: rowTime}
		if metricAlreadyCached := h.metricNameCache.CacheItem(metricNameTime); !metricAlreadyCached {
			h.metrics.IncCassandraMetricCacheMiss()
			batch.AddMetricName(metricNameTime)
			batch.AddTimeIndex(metricNameTime.Name, rowTime, rowKeyTtl)
		} else {
			h.metrics.IncCassandraMetricCacheHit()
		}
	} else {
		h.metrics.IncCassandraRowKeyCacheHit()
	}

	columnName := h.rowSpec.ColumnName(rowTime, event.DataPoint.Timestamp)
	batch.AddDataPoint(rowKey, columnName, event.DataPoint, ttl)
}

// rollbackCaches undoes the cache insertions a failed batch introduced, so
// the next attempt re-adds the index entries (spec.md §4.4 Failure
// handling, §8 Cache-rollback soundness).
func (h *BatchHandler) rollbackCaches(batch *CQLBatch) {
	if batch == nil {
		return
	}
	for _, metric := range batch.NewMetrics() {
		h.metricNameCache.RemoveKey(metric)
	}
	for _, rowKey := range batch.NewRowKeys() {
		h.rowKeyCache.RemoveKey(rowKey.CacheKey())
	}
}

// failedEventRecord is the recoverable wire form dumped on terminal failure
// (spec.md §6). Tags are written as a JSON object keyed by tag name, so they
// appear in sorted name order; the event's original tag insertion order is
// not kept, since TagSet stores its tags sorted.
type failedEventRecord struct {
	Name      string            `json:"name"`
	Timestamp int64             `json:"timestamp"`
	Value     any               `json:"value"`
	Tags      map[string]string `json:"tags"`
	TTL       int               `json:"ttl"`
}

// failedEventArchiveThreshold is the event count above which the dump is
// written as one gzip-compressed newline-delimited JSON archive instead of
// one trace line per event, keeping a large terminal-failure dump from
// flooding the log sink.
const failedEventArchiveThreshold = 50

// dumpFailedEvents writes the events of a terminally failed invocation to
// the failed-event log when trace logging is enabled, matching the
// original's failedLogger.isTraceEnabled() guard. Small dumps are one JSON
// record per trace line; large dumps are archived as a single gzip blob
// compressed with klauspost/compress.
func (h *BatchHandler) dumpFailedEvents(log *zerolog.Logger, events []DataPointEvent) {
	if !h.cfg.FailedEventTraceLog || h.failedLogger.GetLevel() > zerolog.TraceLevel {
		return
	}

	if len(events) > failedEventArchiveThreshold {
		h.archiveFailedEvents(log, events)
		return
	}

	for _, event := range events {
		raw, err := json.Marshal(toFailedEventRecord(event))
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal failed-event record")
			continue
		}
		h.failedLogger.Trace().RawJSON("event", raw).Send()
	}
}

func toFailedEventRecord(event DataPointEvent) failedEventRecord {
	tags := make(map[string]string, event.Tags.Len())
	for _, t := range event.Tags.All() {
		tags[t.Name] = t.Value
	}
	return failedEventRecord{
		Name:      event.MetricName,
		Timestamp: event.DataPoint.Timestamp,
		Value:     event.DataPoint.Value,
		Tags:      tags,
		TTL:       event.TTLSeconds,
	}
}

// archiveFailedEvents newline-delimited-JSON encodes every event, gzips the
// result, and emits it as one trace line carrying the compressed size and
// event count. Compression happens inline; a terminal failure is already the
// rare, expensive path, so trading a little CPU for a smaller log record is
// worthwhile.
func (h *BatchHandler) archiveFailedEvents(log *zerolog.Logger, events []DataPointEvent) {
	var raw bytes.Buffer
	enc := json.NewEncoder(&raw)
	for _, event := range events {
		if err := enc.Encode(toFailedEventRecord(event)); err != nil {
			log.Error().Err(err).Msg("failed to marshal failed-event record")
			return
		}
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(raw.Bytes()); err != nil {
		log.Error().Err(err).Msg("failed to compress failed-event archive")
		return
	}
	if err := gz.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close failed-event archive writer")
		return
	}

	h.failedLogger.Trace().
		Int("event_count", len(events)).
		Int("uncompressed_bytes", raw.Len()).
		Int("compressed_bytes", compressed.Len()).
		Str("archive_base64", base64.StdEncoding.EncodeToString(compressed.Bytes())).
		Msg("failed event archive")
}
