package cassandra

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	chdriver "github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog"
)

// Wide-row table names. Each table gets its own driver.Batch: clickhouse-go's
// PrepareBatch binds to a single INSERT target, so a physical batch cannot
// span the four tables below. See the atomicity note on SubmitBatch.
const (
	dataPointTable       = "data_points"
	rowKeyIndexTable     = "row_key_index"
	metricNameIndexTable = "string_index"
	timeIndexTable       = "row_time_index"
)

// ErrBatchTooLarge is the sentinel classification for a backend rejection
// driven by batch size, matched by text since the wire error is backend-
// specific (spec.md §4.4, §7).
var ErrBatchTooLarge = errors.New("cassandra: batch too large")

// SubmitterConfig configures the backend session used to execute batches.
type SubmitterConfig struct {
	ContactPoints    []string
	Keyspace         string
	ConsistencyLevel string // QUORUM, LOCAL_QUORUM, ONE, ...
}

// ChSubmitter binds prepared statements for the four mutation kinds against
// a wide-column backend. It stands in for a Cassandra driver session; see
// SPEC_FULL.md's DOMAIN STACK section for why clickhouse-go fills that role
// in this corpus, and DESIGN.md's Open Questions for the disclosed batch
// atomicity gap this stand-in carries (see SubmitBatch).
type ChSubmitter struct {
	conn   chdriver.Conn
	logger zerolog.Logger
}

// NewChSubmitter opens a connection to the backend cluster.
func NewChSubmitter(cfg SubmitterConfig, logger zerolog.Logger) (*ChSubmitter, error) {
	opts := &clickhouse.Options{
		Addr: cfg.ContactPoints,
		Auth: clickhouse.Auth{
			Database: cfg.Keyspace,
		},
		Settings: consistencySettings(cfg.ConsistencyLevel),
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cassandra: open backend session: %w", err)
	}

	return &ChSubmitter{
		conn:   conn,
		logger: logger.With().Str("component", "cassandra-submitter").Logger(),
	}, nil
}

// consistencySettings maps the configured consistency level onto the
// closest real ClickHouse write-acknowledgement setting.
func consistencySettings(level string) clickhouse.Settings {
	switch strings.ToUpper(level) {
	case "QUORUM", "LOCAL_QUORUM", "EACH_QUORUM":
		return clickhouse.Settings{"insert_quorum": 2}
	case "ALL":
		return clickhouse.Settings{"insert_quorum": 0} // 0 = all replicas
	default: // ONE, ANY, LOCAL_ONE
		return clickhouse.Settings{"insert_quorum": 1}
	}
}

// SubmitBatch binds every mutation in batch and flushes it to the backend.
//
// Atomicity gap (disclosed, see DESIGN.md Open Questions): spec.md §4.3/§4.4
// wants the whole batch to land as one all-or-nothing backend operation, so
// that a failure never leaves a partial mutation durable. clickhouse-go's
// driver.Batch binds to a single INSERT target, so a physical batch cannot
// span the row-key, metric-name, time-index, and data-point tables used
// here; four independent Send calls are the closest this stand-in driver
// can get. To shrink the exposure, every batch is fully prepared (Append'd)
// before any of the four is sent, so a malformed event fails before any
// network write happens; the four Sends themselves are not atomic with each
// other; if row-key Send succeeds and a later Send fails, the row-key
// mutation is already durable even though the handler retries the batch.
func (s *ChSubmitter) SubmitBatch(ctx context.Context, batch *CQLBatch) error {
	rowKeys, err := s.prepareRowKeys(ctx, batch.RowKeyInserts())
	if err != nil {
		return err
	}
	metricNames, err := s.prepareMetricNames(ctx, batch.MetricNameInserts())
	if err != nil {
		return err
	}
	timeIndex, err := s.prepareTimeIndex(ctx, batch.TimeIndexInserts())
	if err != nil {
		return err
	}
	dataPoints, err := s.prepareDataPoints(ctx, batch.DataPointInserts())
	if err != nil {
		return err
	}

	for _, b := range []chdriver.Batch{rowKeys, metricNames, timeIndex, dataPoints} {
		if b == nil {
			continue
		}
		if err := b.Send(); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChSubmitter) prepareRowKeys(ctx context.Context, inserts []rowKeyInsert) (chdriver.Batch, error) {
	if len(inserts) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("INSERT INTO %s (metric_name, row_key, ttl_seconds) VALUES", rowKeyIndexTable)
	b, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return nil, err
	}
	for _, ins := range inserts {
		if err := b.Append(ins.RowKey.MetricName, ins.RowKey.Serialize(), ins.TTLSeconds); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (s *ChSubmitter) prepareMetricNames(ctx context.Context, inserts []metricNameInsert) (chdriver.Batch, error) {
	if len(inserts) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("INSERT INTO %s (metric_name) VALUES", metricNameIndexTable)
	b, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return nil, err
	}
	for _, ins := range inserts {
		if err := b.Append(ins.Name); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (s *ChSubmitter) prepareTimeIndex(ctx context.Context, inserts []timeIndexInsert) (chdriver.Batch, error) {
	if len(inserts) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("INSERT INTO %s (metric_name, row_time, ttl_seconds) VALUES", timeIndexTable)
	b, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return nil, err
	}
	for _, ins := range inserts {
		if err := b.Append(ins.Name, ins.RowTime, ins.TTLSeconds); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (s *ChSubmitter) prepareDataPoints(ctx context.Context, inserts []DataPointInsert) (chdriver.Batch, error) {
	if len(inserts) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("INSERT INTO %s (row_key, column_name, value, data_type, ttl_seconds) VALUES", dataPointTable)
	b, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return nil, err
	}
	for _, ins := range inserts {
		if err := b.Append(ins.RowKey.Serialize(), ins.ColumnName, ins.Value, ins.DataType, ins.TTLSeconds); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Close releases the backend connection.
func (s *ChSubmitter) Close() error {
	return s.conn.Close()
}

// IsUnavailable reports whether err indicates transport-level unavailability
// (no host reachable, insufficient replicas) as opposed to a data-level
// rejection. These errors are rethrown by the handler so the caller's
// backoff layer can retry the whole invocation (spec.md §7).
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no host available") ||
		strings.Contains(msg, "insufficient replicas") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "connection refused")
}

// IsBatchTooLarge reports whether err is the backend's batch-size-exceeded
// rejection, detected by its error text (spec.md §4.4).
func IsBatchTooLarge(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBatchTooLarge) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "batch too large") ||
		strings.Contains(strings.ToLower(err.Error()), "batch too big") ||
		strings.Contains(strings.ToLower(err.Error()), "max_query_size")
}
