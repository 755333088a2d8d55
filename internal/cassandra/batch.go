package cassandra

import (
	"context"
	"fmt"
)

// rowKeyInsert is a row-key-index mutation: (metricName, rowKeyBlob) -> ()
// USING TTL ttlSeconds.
type rowKeyInsert struct {
	RowKey     RowKey
	TTLSeconds int
}

// metricNameInsert is a metric-name-index mutation: (metricName) -> ().
type metricNameInsert struct {
	Name string
}

// timeIndexInsert is a time-index mutation: (metricName, rowTime) USING TTL
// ttlSeconds.
type timeIndexInsert struct {
	Name       string
	RowTime    int64
	TTLSeconds int
}

// DataPointInsert is a data-point column insert:
// (rowKey_bytes, columnName_i32) -> valueBytes USING TTL ttlSeconds.
type DataPointInsert struct {
	RowKey     RowKey
	ColumnName int32
	Value      any
	DataType   string
	TTLSeconds int
}

// CQLBatch accumulates the four kinds of mutation described in spec.md §4.3
// and tracks which row-key / metric-name index entries it introduced so the
// handler can roll the caches back if submission fails. A CQLBatch is used
// once: create, add mutations in any order, then Submit.
type CQLBatch struct {
	rowKeys     []rowKeyInsert
	metricNames []metricNameInsert
	timeIndexes []timeIndexInsert
	dataPoints  []DataPointInsert

	newRowKeys []RowKey
	newMetrics []TimedString

	submitted bool
}

// NewCQLBatch creates an empty batch.
func NewCQLBatch() *CQLBatch {
	return &CQLBatch{}
}

// AddRowKey enqueues a row-key-index mutation and records rowKey as newly
// introduced by this batch, so a failed submit can be rolled back.
func (b *CQLBatch) AddRowKey(rowKey RowKey, ttlSeconds int) {
	if ttlSeconds < 0 {
		panic(fmt.Sprintf("cassandra: negative row key ttl %d", ttlSeconds))
	}
	b.rowKeys = append(b.rowKeys, rowKeyInsert{RowKey: rowKey, TTLSeconds: ttlSeconds})
	b.newRowKeys = append(b.newRowKeys, rowKey)
}

// AddMetricName enqueues a metric-name-index mutation and records the
// (name, rowTime) pair as newly introduced by this batch.
func (b *CQLBatch) AddMetricName(name TimedString) {
	b.metricNames = append(b.metricNames, metricNameInsert{Name: name.Name})
	b.newMetrics = append(b.newMetrics, name)
}

// AddTimeIndex enqueues a time-index mutation.
func (b *CQLBatch) AddTimeIndex(name string, rowTime int64, ttlSeconds int) {
	b.timeIndexes = append(b.timeIndexes, timeIndexInsert{Name: name, RowTime: rowTime, TTLSeconds: ttlSeconds})
}

// AddDataPoint enqueues a data point column insert.
func (b *CQLBatch) AddDataPoint(rowKey RowKey, columnName int32, dp DataPoint, ttlSeconds int) {
	if ttlSeconds < 0 {
		panic(fmt.Sprintf("cassandra: negative data point ttl %d", ttlSeconds))
	}
	b.dataPoints = append(b.dataPoints, DataPointInsert{
		RowKey:     rowKey,
		ColumnName: columnName,
		Value:      dp.Value,
		DataType:   dp.DataType,
		TTLSeconds: ttlSeconds,
	})
}

// NewRowKeys returns the row keys newly added to this batch. Valid whether
// or not Submit has been called, so a failed submit can roll caches back.
func (b *CQLBatch) NewRowKeys() []RowKey { return b.newRowKeys }

// NewMetrics returns the (metric, rowTime) pairs newly added to this batch.
func (b *CQLBatch) NewMetrics() []TimedString { return b.newMetrics }

// RowKeyInserts, MetricNameInserts, TimeIndexInserts, and DataPointInserts
// expose the accumulated mutations for a Submitter to bind and execute.
func (b *CQLBatch) RowKeyInserts() []rowKeyInsert       { return b.rowKeys }
func (b *CQLBatch) MetricNameInserts() []metricNameInsert { return b.metricNames }
func (b *CQLBatch) TimeIndexInserts() []timeIndexInsert   { return b.timeIndexes }
func (b *CQLBatch) DataPointInserts() []DataPointInsert   { return b.dataPoints }

// Empty reports whether the batch has no mutations at all.
func (b *CQLBatch) Empty() bool {
	return len(b.rowKeys) == 0 && len(b.metricNames) == 0 && len(b.timeIndexes) == 0 && len(b.dataPoints) == 0
}

// Submit flushes the batch to the backend via submitter at the configured
// consistency level. It may only be called once per batch.
func (b *CQLBatch) Submit(ctx context.Context, submitter Submitter) error {
	if b.submitted {
		panic("cassandra: batch already submitted")
	}
	b.submitted = true
	if b.Empty() {
		return nil
	}
	return submitter.SubmitBatch(ctx, b)
}

// Submitter sends an accumulated batch to the backend under a configured
// consistency level, surfacing backend errors verbatim to the caller.
type Submitter interface {
	SubmitBatch(ctx context.Context, batch *CQLBatch) error
}
