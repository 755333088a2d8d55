package cassandra

// RowKeyEvent notifies observers (indexing services, metrics) that a new
// row key was added to the current batch's row-key index mutations. It is
// published when the key is added, before the batch is submitted, so it is
// also sent for a batch whose submit later fails.
type RowKeyEvent struct {
	MetricName string
	RowKey     RowKey
	TTLSeconds int
}

// BatchReductionEvent notifies observers that a handler invocation's
// effective batch size shrank below the original event count.
type BatchReductionEvent struct {
	EffectiveLimit int
}
