package cassandra

import (
	"context"
	"testing"
)

type recordingSubmitter struct {
	received *CQLBatch
	err      error
}

func (r *recordingSubmitter) SubmitBatch(ctx context.Context, batch *CQLBatch) error {
	r.received = batch
	return r.err
}

func TestCQLBatchEmptySubmitIsNoop(t *testing.T) {
	sub := &recordingSubmitter{}
	batch := NewCQLBatch()

	if !batch.Empty() {
		t.Fatal("a freshly created batch must be empty")
	}
	if err := batch.Submit(context.Background(), sub); err != nil {
		t.Fatalf("Submit on an empty batch returned an error: %v", err)
	}
	if sub.received != nil {
		t.Fatal("submitter should not be invoked for an empty batch")
	}
}

func TestCQLBatchSubmitTwicePanics(t *testing.T) {
	sub := &recordingSubmitter{}
	batch := NewCQLBatch()
	batch.AddMetricName(TimedString{Name: "cpu", RowTime: 0})

	if err := batch.Submit(context.Background(), sub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on double submit")
		}
	}()
	_ = batch.Submit(context.Background(), sub)
}

func TestCQLBatchTracksNewRowKeysAndMetrics(t *testing.T) {
	batch := NewCQLBatch()
	key := NewRowKey("cpu", "east", 0, "kairos_double", NewTagSet(nil))
	metric := TimedString{Name: "cpu", RowTime: 0}

	batch.AddRowKey(key, 3600)
	batch.AddMetricName(metric)

	if got := batch.NewRowKeys(); len(got) != 1 || !got[0].Equal(key) {
		t.Fatalf("NewRowKeys() = %v, want [%v]", got, key)
	}
	if got := batch.NewMetrics(); len(got) != 1 || got[0] != metric {
		t.Fatalf("NewMetrics() = %v, want [%v]", got, metric)
	}
}

func TestCQLBatchAddRowKeyPanicsOnNegativeTtl(t *testing.T) {
	batch := NewCQLBatch()
	key := NewRowKey("cpu", "east", 0, "kairos_double", NewTagSet(nil))

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a negative ttl")
		}
	}()
	batch.AddRowKey(key, -1)
}

func TestCQLBatchSubmitPropagatesSubmitterError(t *testing.T) {
	sub := &recordingSubmitter{err: ErrBatchTooLarge}
	batch := NewCQLBatch()
	batch.AddMetricName(TimedString{Name: "cpu", RowTime: 0})

	err := batch.Submit(context.Background(), sub)
	if err != ErrBatchTooLarge {
		t.Fatalf("Submit() error = %v, want ErrBatchTooLarge", err)
	}
}
