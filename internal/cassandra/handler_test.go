package cassandra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rverma-nsl/kairosdb/internal/eventbus"
)

// fakeSubmitter records every batch it receives and can be scripted to fail
// on specific calls; it is a hand-built fake rather than a mocking framework.
type fakeSubmitter struct {
	batches []*CQLBatch
	// failOn maps a 1-based call index to the error that call should return.
	failOn map[int]error
	calls  int
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{failOn: make(map[int]error)}
}

func (f *fakeSubmitter) SubmitBatch(ctx context.Context, batch *CQLBatch) error {
	f.calls++
	if err, ok := f.failOn[f.calls]; ok {
		return err
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeSubmitter) totalDataPoints() int {
	n := 0
	for _, b := range f.batches {
		n += len(b.DataPointInserts())
	}
	return n
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.Disabled)
}

func newTestHandler(t *testing.T, submitter Submitter, cfg HandlerConfig) (*BatchHandler, *eventbus.Bus[RowKeyEvent], *eventbus.Bus[BatchReductionEvent]) {
	t.Helper()
	rowSpec := NewRowSpec(1000 * 60 * 60 * 24 * 21) // 3 weeks, matches default
	rowKeyCache := NewBoundedCache[string](100)
	metricNameCache := NewBoundedCache[TimedString](100)
	rowKeyBus := eventbus.New[RowKeyEvent]("row-key", 8, testLogger())
	reductionBus := eventbus.New[BatchReductionEvent]("batch-reduction", 8, testLogger())

	if cfg.MinBatchLimit == 0 {
		cfg.MinBatchLimit = 1
	}
	handler := NewBatchHandler(cfg, rowSpec, submitter, rowKeyCache, metricNameCache, rowKeyBus, reductionBus, testLogger())
	return handler, rowKeyBus, reductionBus
}

func makeEvent(metric string, ts int64, ttl int) DataPointEvent {
	return DataPointEvent{
		MetricName: metric,
		Tags:       NewTagSet(map[string]string{"host": "a"}),
		DataPoint:  DataPoint{Timestamp: ts, Value: 1.0, DataType: "kairos_double"},
		TTLSeconds: ttl,
	}
}

// Scenario 1: happy path, callback invoked exactly once, batch submitted once.
func TestHandleHappyPath(t *testing.T) {
	sub := newFakeSubmitter()
	handler, _, _ := newTestHandler(t, sub, HandlerConfig{ClusterName: "test"})

	events := []DataPointEvent{makeEvent("cpu", 1_000, 3600)}

	callbacks := 0
	err := handler.Handle(context.Background(), events, func() { callbacks++ })
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if callbacks != 1 {
		t.Fatalf("callback invoked %d times, want 1", callbacks)
	}
	if sub.calls != 1 {
		t.Fatalf("submitter called %d times, want 1", sub.calls)
	}
	if got := sub.totalDataPoints(); got != 1 {
		t.Fatalf("submitted %d data points, want 1", got)
	}
}

// Scenario 2: a second event with the same row key does not re-emit the
// row-key or metric-name index mutations.
func TestHandleCachedRowKeySkipsIndexWrites(t *testing.T) {
	sub := newFakeSubmitter()
	handler, rowKeyBus, _ := newTestHandler(t, sub, HandlerConfig{ClusterName: "test"})
	sink := rowKeyBus.Subscribe()

	events := []DataPointEvent{
		makeEvent("cpu", 1_000, 3600),
		makeEvent("cpu", 2_000, 3600),
	}

	err := handler.Handle(context.Background(), events, func() {})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(sub.batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(sub.batches))
	}
	batch := sub.batches[0]
	if got := len(batch.RowKeyInserts()); got != 1 {
		t.Fatalf("row key inserts = %d, want 1 (second event should hit cache)", got)
	}
	if got := len(batch.DataPointInserts()); got != 2 {
		t.Fatalf("data point inserts = %d, want 2", got)
	}

	select {
	case <-sink:
	default:
		t.Fatal("expected one row key event to be published")
	}
	select {
	case <-sink:
		t.Fatal("expected only one row key event, cached hit should not publish again")
	default:
	}
}

// Scenario 3: with AlignTtlWithTimestamp, an event old enough that its
// aligned ttl is non-positive is dropped rather than submitted.
func TestHandleAlignedTtlDropsStaleEvent(t *testing.T) {
	sub := newFakeSubmitter()
	handler, _, _ := newTestHandler(t, sub, HandlerConfig{
		ClusterName:           "test",
		DefaultTtlSec:         10,
		AlignTtlWithTimestamp: true,
	})
	handler.now = func() int64 { return 1_000_000 } // "now" far past the data point's timestamp

	events := []DataPointEvent{makeEvent("cpu", 0, 0)} // ttl falls back to default 10s, age >> 10s

	err := handler.Handle(context.Background(), events, func() {})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if sub.calls != 0 {
		t.Fatalf("submitter should not have been called, got %d calls", sub.calls)
	}
}

// Scenario 4: a batch-too-large error causes a retry with a smaller limit,
// and the eventually-successful attempt still completes the callback once.
func TestHandleBatchTooLargeRetriesSmaller(t *testing.T) {
	sub := newFakeSubmitter()
	sub.failOn[1] = ErrBatchTooLarge // first attempt (limit=4) fails

	handler, _, reductionBus := newTestHandler(t, sub, HandlerConfig{ClusterName: "test", MinBatchLimit: 1})
	sink := reductionBus.Subscribe()

	events := make([]DataPointEvent, 4)
	for i := range events {
		events[i] = makeEvent("cpu", int64(1000*(i+1)), 3600)
	}

	callbacks := 0
	err := handler.Handle(context.Background(), events, func() { callbacks++ })
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if callbacks != 1 {
		t.Fatalf("callback invoked %d times, want 1", callbacks)
	}
	if sub.calls <= 1 {
		t.Fatalf("expected more than one submit attempt, got %d", sub.calls)
	}

	select {
	case ev := <-sink:
		if ev.EffectiveLimit >= 4 {
			t.Fatalf("expected reduced effective limit, got %d", ev.EffectiveLimit)
		}
	default:
		t.Fatal("expected a batch reduction event")
	}
}

// Scenario 5: transport-level unavailability is rethrown without invoking
// the callback, leaving retry ownership to the caller.
func TestHandleUnavailableRethrowsWithoutCallback(t *testing.T) {
	sub := newFakeSubmitter()
	sub.failOn[1] = errors.New("no host available for query")

	handler, _, _ := newTestHandler(t, sub, HandlerConfig{ClusterName: "test"})

	events := []DataPointEvent{makeEvent("cpu", 1_000, 3600)}

	callbacks := 0
	err := handler.Handle(context.Background(), events, func() { callbacks++ })
	if err == nil {
		t.Fatal("expected an error to be returned")
	}
	if callbacks != 0 {
		t.Fatalf("callback invoked %d times, want 0", callbacks)
	}
}

// Scenario 6: once limit drops to MinBatchLimit and submission still fails,
// the invocation is terminal: it dumps the events and still completes the
// callback exactly once (upstream is not blocked forever).
func TestHandleTerminalFailureDumpsAndCompletes(t *testing.T) {
	sub := newFakeSubmitter()
	for i := 1; i <= 20; i++ {
		sub.failOn[i] = fmt.Errorf("write timeout")
	}

	handler, _, _ := newTestHandler(t, sub, HandlerConfig{ClusterName: "test", MinBatchLimit: 1, FailedEventTraceLog: true})

	events := []DataPointEvent{makeEvent("cpu", 1_000, 3600)}

	callbacks := 0
	err := handler.Handle(context.Background(), events, func() { callbacks++ })
	if err != nil {
		t.Fatalf("Handle should swallow terminal failure and return nil, got %v", err)
	}
	if callbacks != 1 {
		t.Fatalf("callback invoked %d times, want 1", callbacks)
	}
}

// Cache rollback: a failed batch's newly-introduced row key must not remain
// cached, or a subsequent retry would wrongly skip re-adding its index row.
func TestHandleRollsBackRowKeyCacheOnFailure(t *testing.T) {
	sub := newFakeSubmitter()
	sub.failOn[1] = fmt.Errorf("write timeout")

	handler, _, _ := newTestHandler(t, sub, HandlerConfig{ClusterName: "test", MinBatchLimit: 1})

	events := []DataPointEvent{makeEvent("cpu", 1_000, 3600)}
	_ = handler.Handle(context.Background(), events, func() {})

	rowTime := handler.rowSpec.RowTime(1_000)
	key := NewRowKey("cpu", "test", rowTime, "kairos_double", NewTagSet(map[string]string{"host": "a"}))
	if alreadyCached := handler.rowKeyCache.CacheItem(key.CacheKey()); alreadyCached {
		t.Fatal("row key should have been rolled back after the failed batch, but is still cached")
	}
}

// Scenario 7 (spec.md §7 "programming errors"): a negative TTL that survives
// config (AlignTtlWithTimestamp off, so nothing clamps it) panics inside
// CQLBatch.AddDataPoint. Handle must recover, fail the invocation without a
// partial-commit guarantee, and still complete the callback exactly once.
func TestHandleRecoversFromNegativeTtlProgrammingError(t *testing.T) {
	sub := newFakeSubmitter()
	handler, _, _ := newTestHandler(t, sub, HandlerConfig{ClusterName: "test"})

	events := []DataPointEvent{makeEvent("cpu", 1_000, -5)}

	callbacks := 0
	err := handler.Handle(context.Background(), events, func() { callbacks++ })
	if err != nil {
		t.Fatalf("Handle returned error: %v, want nil (panic recovered)", err)
	}
	if callbacks != 1 {
		t.Fatalf("callback invoked %d times, want exactly 1", callbacks)
	}
}

// Handle on an empty event slice still invokes the callback once and never
// touches the submitter.
func TestHandleEmptyEventsCompletesImmediately(t *testing.T) {
	sub := newFakeSubmitter()
	handler, _, _ := newTestHandler(t, sub, HandlerConfig{ClusterName: "test"})

	callbacks := 0
	err := handler.Handle(context.Background(), nil, func() { callbacks++ })
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if callbacks != 1 {
		t.Fatalf("callback invoked %d times, want 1", callbacks)
	}
	if sub.calls != 0 {
		t.Fatalf("submitter should not be called for an empty event slice, got %d calls", sub.calls)
	}
}
