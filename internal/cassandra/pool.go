package cassandra

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// HandlerPool is the bounded worker pool of spec.md §5: multiple batch
// handlers execute in parallel, one per task drawn from the durable queue,
// each handler single-threaded internally. errgroup.Group.SetLimit caps
// the number of concurrently running Handle calls; Submit blocks once that
// limit is reached, applying natural backpressure to the queue feeding it.
type HandlerPool struct {
	handler *BatchHandler
	group   *errgroup.Group
	logger  zerolog.Logger
}

// NewHandlerPool creates a pool that runs at most workers concurrent
// BatchHandler.Handle calls against the shared handler.
func NewHandlerPool(handler *BatchHandler, workers int, logger zerolog.Logger) *HandlerPool {
	if workers <= 0 {
		workers = 1
	}
	g := &errgroup.Group{}
	g.SetLimit(workers)
	return &HandlerPool{
		handler: handler,
		group:   g,
		logger:  logger.With().Str("component", "cassandra-handler-pool").Logger(),
	}
}

// Submit blocks until a worker slot is free, then runs Handle on it. A
// transport-level failure from Handle is logged here since the handler
// itself does not invoke callback in that case (spec.md §4.4, §8 scenario 5)
// — the outer backoff layer or durable-queue redelivery owns the retry.
func (p *HandlerPool) Submit(events []DataPointEvent, callback CompletionCallback) {
	p.group.Go(func() error {
		if err := p.handler.Handle(context.Background(), events, callback); err != nil {
			p.logger.Error().Err(err).Int("event_count", len(events)).Msg("batch handler invocation failed, callback not completed")
		}
		return nil
	})
}

// Wait blocks until every submitted job has finished. Used during shutdown.
func (p *HandlerPool) Wait() {
	_ = p.group.Wait()
}

// Close drains in-flight handler invocations before returning, satisfying
// shutdown.Shutdownable so the pool can be registered with the process's
// shutdown coordinator alongside the other ingest-path components.
func (p *HandlerPool) Close() error {
	p.Wait()
	return nil
}
