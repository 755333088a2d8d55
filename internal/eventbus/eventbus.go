// Package eventbus provides a typed, non-blocking publish/subscribe channel
// used to fan events out to observers without letting a slow subscriber
// stall the publisher.
package eventbus

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultBufferSize is used when a Bus is constructed with bufferSize <= 0.
const DefaultBufferSize = 64

// Bus is a fire-and-forget fan-out channel for events of type T. Publish
// never blocks: a subscriber whose channel is full simply misses the event.
// Subscribers are expected to reconcile from durable state on restart.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[chan T]struct{}
	buffer int
	name   string
	logger zerolog.Logger
}

// New creates a Bus that logs dropped events under the given bus name.
func New[T any](name string, bufferSize int, logger zerolog.Logger) *Bus[T] {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus[T]{
		subs:   make(map[chan T]struct{}),
		buffer: bufferSize,
		name:   name,
		logger: logger.With().Str("component", "eventbus").Str("bus", name).Logger(),
	}
}

// Subscribe registers a new listener and returns its channel. Callers must
// call Unsubscribe when done to release it.
func (b *Bus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel. Safe to call more
// than once for the same channel.
func (b *Bus[T]) Unsubscribe(ch <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.subs {
		if (<-chan T)(c) == ch {
			delete(b.subs, c)
			close(c)
			return
		}
	}
}

// Publish delivers event to every current subscriber without blocking. A
// subscriber that isn't keeping up has the event dropped for it; that
// subscriber is expected to reconcile from stored state.
func (b *Bus[T]) Publish(event T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Warn().Int("subscriber_queue", b.buffer).Msg("subscriber lagging, dropping event")
		}
	}
}

// SubscriberCount returns the number of currently registered subscribers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes and closes every subscriber channel.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.subs {
		close(c)
		delete(b.subs, c)
	}
}
