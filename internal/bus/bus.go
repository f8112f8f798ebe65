// Package bus fans out transient run-state streams to subscribers.
package bus

import (
	"log/slog"
	"sync"
)

// subscriberBuffer sizes each subscriber channel to absorb short stalls
// without blocking the run task.
const subscriberBuffer = 64

// Broker distributes values to all active subscribers. A slow subscriber
// with a full buffer misses values rather than blocking the publisher; the
// streams carried here mirror transient presentation state, where only the
// latest value matters.
type Broker[T any] struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[chan T]struct{}
	closed      bool
}

// NewBroker creates an empty broker.
func NewBroker[T any](logger *slog.Logger) *Broker[T] {
	return &Broker[T]{
		logger:      logger,
		subscribers: make(map[chan T]struct{}),
	}
}

// Subscribe returns a channel receiving published values. The caller must
// call Unsubscribe when done. Subscribing to a closed broker returns a
// closed channel.
func (b *Broker[T]) Subscribe() chan T {
	ch := make(chan T, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Publish sends v to every subscriber. Subscribers with a full buffer are
// skipped.
func (b *Broker[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for ch := range b.subscribers {
		select {
		case ch <- v:
		default:
			b.logger.Debug("bus: subscriber buffer full, dropping update")
		}
	}
}

// Close closes all subscriber channels and rejects further publishes.
// Idempotent.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}
