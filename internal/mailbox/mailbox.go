// Package mailbox provides the per-run inbound message queues.
//
// A mailbox is created at run start and discarded at run end, so messages can
// never leak across runs. Multiple producers may Put; exactly one consumer
// (the active run task) calls Get.
package mailbox

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/evokelab/entrain/internal/model"
	"github.com/evokelab/entrain/internal/telemetry"
)

// DefaultCapacity bounds a mailbox when the caller passes no explicit limit.
const DefaultCapacity = 256

// Mailbox is a bounded FIFO with producer-visible backpressure.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	cap    int
	notify chan struct{}
}

// New creates a mailbox holding at most capacity items. Non-positive
// capacities fall back to DefaultCapacity.
func New[T any](capacity int) *Mailbox[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Mailbox[T]{
		cap:    capacity,
		notify: make(chan struct{}, 1),
	}
}

// Put appends v. Producers see backpressure as an error when the mailbox is
// at capacity; nothing is silently dropped.
func (m *Mailbox[T]) Put(v T) error {
	m.mu.Lock()
	if len(m.items) >= m.cap {
		n := len(m.items)
		m.mu.Unlock()
		return fmt.Errorf("%w (%d items)", model.ErrMailboxFull, n)
	}
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// Get removes and returns the oldest item, blocking until one is available or
// ctx is done.
func (m *Mailbox[T]) Get(ctx context.Context) (T, error) {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			v := m.items[0]
			m.items = m.items[1:]
			m.mu.Unlock()
			return v, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-m.notify:
		}
	}
}

// Reset discards all queued items and returns how many were dropped. The run
// task calls this once per run so stale pre-run messages never reach trial 1.
func (m *Mailbox[T]) Reset() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.items)
	m.items = nil
	return n
}

// Len returns the current number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// RegisterMetrics registers an observable depth gauge under the given
// instrument name. Call after the global meter provider is initialized.
func (m *Mailbox[T]) RegisterMetrics(name string) {
	meter := telemetry.Meter("entrain/mailbox")
	_, _ = meter.Int64ObservableGauge(name,
		metric.WithDescription("Current number of queued messages"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(m.Len()))
			return nil
		}),
	)
}
