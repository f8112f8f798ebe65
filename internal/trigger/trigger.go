// Package trigger emits trial-boundary records to the outbound stream.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/evokelab/entrain/internal/model"
	"github.com/evokelab/entrain/internal/telemetry"
)

// Sink receives emitted records. Write may block (backpressure propagates to
// the run task) and must never drop a record.
type Sink interface {
	Write(ctx context.Context, rec model.TrialRecord) error
}

// Emitter hands exactly one immutable TrialRecord per trial boundary to the
// sink. A failed write is a run failure, never a silent drop.
type Emitter struct {
	sink    Sink
	logger  *slog.Logger
	emitted metric.Int64Counter
}

// New creates an emitter writing to sink.
func New(sink Sink, logger *slog.Logger) *Emitter {
	meter := telemetry.Meter("entrain/trigger")
	emitted, _ := meter.Int64Counter("entrain.records.emitted",
		metric.WithDescription("Trial records emitted to the outbound sink"),
	)
	return &Emitter{sink: sink, logger: logger, emitted: emitted}
}

// Emit writes rec to the sink, blocking on backpressure.
func (e *Emitter) Emit(ctx context.Context, rec model.TrialRecord) error {
	if err := e.sink.Write(ctx, rec); err != nil {
		return fmt.Errorf("trigger: emit trial %d: %w", rec.TrialIndex, err)
	}
	e.emitted.Add(ctx, 1)
	e.logger.Debug("trigger: record emitted",
		"trial", rec.TrialIndex,
		"class", rec.Class,
		"completion", rec.Completion,
	)
	return nil
}

// ChannelSink is the default sink: a blocking handoff to a consumer-owned
// channel. The consumer must drain Records; an unread stream stalls the run
// task rather than losing records.
type ChannelSink struct {
	mu     sync.Mutex
	ch     chan model.TrialRecord
	closed bool
}

// NewChannelSink creates a channel sink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSink{ch: make(chan model.TrialRecord, buffer)}
}

// Write blocks until the consumer accepts rec or ctx is done. Writing to a
// closed sink returns ErrSinkClosed.
func (s *ChannelSink) Write(ctx context.Context, rec model.TrialRecord) error {
	// The mutex also serializes Write against Close: Close cannot close the
	// channel while a send is in flight.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.ErrSinkClosed
	}
	select {
	case s.ch <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Records returns the consumer side of the stream. Closed when the sink
// closes.
func (s *ChannelSink) Records() <-chan model.TrialRecord {
	return s.ch
}

// Close ends the stream. Idempotent; blocks until no Write is in flight.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
