package gate

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type countingSurface struct {
	mu       sync.Mutex
	disables int
	enables  int
}

func (s *countingSurface) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disables++
}

func (s *countingSurface) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enables++
}

func (s *countingSurface) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disables, s.enables
}

func TestGateNormalCompletion(t *testing.T) {
	surface := &countingSurface{}
	resets := 0
	g := New(surface, func() { resets++ }, testLogger())

	err := g.Run(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	disables, enables := surface.counts()
	if disables != 1 || enables != 1 {
		t.Fatalf("expected 1 disable / 1 enable, got %d / %d", disables, enables)
	}
	if resets != 1 {
		t.Fatalf("expected 1 reset, got %d", resets)
	}
}

func TestGateTeardownOnError(t *testing.T) {
	surface := &countingSurface{}
	g := New(surface, nil, testLogger())

	bodyErr := errors.New("sink gone")
	err := g.Run(context.Background(), func(context.Context) error { return bodyErr })
	if !errors.Is(err, bodyErr) {
		t.Fatalf("expected body error to propagate, got %v", err)
	}

	if _, enables := surface.counts(); enables != 1 {
		t.Fatalf("teardown did not run on error path: %d enables", enables)
	}
}

func TestGateTeardownOnCancellation(t *testing.T) {
	surface := &countingSurface{}
	g := New(surface, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Run(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if _, enables := surface.counts(); enables != 1 {
		t.Fatalf("teardown did not run on cancellation: %d enables", enables)
	}
}

// Normal completion followed by a late teardown request must leave the
// control surface enabled exactly once.
func TestGateTeardownIdempotent(t *testing.T) {
	surface := &countingSurface{}
	resets := 0
	g := New(surface, func() { resets++ }, testLogger())

	_ = g.Run(context.Background(), func(context.Context) error { return nil })
	g.Teardown()
	g.Teardown()

	if _, enables := surface.counts(); enables != 1 {
		t.Fatalf("expected exactly 1 enable, got %d", enables)
	}
	if resets != 1 {
		t.Fatalf("expected exactly 1 reset, got %d", resets)
	}
}
