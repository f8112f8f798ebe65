package feedback

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/evokelab/entrain/internal/mailbox"
	"github.com/evokelab/entrain/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCorrelateMatch(t *testing.T) {
	inbox := mailbox.New[model.DecodeMessage](8)
	c := New(inbox, time.Second, testLogger())

	// Target is a 10 Hz class: 100 ms reversal period. The decode favors
	// the second candidate, which matches.
	if err := inbox.Put(model.DecodeMessage{
		Scores: []float64{0.1, 0.9},
		Freqs:  []float64{12.5, 10.0},
	}); err != nil {
		t.Fatalf("put: %v", err)
	}

	res, err := c.Correlate(context.Background(), 100)
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if res.TimedOut {
		t.Fatal("unexpected timeout")
	}
	if !res.Matched {
		t.Fatal("expected a match")
	}
	if res.ObservedIndex != 1 {
		t.Fatalf("expected observed index 1, got %d", res.ObservedIndex)
	}
	if res.ObservedPeriodMS != 100 {
		t.Fatalf("expected observed period 100ms, got %d", res.ObservedPeriodMS)
	}
}

func TestCorrelateMismatch(t *testing.T) {
	inbox := mailbox.New[model.DecodeMessage](8)
	c := New(inbox, time.Second, testLogger())

	if err := inbox.Put(model.DecodeMessage{
		Scores: []float64{0.8, 0.2},
		Freqs:  []float64{12.5, 10.0},
	}); err != nil {
		t.Fatalf("put: %v", err)
	}

	res, err := c.Correlate(context.Background(), 100)
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if res.Matched {
		t.Fatal("expected a mismatch")
	}
	if res.ObservedPeriodMS != 80 {
		t.Fatalf("expected observed period 80ms, got %d", res.ObservedPeriodMS)
	}
}

func TestCorrelateWindowTimeout(t *testing.T) {
	inbox := mailbox.New[model.DecodeMessage](8)
	c := New(inbox, 30*time.Millisecond, testLogger())

	start := time.Now()
	res, err := c.Correlate(context.Background(), 100)
	if err != nil {
		t.Fatalf("timeout is a value, not an error; got %v", err)
	}
	if !res.TimedOut {
		t.Fatal("expected TimedOut result")
	}
	if res.ObservedIndex != NoObservation {
		t.Fatalf("expected NoObservation, got %d", res.ObservedIndex)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("returned before the window elapsed")
	}
}

func TestCorrelateCancellation(t *testing.T) {
	inbox := mailbox.New[model.DecodeMessage](8)
	c := New(inbox, time.Minute, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Correlate(ctx, 100)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// At most one message is consumed per call; backlog stays for the next call.
func TestCorrelateConsumesOneMessage(t *testing.T) {
	inbox := mailbox.New[model.DecodeMessage](8)
	c := New(inbox, time.Second, testLogger())

	for i := 0; i < 3; i++ {
		if err := inbox.Put(model.DecodeMessage{
			Scores: []float64{1.0},
			Freqs:  []float64{10.0},
		}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	if _, err := c.Correlate(context.Background(), 100); err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if inbox.Len() != 2 {
		t.Fatalf("expected 2 queued messages left, got %d", inbox.Len())
	}
}

func TestCorrelateMalformedMessage(t *testing.T) {
	inbox := mailbox.New[model.DecodeMessage](8)
	c := New(inbox, time.Second, testLogger())

	if err := inbox.Put(model.DecodeMessage{
		Scores: []float64{0.5, 0.5},
		Freqs:  []float64{10.0}, // length mismatch
	}); err != nil {
		t.Fatalf("put: %v", err)
	}

	res, err := c.Correlate(context.Background(), 100)
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if res.Matched || res.TimedOut {
		t.Fatalf("malformed message should judge nothing: %+v", res)
	}
	if res.ObservedIndex != NoObservation {
		t.Fatalf("expected NoObservation, got %d", res.ObservedIndex)
	}
}
