package trigger

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/evokelab/entrain/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEmitterHandsRecordToSink(t *testing.T) {
	sink := NewChannelSink(1)
	e := New(sink, testLogger())

	rec := model.TrialRecord{TrialIndex: 3, Class: "LEFT", Completion: model.CompletionNormal}
	if err := e.Emit(context.Background(), rec); err != nil {
		t.Fatalf("emit: %v", err)
	}

	select {
	case got := <-sink.Records():
		if got.TrialIndex != 3 || got.Class != "LEFT" {
			t.Fatalf("unexpected record: %+v", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("record did not reach the sink")
	}
}

func TestChannelSinkBackpressureBlocksUntilCancel(t *testing.T) {
	sink := NewChannelSink(0) // unbuffered, no consumer
	e := New(sink, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := e.Emit(ctx, model.TrialRecord{TrialIndex: 0})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded from blocked sink, got %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("emit returned before the deadline; record may have been dropped")
	}
}

func TestChannelSinkClosed(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Close()
	sink.Close() // idempotent

	err := sink.Write(context.Background(), model.TrialRecord{})
	if !errors.Is(err, model.ErrSinkClosed) {
		t.Fatalf("expected ErrSinkClosed, got %v", err)
	}

	if _, open := <-sink.Records(); open {
		t.Fatal("records channel should be closed")
	}
}
