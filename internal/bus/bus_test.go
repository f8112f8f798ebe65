package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker[string](testLogger())

	ch1 := b.Subscribe()
	ch2 := b.Subscribe()

	b.Publish("cue")

	for i, ch := range []chan string{ch1, ch2} {
		select {
		case got := <-ch:
			if got != "cue" {
				t.Errorf("subscriber %d: got %q, want %q", i, got, "cue")
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d: timed out waiting for value", i)
		}
	}

	// Unsubscribe ch1; only ch2 receives further publishes.
	b.Unsubscribe(ch1)
	b.Publish("next")

	select {
	case got := <-ch2:
		if got != "next" {
			t.Errorf("ch2: got %q, want %q", got, "next")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("ch2: timed out after ch1 unsubscribed")
	}

	if _, open := <-ch1; open {
		t.Fatal("unsubscribed channel should be closed")
	}
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker[int](testLogger())
	ch := b.Subscribe()

	// Fill the subscriber buffer; further publishes must not block.
	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(i)
	}

	if got := len(ch); got != subscriberBuffer {
		t.Fatalf("expected %d buffered values, got %d", subscriberBuffer, got)
	}
}

func TestBrokerClose(t *testing.T) {
	b := NewBroker[int](testLogger())
	ch := b.Subscribe()

	b.Close()
	b.Close() // idempotent

	if _, open := <-ch; open {
		t.Fatal("subscriber channel should be closed")
	}

	// Publish after close is a no-op, not a panic.
	b.Publish(1)

	// Subscribe after close yields a closed channel.
	late := b.Subscribe()
	if _, open := <-late; open {
		t.Fatal("late subscription should return a closed channel")
	}
}
