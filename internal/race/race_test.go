package race

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFirstTimeoutNoSignal(t *testing.T) {
	sig := NewSignal()

	const timeout = 50 * time.Millisecond
	start := time.Now()
	winner, err := First(context.Background(), timeout, sig)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if winner != NoWinner {
		t.Fatalf("expected NoWinner, got %d", winner)
	}
	if elapsed < timeout {
		t.Errorf("returned before the deadline: %v < %v", elapsed, timeout)
	}
	if elapsed > timeout+100*time.Millisecond {
		t.Errorf("returned far past the deadline: %v", elapsed)
	}
}

func TestFirstSignalWinsBeforeDeadline(t *testing.T) {
	a := NewSignal()
	b := NewSignal()

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Set()
	}()

	start := time.Now()
	winner, err := First(context.Background(), time.Second, a, b)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if winner != 1 {
		t.Fatalf("expected winner 1, got %d", winner)
	}
	if elapsed >= time.Second {
		t.Errorf("race did not resolve before the deadline: %v", elapsed)
	}
}

func TestFirstTieBreaksToLowestIndex(t *testing.T) {
	a := NewSignal()
	b := NewSignal()

	// Both ready before the race starts: deterministic result regardless of
	// which waiter goroutine reports first.
	b.Set()
	a.Set()

	for i := 0; i < 100; i++ {
		winner, err := First(context.Background(), time.Second, a, b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if winner != 0 {
			t.Fatalf("iteration %d: expected winner 0, got %d", i, winner)
		}
	}
}

func TestFirstNoDeadline(t *testing.T) {
	sig := NewSignal()
	go func() {
		time.Sleep(10 * time.Millisecond)
		sig.Set()
	}()

	winner, err := First(context.Background(), 0, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if winner != 0 {
		t.Fatalf("expected winner 0, got %d", winner)
	}
}

func TestFirstCancellation(t *testing.T) {
	sig := NewSignal()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := make(chan error, 1)
	go func() {
		_, err := First(ctx, time.Minute, sig)
		result <- err
	}()

	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("race did not unwind on cancellation")
	}
}

// A fire from a previous race generation must not complete the next race.
func TestLateFireDoesNotLeakAcrossArm(t *testing.T) {
	sig := NewSignal()

	// First race times out; the signal fires late, after the race resolved.
	winner, err := First(context.Background(), 10*time.Millisecond, sig)
	if err != nil || winner != NoWinner {
		t.Fatalf("expected timeout, got winner=%d err=%v", winner, err)
	}
	sig.Set() // late fire for the resolved race

	// Next trial arms the signal: the late fire must be discarded.
	sig.Arm()
	winner, err = First(context.Background(), 30*time.Millisecond, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if winner != NoWinner {
		t.Fatalf("late fire leaked into the next race: winner %d", winner)
	}
}

func TestSignalSetOncePerArm(t *testing.T) {
	sig := NewSignal()
	sig.Set()
	sig.Set() // second set within one arm generation is a no-op

	if !sig.Fired() {
		t.Fatal("signal should report fired")
	}

	sig.Arm()
	if sig.Fired() {
		t.Fatal("armed signal should not report fired")
	}
}
