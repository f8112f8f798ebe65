package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evokelab/entrain/internal/model"
)

func TestMailboxFIFO(t *testing.T) {
	m := New[int](8)
	for i := 1; i <= 3; i++ {
		if err := m.Put(i); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	for want := 1; want <= 3; want++ {
		got, err := m.Get(context.Background())
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty mailbox, len %d", m.Len())
	}
}

func TestMailboxBackpressure(t *testing.T) {
	m := New[int](2)
	if err := m.Put(1); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.Put(2); err != nil {
		t.Fatalf("put: %v", err)
	}

	err := m.Put(3)
	if !errors.Is(err, model.ErrMailboxFull) {
		t.Fatalf("expected ErrMailboxFull, got %v", err)
	}
	// The rejected item was not enqueued.
	if m.Len() != 2 {
		t.Fatalf("expected len 2, got %d", m.Len())
	}
}

func TestMailboxGetBlocksUntilPut(t *testing.T) {
	m := New[string](4)

	got := make(chan string, 1)
	go func() {
		v, err := m.Get(context.Background())
		if err != nil {
			return
		}
		got <- v
	}()

	time.Sleep(10 * time.Millisecond)
	if err := m.Put("decode"); err != nil {
		t.Fatalf("put: %v", err)
	}

	select {
	case v := <-got:
		if v != "decode" {
			t.Fatalf("expected %q, got %q", "decode", v)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not wake on put")
	}
}

func TestMailboxGetCancellation(t *testing.T) {
	m := New[int](4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Get(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestMailboxReset(t *testing.T) {
	m := New[int](8)
	for i := 0; i < 5; i++ {
		if err := m.Put(i); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	if n := m.Reset(); n != 5 {
		t.Fatalf("expected 5 dropped, got %d", n)
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty mailbox after reset, len %d", m.Len())
	}

	// The mailbox stays usable after a reset.
	if err := m.Put(42); err != nil {
		t.Fatalf("put after reset: %v", err)
	}
	v, err := m.Get(context.Background())
	if err != nil || v != 42 {
		t.Fatalf("get after reset: v=%d err=%v", v, err)
	}
}

func TestMailboxDefaultCapacity(t *testing.T) {
	m := New[int](0)
	for i := 0; i < DefaultCapacity; i++ {
		if err := m.Put(i); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	if err := m.Put(-1); !errors.Is(err, model.ErrMailboxFull) {
		t.Fatalf("expected ErrMailboxFull at default capacity, got %v", err)
	}
}
