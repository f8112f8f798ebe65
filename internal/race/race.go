// Package race implements single-fire completion signals and a bounded
// first-of-N wait over them.
package race

import (
	"context"
	"sync"
	"time"
)

// NoWinner is returned by First when the time budget elapses with no signal
// fired.
const NoWinner = -1

// Signal is a single-fire, level-triggered wait primitive. The run task that
// owns the current trial arms it before each race; the external source (a
// button press, a classifier match) sets it at most once per arm. A Set from
// a previous arm generation is discarded by Arm, so a stale fire can never
// complete a later trial.
type Signal struct {
	mu    sync.Mutex
	fired bool
	ch    chan struct{}
}

// NewSignal returns an armed, unfired signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Arm clears the signal for the upcoming race.
func (s *Signal) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired = false
	s.ch = make(chan struct{})
}

// Set fires the signal. Later calls within the same arm generation are no-ops.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		return
	}
	s.fired = true
	close(s.ch)
}

// Fired reports whether the signal has fired since it was last armed.
func (s *Signal) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// wait snapshots the current arm generation's wait channel.
func (s *Signal) wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// First waits concurrently on all signals and returns the index of the first
// to fire, or NoWinner once timeout elapses with none fired. A timeout of
// zero or less means no deadline. Ties between simultaneously ready signals
// resolve to the lowest input index, independent of goroutine scheduling.
// Losing waiters are detached when the race resolves, so a late fire from a
// prior race never leaks into the next trial. Cancellation returns ctx.Err().
func First(ctx context.Context, timeout time.Duration, signals ...*Signal) (int, error) {
	// Snapshot wait channels up front: a concurrent Arm replaces the channel
	// and must not be observed mid-race.
	chans := make([]<-chan struct{}, len(signals))
	for i, s := range signals {
		chans[i] = s.wait()
	}

	done := make(chan struct{})
	defer close(done) // detach the losing waiters

	fired := make(chan int, len(signals))
	for i := range chans {
		go func(i int) {
			select {
			case <-chans[i]:
				fired <- i // buffered, never blocks
			case <-done:
			}
		}(i)
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-ctx.Done():
		return NoWinner, ctx.Err()
	case i := <-fired:
		return lowestReady(chans, i), nil
	case <-deadline:
		// A signal that fired exactly at the deadline still wins.
		select {
		case i := <-fired:
			return lowestReady(chans, i), nil
		default:
			return NoWinner, nil
		}
	}
}

// lowestReady breaks ties deterministically: the first ready channel in input
// order wins over the goroutine that happened to report first.
func lowestReady(chans []<-chan struct{}, winner int) int {
	for i, ch := range chans {
		if i >= winner {
			break
		}
		select {
		case <-ch:
			return i
		default:
		}
	}
	return winner
}
