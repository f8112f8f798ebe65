package sequencer

import (
	"context"
	"time"

	"github.com/evokelab/entrain/internal/model"
	"github.com/evokelab/entrain/internal/race"
)

// Trial identifies one planned trial to a presentation strategy.
type Trial struct {
	Index      int
	Total      int
	ClassIndex int
	Class      model.ClassSpec
}

// EmitFunc publishes the trial's record. Strategies call it exactly once:
// fixed presentations before sleeping through the window, racing
// presentations after the race resolves.
type EmitFunc func(ctx context.Context, kind model.CompletionKind, span model.Span) error

// Strategy drives the action window for one trial.
type Strategy interface {
	Run(ctx context.Context, t Trial, emit EmitFunc) error
}

// FixedPresentation displays the stimulus passively for its full window. The
// record is emitted at the start of the window so downstream alignment
// covers the whole presentation.
type FixedPresentation struct {
	Window time.Duration
}

func (p FixedPresentation) Run(ctx context.Context, t Trial, emit EmitFunc) error {
	if err := emit(ctx, model.CompletionNormal, model.Span{End: p.Window}); err != nil {
		return err
	}
	return sleep(ctx, p.Window)
}

// RacingPresentation races the trial's completion signals against a bounded
// time budget. The record is emitted after the window ends, annotated with
// the outcome and a span reaching back to the start of the race.
type RacingPresentation struct {
	Timeout time.Duration

	// Signals returns the completion signals racing for this trial. The
	// sequencer's per-trial clear has already armed them.
	Signals func(t Trial) []*race.Signal

	// Await, when set, is an unbounded cancellable precondition that runs
	// before the timed race (the centering action in center-out layouts).
	Await func(ctx context.Context, t Trial) error

	// Begin and End bracket the window so transiently-enabled response
	// controls can be armed and disarmed. End runs on every exit path,
	// including cancellation mid-window.
	Begin func(t Trial)
	End   func(t Trial)
}

func (p RacingPresentation) Run(ctx context.Context, t Trial, emit EmitFunc) error {
	if p.Begin != nil {
		p.Begin(t)
	}
	if p.End != nil {
		defer p.End(t)
	}

	if p.Await != nil {
		if err := p.Await(ctx, t); err != nil {
			return err
		}
	}

	var signals []*race.Signal
	if p.Signals != nil {
		signals = p.Signals(t)
	}
	start := time.Now()
	winner, err := race.First(ctx, p.Timeout, signals...)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	kind := model.CompletionNormal
	if winner == race.NoWinner {
		kind = model.CompletionTimeout
	}
	return emit(ctx, kind, model.Span{Start: -elapsed})
}

// sleep suspends until d elapses or ctx is cancelled. Non-positive durations
// return immediately after a cancellation check.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
