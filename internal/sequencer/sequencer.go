// Package sequencer drives the ordered macro-phases of an experiment run:
// pre-run wait, the trial loop (intertrial interval, action window, optional
// feedback), post-run wait, and terminal completion. It owns overall run
// state; the per-paradigm behavior is injected as a small capability set
// (presentation strategy, record payload factory, feedback step).
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/stat"

	"github.com/evokelab/entrain/internal/bus"
	"github.com/evokelab/entrain/internal/feedback"
	"github.com/evokelab/entrain/internal/model"
	"github.com/evokelab/entrain/internal/plan"
	"github.com/evokelab/entrain/internal/telemetry"
	"github.com/evokelab/entrain/internal/trigger"
)

// Renderer is the caller-supplied stimulus presentation surface. The engine
// only drives presentation state; drawing belongs to the caller.
type Renderer interface {
	// Present cues a class. Clear means no class is currently cued.
	Present(label string)
	Clear()
	// Highlight flags the stimulus whose reversal period matched a decode.
	Highlight(periodMS int)
}

// FeedbackStep runs the optional post-window correlation for one trial.
type FeedbackStep interface {
	Correlate(ctx context.Context, targetPeriodMS int) (feedback.Result, error)
}

// Config wires one run. All fields are read-only snapshots for the run's
// lifetime.
type Config struct {
	RunID    uuid.UUID
	Paradigm string
	Slug     string
	Run      model.RunConfig
	Order    plan.Order

	Strategy Strategy

	// Payload produces the paradigm-specific record payload (stimulation
	// frequency list and target index) for a class index. Nil means no
	// payload (reaction trials).
	Payload func(classIndex int) ([]float64, int)

	// ClearSignals arms the per-trial completion signals before each ITI.
	// Nil when the paradigm races nothing.
	ClearSignals func()

	// ResetInbox flushes the decode inbox at the pre-run to first-trial
	// transition, returning the number of stale messages discarded. Nil
	// without a decode stream.
	ResetInbox func() int

	// Feedback, when non-nil, runs after each trial's action window.
	Feedback      FeedbackStep
	FeedbackDelay time.Duration
	FeedbackHold  time.Duration

	Renderer Renderer
	Emitter  *trigger.Emitter
	Cues     *bus.Broker[model.Cue]
	Progress *bus.Broker[model.Progress]

	Rand   *rand.Rand
	Logger *slog.Logger
}

// Sequencer executes one run. Single-use: Execute may be called once.
type Sequencer struct {
	cfg      Config
	tracer   trace.Tracer
	outcomes metric.Int64Counter

	phase     model.Phase
	completed int
	matches   []float64 // per-correlated-trial indicator for accuracy
}

// New creates a sequencer for one run.
func New(cfg Config) *Sequencer {
	meter := telemetry.Meter("entrain/sequencer")
	outcomes, _ := meter.Int64Counter("entrain.feedback.outcomes",
		metric.WithDescription("Feedback correlation outcomes by result"),
	)
	return &Sequencer{
		cfg:      cfg,
		tracer:   telemetry.Tracer("entrain/sequencer"),
		outcomes: outcomes,
		phase:    model.PhaseIdle,
	}
}

// Phase returns the current macro-phase of the run.
func (s *Sequencer) Phase() model.Phase {
	return s.phase
}

// Execute drives the run to a terminal state and returns its summary.
// Completion is a value: a nil error means COMPLETED. Cancellation surfaces
// as ABORTED with the context error wrapped; anything else is FAILED.
// Records are observable on the sink as they are produced, never batched.
func (s *Sequencer) Execute(ctx context.Context) (model.Summary, error) {
	summary := model.Summary{
		RunID:     s.cfg.RunID,
		Paradigm:  s.cfg.Paradigm,
		Slug:      s.cfg.Slug,
		Planned:   len(s.cfg.Order),
		StartedAt: time.Now().UTC(),
	}

	ctx, span := s.tracer.Start(ctx, "entrain.run",
		trace.WithAttributes(
			attribute.String("run.id", s.cfg.RunID.String()),
			attribute.String("run.paradigm", s.cfg.Paradigm),
			attribute.Int("run.planned_trials", len(s.cfg.Order)),
		),
	)
	defer span.End()

	err := s.run(ctx, &summary)
	summary.EndedAt = time.Now().UTC()

	switch {
	case err == nil:
		s.setPhase(model.PhaseComplete)
		summary.Outcome = model.OutcomeCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		s.setPhase(model.PhaseAborted)
		summary.Outcome = model.OutcomeAborted
		err = fmt.Errorf("run aborted: %w", err)
		summary.Error = err.Error()
	default:
		s.setPhase(model.PhaseAborted)
		summary.Outcome = model.OutcomeFailed
		summary.Error = err.Error()
	}

	if len(s.matches) > 0 {
		summary.FeedbackAccuracy = stat.Mean(s.matches, nil)
	}

	s.publishProgress(0, string(summary.Outcome))
	s.cfg.Logger.Info("sequencer: run finished",
		"run_id", s.cfg.RunID,
		"outcome", summary.Outcome,
		"emitted", summary.Emitted,
		"planned", summary.Planned,
	)
	return summary, err
}

func (s *Sequencer) run(ctx context.Context, summary *model.Summary) error {
	s.setPhase(model.PhasePreRun)
	s.publishProgress(0, "Pre Run")
	s.cue("")
	if err := sleep(ctx, s.cfg.Run.PreRunDuration); err != nil {
		return err
	}

	// Flush stale pre-run messages so they cannot be misattributed to
	// trial 1.
	if s.cfg.ResetInbox != nil {
		if n := s.cfg.ResetInbox(); n > 0 {
			s.cfg.Logger.Debug("sequencer: discarded stale decode messages", "count", n)
		}
	}

	for i, classIdx := range s.cfg.Order {
		if err := s.runTrial(ctx, i, classIdx, summary); err != nil {
			return err
		}
	}

	s.setPhase(model.PhasePostRun)
	s.publishProgress(0, "Post Run")
	s.cue("")
	return sleep(ctx, s.cfg.Run.PostRunDuration)
}

func (s *Sequencer) runTrial(ctx context.Context, i, classIdx int, summary *model.Summary) error {
	class := s.cfg.Run.Classes[classIdx]
	total := len(s.cfg.Order)
	trialID := fmt.Sprintf("Trial %d / %d", i+1, total)

	ctx, span := s.tracer.Start(ctx, "entrain.trial",
		trace.WithAttributes(
			attribute.Int("trial.index", i),
			attribute.String("trial.class", class.Label),
		),
	)
	defer span.End()

	// Intertrial interval: clear signals, cue nothing, sleep a uniform draw
	// from [ITIMin, ITIMax].
	s.setPhase(model.PhaseITI)
	s.publishProgress(i+1, trialID+": Intertrial Interval")
	if s.cfg.ClearSignals != nil {
		s.cfg.ClearSignals()
	}
	s.cue("")
	if err := sleep(ctx, s.drawITI()); err != nil {
		return err
	}

	s.setPhase(model.PhaseAction)
	s.publishProgress(i+1, trialID+": "+class.Label)
	s.cue(class.Label)
	if err := sleep(ctx, s.cfg.Run.FocusCueDuration); err != nil {
		return err
	}

	emit := func(ctx context.Context, kind model.CompletionKind, span model.Span) error {
		freqs, target := []float64(nil), model.NoTarget
		if s.cfg.Payload != nil {
			freqs, target = s.cfg.Payload(classIdx)
		}
		rec := model.TrialRecord{
			RunID:      s.cfg.RunID,
			TrialIndex: i,
			Class:      class.Label,
			Completion: kind,
			Span:       span,
			Freqs:      freqs,
			Target:     target,
			EmittedAt:  time.Now().UTC(),
		}
		if err := s.cfg.Emitter.Emit(ctx, rec); err != nil {
			return err
		}
		summary.Emitted++
		return nil
	}

	trial := Trial{Index: i, Total: total, ClassIndex: classIdx, Class: class}
	if err := s.cfg.Strategy.Run(ctx, trial, emit); err != nil {
		return err
	}

	if s.cfg.Feedback != nil {
		if err := s.runFeedback(ctx, i, trialID, class, summary); err != nil {
			return err
		}
	}

	// Progress is monotonic and advances only after emission.
	s.completed = i + 1
	s.publishProgress(i+1, trialID+": Complete")
	return nil
}

func (s *Sequencer) runFeedback(ctx context.Context, i int, trialID string, class model.ClassSpec, summary *model.Summary) error {
	s.setPhase(model.PhaseFeedback)
	s.publishProgress(i+1, trialID+": Feedback")
	if err := sleep(ctx, s.cfg.FeedbackDelay); err != nil {
		return err
	}

	res, err := s.cfg.Feedback.Correlate(ctx, class.PeriodMS)
	if err != nil {
		return err
	}
	switch {
	case res.TimedOut:
		summary.FeedbackMissed++
		s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "missed")))
	case res.Matched:
		summary.FeedbackMatched++
		s.matches = append(s.matches, 1)
		s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "matched")))
	default:
		summary.FeedbackMismatched++
		s.matches = append(s.matches, 0)
		s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "mismatched")))
	}
	if !res.TimedOut && res.ObservedPeriodMS > 0 {
		s.cfg.Renderer.Highlight(res.ObservedPeriodMS)
	}
	return sleep(ctx, s.cfg.FeedbackHold)
}

// drawITI draws an intertrial interval uniformly from [ITIMin, ITIMax].
func (s *Sequencer) drawITI() time.Duration {
	span := s.cfg.Run.ITIMax - s.cfg.Run.ITIMin
	if span <= 0 {
		return s.cfg.Run.ITIMin
	}
	return s.cfg.Run.ITIMin + time.Duration(s.cfg.Rand.Int63n(int64(span)))
}

// cue publishes the currently cued class to the renderer and the cue stream.
// The empty label means no class is cued.
func (s *Sequencer) cue(label string) {
	if label == "" {
		s.cfg.Renderer.Clear()
	} else {
		s.cfg.Renderer.Present(label)
	}
	s.cfg.Cues.Publish(model.Cue{Label: label, At: time.Now().UTC()})
}

func (s *Sequencer) setPhase(p model.Phase) {
	s.phase = p
}

func (s *Sequencer) publishProgress(trial int, status string) {
	s.cfg.Progress.Publish(model.Progress{
		Phase:     s.phase,
		Trial:     trial,
		Total:     len(s.cfg.Order),
		Completed: s.completed,
		Status:    status,
	})
}
