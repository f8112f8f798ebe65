// Package entrain is the public API for embedding the entrain trial
// sequencing engine.
//
// A Session is one experiment run: construct with New, drive with
// Start/Wait/Cancel:
//
//	session, err := entrain.New(cfg,
//	    entrain.WithLogger(logger),
//	    entrain.WithRenderer(myRenderer),
//	    entrain.WithRecordSink(mySink),
//	)
//	if err != nil { ... }
//	if err := session.Start(ctx); err != nil { ... }
//	summary, err := session.Wait(ctx)
//
// The import graph enforces a strict no-cycle rule: entrain (root) imports
// internal/*, but internal/* never imports entrain (root). Public types
// (TrialRecord, Summary, etc.) are standalone structs with no internal
// imports; conversion helpers live here because this is the only file that
// sees both sides of the boundary.
package entrain

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/evokelab/entrain/internal/bus"
	"github.com/evokelab/entrain/internal/config"
	"github.com/evokelab/entrain/internal/feedback"
	"github.com/evokelab/entrain/internal/gate"
	"github.com/evokelab/entrain/internal/mailbox"
	"github.com/evokelab/entrain/internal/model"
	"github.com/evokelab/entrain/internal/paradigm"
	"github.com/evokelab/entrain/internal/plan"
	"github.com/evokelab/entrain/internal/sequencer"
	"github.com/evokelab/entrain/internal/trigger"
)

// Sentinel errors, re-exported for errors.Is checks against the public API.
var (
	ErrInvalidConfiguration = model.ErrInvalidConfiguration
	ErrSessionActive        = model.ErrSessionActive
	ErrSinkClosed           = model.ErrSinkClosed
)

// streamBuffer is the default buffer for the public Records channel and the
// per-stream fan-out channels.
const streamBuffer = 16

// Session is one experiment run. Sessions are single-use: a second Start is
// an error, and a finished session cannot be restarted.
type Session struct {
	cfg    Config
	run    model.RunConfig
	bundle *paradigm.Bundle
	order  plan.Order
	runID  uuid.UUID

	inbox *mailbox.Mailbox[model.DecodeMessage]
	seq   *sequencer.Sequencer
	gate  *gate.Gate

	cueBroker      *bus.Broker[model.Cue]
	progressBroker *bus.Broker[model.Progress]

	chSink   *trigger.ChannelSink // nil when an external RecordSink is set
	records  chan TrialRecord
	cues     chan Cue
	progress chan Progress

	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	summary Summary
	runErr  error

	closeOnce sync.Once
	logger    *slog.Logger
}

// New validates the configuration, freezes the run parameters, and wires the
// paradigm, per-run mailboxes, and streams. It does not start the run — call
// Start.
func New(cfg Config, opts ...Option) (*Session, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	envCfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	inboxSize := envCfg.DecodeInboxSize
	if o.inboxSize > 0 {
		inboxSize = o.inboxSize
	}

	seed := time.Now().UnixNano()
	if o.seeded {
		seed = o.seed
	}
	rng := rand.New(rand.NewSource(seed))

	run, popts := freeze(cfg, logger)
	bundle, run, err := paradigm.Build(cfg.Paradigm, run, popts, logger)
	if err != nil {
		return nil, err
	}
	if err := run.Validate(); err != nil {
		return nil, err
	}

	order, err := plan.Blocks(run.Classes, run.TrialsPerClass, rng)
	if err != nil {
		return nil, err
	}

	runID := uuid.New()
	inbox := mailbox.New[model.DecodeMessage](inboxSize)

	s := &Session{
		cfg:            cfg,
		run:            run,
		bundle:         bundle,
		order:          order,
		runID:          runID,
		inbox:          inbox,
		cueBroker:      bus.NewBroker[model.Cue](logger),
		progressBroker: bus.NewBroker[model.Progress](logger),
		records:        make(chan TrialRecord, bufferOr(o.recordBuffer)),
		cues:           make(chan Cue, streamBuffer),
		progress:       make(chan Progress, streamBuffer),
		done:           make(chan struct{}),
		logger:         logger,
	}

	var sink trigger.Sink
	if o.sink != nil {
		sink = &sinkAdapter{inner: o.sink}
		// No channel consumer when an external sink is wired.
		close(s.records)
	} else {
		s.chSink = trigger.NewChannelSink(bufferOr(o.recordBuffer))
		sink = s.chSink
	}

	renderer := Renderer(noopRenderer{})
	if o.renderer != nil {
		renderer = o.renderer
	}
	surface := ControlSurface(noopSurface{})
	if o.surface != nil {
		surface = o.surface
	}

	var fb sequencer.FeedbackStep
	feedbackEnabled := run.FeedbackEnabled && bundle.SupportsFeedback
	if feedbackEnabled {
		fb = feedback.New(inbox, run.FeedbackWindow, logger)
	}

	s.seq = sequencer.New(sequencer.Config{
		RunID:         runID,
		Paradigm:      bundle.Name,
		Slug:          bundle.Slug,
		Run:           run,
		Order:         order,
		Strategy:      bundle.Strategy,
		Payload:       bundle.Payload,
		ClearSignals:  bundle.ClearSignals,
		ResetInbox:    inbox.Reset,
		Feedback:      fb,
		FeedbackDelay: run.FeedbackDelay,
		FeedbackHold:  run.FeedbackHold,
		Renderer:      renderer,
		Emitter:       trigger.New(sink, logger),
		Cues:          s.cueBroker,
		Progress:      s.progressBroker,
		Rand:          rng,
		Logger:        logger,
	})
	s.gate = gate.New(surface, renderer.Clear, logger)

	logger.Info("session: created",
		"run_id", runID,
		"paradigm", bundle.Name,
		"planned_trials", len(order),
		"estimated_duration", run.Estimate(bundle.Window),
	)
	return s, nil
}

// Start launches the run task. It returns immediately; the run proceeds in
// the background until completion, failure, or Cancel. A second Start is
// ErrSessionActive.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSessionActive
	}

	s.inbox.RegisterMetrics("decode_inbox")

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	cueSub := s.cueBroker.Subscribe()
	progressSub := s.progressBroker.Subscribe()

	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() {
		defer pumps.Done()
		for c := range cueSub {
			// Cues are advisory; slow subscribers miss them rather than
			// stall the run.
			select {
			case s.cues <- Cue(c):
			default:
			}
		}
		close(s.cues)
	}()
	go func() {
		defer pumps.Done()
		for p := range progressSub {
			select {
			case s.progress <- toPublicProgress(p):
			default:
			}
		}
		close(s.progress)
	}()

	if s.chSink != nil {
		pumps.Add(1)
		go func() {
			defer pumps.Done()
			// Records block: the never-drop contract holds through to the
			// public channel.
			for rec := range s.chSink.Records() {
				s.records <- toPublicRecord(rec)
			}
			close(s.records)
		}()
	}

	go func() {
		defer close(s.done)

		var summary model.Summary
		err := s.gate.Run(runCtx, func(ctx context.Context) error {
			var execErr error
			summary, execErr = s.seq.Execute(ctx)
			return execErr
		})

		cancel()
		if s.chSink != nil {
			s.chSink.Close()
		}
		s.cueBroker.Close()
		s.progressBroker.Close()
		pumps.Wait()

		s.summary = toPublicSummary(summary)
		s.runErr = err
	}()

	s.logger.Info("session: started", "run_id", s.runID)
	return nil
}

// Wait blocks until the run reaches a terminal state or ctx expires. The
// returned error is nil for COMPLETED, wraps the cancellation cause for
// ABORTED, and carries the failure for FAILED.
func (s *Session) Wait(ctx context.Context) (Summary, error) {
	select {
	case <-s.done:
		return s.summary, s.runErr
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
}

// Cancel requests an abort. Safe to call at any time, from any goroutine,
// repeatedly.
func (s *Session) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Close cancels any active run and waits for stream teardown. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.started.Load() {
			s.Cancel()
			<-s.done
		} else {
			s.cueBroker.Close()
			s.progressBroker.Close()
		}
		s.logger.Debug("session: closed", "run_id", s.runID)
	})
	return nil
}

// Records streams TrialRecords as they are emitted. The channel blocks the
// run when full and closes at run end; the consumer must drain it. Closed
// immediately when WithRecordSink replaced it.
func (s *Session) Records() <-chan TrialRecord {
	return s.records
}

// Cues streams the currently cued class. Fan-out with a small buffer: slow
// consumers miss cues rather than stall the run.
func (s *Session) Cues() <-chan Cue {
	return s.cues
}

// Progress streams phase and trial-counter updates, same delivery contract
// as Cues.
func (s *Session) Progress() <-chan Progress {
	return s.progress
}

// Action fires a user-action completion signal. The empty label is the
// primary control; other labels address direction signals. Unknown labels
// and paradigms without actions are logged and ignored.
func (s *Session) Action(label string) {
	if label == "" {
		if s.bundle.Primary == nil {
			s.logger.Debug("session: action ignored, paradigm takes no actions")
			return
		}
		s.bundle.Primary.Set()
		return
	}
	sig, ok := s.bundle.Signals[label]
	if !ok {
		s.logger.Warn("session: action for unknown label", "label", label)
		return
	}
	sig.Set()
}

// Decode feeds one classifier score vector into the per-run inbox. When the
// inbox is full the message is dropped with a warning; the run never blocks
// on a producer.
func (s *Session) Decode(msg DecodeMessage) {
	if err := s.inbox.Put(model.DecodeMessage(msg)); err != nil {
		s.logger.Warn("session: decode message dropped", "error", err)
	}
}

// DecodedClass feeds one decoded class label to the reaction decode watcher.
// A no-op for paradigms without one.
func (s *Session) DecodedClass(label string) {
	if s.bundle.Watcher != nil {
		s.bundle.Watcher.Observe(label)
	}
}

// RunID returns the run's identifier, stamped on every record.
func (s *Session) RunID() uuid.UUID {
	return s.runID
}

// Paradigm returns the canonical paradigm name.
func (s *Session) Paradigm() string {
	return s.bundle.Name
}

// Slug returns the paradigm's short tag used in record file names.
func (s *Session) Slug() string {
	return s.bundle.Slug
}

// Planned returns the total trial count.
func (s *Session) Planned() int {
	return len(s.order)
}

// Classes returns the frozen class set in plan order.
func (s *Session) Classes() []ClassSpec {
	out := make([]ClassSpec, len(s.run.Classes))
	for i, c := range s.run.Classes {
		out[i] = ClassSpec{
			Label:         c.Label,
			Frequency:     c.Frequency(),
			BaseFrequency: c.BaseFrequency(),
		}
	}
	return out
}

// Estimate returns the expected wall-clock length of the run.
func (s *Session) Estimate() time.Duration {
	return s.run.Estimate(s.bundle.Window)
}

// freeze converts the public config into the internal run parameters and
// paradigm options, snapping stimulation frequencies to
// integral-millisecond reversal periods (logged whenever snapping moved a
// frequency).
func freeze(cfg Config, logger *slog.Logger) (model.RunConfig, paradigm.Options) {
	run := model.RunConfig{
		TrialsPerClass:   cfg.TrialsPerClass,
		TrialDuration:    cfg.TrialDuration,
		Timeout:          cfg.Timeout,
		ITIMin:           cfg.ITIMin,
		ITIMax:           cfg.ITIMax,
		PreRunDuration:   cfg.PreRunDuration,
		PostRunDuration:  cfg.PostRunDuration,
		FocusCueDuration: cfg.FocusCueDuration,
		FeedbackEnabled:  cfg.FeedbackEnabled,
		FeedbackDelay:    cfg.FeedbackDelay,
		FeedbackWindow:   cfg.FeedbackWindow,
		FeedbackHold:     cfg.FeedbackHold,
		Multiclass:       cfg.Multiclass,
	}
	for _, c := range cfg.Classes {
		spec := model.ClassSpec{Label: c.Label}
		if c.Frequency != 0 {
			spec.PeriodMS = snapLogged(logger, c.Label, "frequency", c.Frequency)
		}
		if c.BaseFrequency != 0 {
			spec.BasePeriodMS = snapLogged(logger, c.Label, "base frequency", c.BaseFrequency)
		}
		run.Classes = append(run.Classes, spec)
	}

	opts := paradigm.Options{
		Reaction: paradigm.ReactionOptions{
			Mode:        cfg.Reaction.Mode,
			DecodeClass: cfg.Reaction.DecodeClass,
		},
		SSVEP: paradigm.SSVEPOptions{
			Stimulus: cfg.SSVEP.Stimulus,
		},
		SSAEP: paradigm.SSAEPOptions{
			SampleRate:      cfg.SSAEP.SampleRate,
			LeftCarrier:     cfg.SSAEP.LeftCarrier,
			LeftModulation:  cfg.SSAEP.LeftModulation,
			RightCarrier:    cfg.SSAEP.RightCarrier,
			RightModulation: cfg.SSAEP.RightModulation,
		},
	}
	if cfg.SSVEP.CommonBaseFrequency != 0 {
		opts.SSVEP.CommonBasePeriodMS = snapLogged(logger, "", "common base frequency", cfg.SSVEP.CommonBaseFrequency)
	}
	return run, opts
}

func snapLogged(logger *slog.Logger, class, what string, freq float64) int {
	snapped, period := paradigm.Snap(freq)
	if diff := snapped - freq; diff > 1e-9 || diff < -1e-9 {
		logger.Warn("session: "+what+" snapped to integral-millisecond period",
			"class", class,
			"requested_hz", freq,
			"snapped_hz", snapped,
			"period_ms", period,
		)
	}
	return period
}

func bufferOr(n int) int {
	if n > 0 {
		return n
	}
	return streamBuffer
}

// sinkAdapter bridges a public RecordSink into the emitter's sink contract.
type sinkAdapter struct {
	inner RecordSink
}

func (a *sinkAdapter) Write(ctx context.Context, rec model.TrialRecord) error {
	return a.inner.Write(ctx, toPublicRecord(rec))
}

type noopSurface struct{}

func (noopSurface) Disable() {}
func (noopSurface) Enable()  {}

type noopRenderer struct{}

func (noopRenderer) Present(string) {}
func (noopRenderer) Clear()         {}
func (noopRenderer) Highlight(int)  {}

func toPublicRecord(r model.TrialRecord) TrialRecord {
	return TrialRecord{
		RunID:      r.RunID,
		TrialIndex: r.TrialIndex,
		Class:      r.Class,
		Completion: CompletionKind(r.Completion),
		Span:       Span(r.Span),
		Freqs:      r.Freqs,
		Target:     r.Target,
		EmittedAt:  r.EmittedAt,
	}
}

func toPublicProgress(p model.Progress) Progress {
	return Progress{
		Phase:     Phase(p.Phase),
		Trial:     p.Trial,
		Total:     p.Total,
		Completed: p.Completed,
		Status:    p.Status,
	}
}

func toPublicSummary(m model.Summary) Summary {
	return Summary{
		RunID:              m.RunID,
		Paradigm:           m.Paradigm,
		Slug:               m.Slug,
		Outcome:            Outcome(m.Outcome),
		Planned:            m.Planned,
		Emitted:            m.Emitted,
		FeedbackMatched:    m.FeedbackMatched,
		FeedbackMismatched: m.FeedbackMismatched,
		FeedbackMissed:     m.FeedbackMissed,
		FeedbackAccuracy:   m.FeedbackAccuracy,
		StartedAt:          m.StartedAt,
		EndedAt:            m.EndedAt,
		Error:              m.Error,
	}
}
