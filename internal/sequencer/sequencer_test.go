package sequencer

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evokelab/entrain/internal/bus"
	"github.com/evokelab/entrain/internal/feedback"
	"github.com/evokelab/entrain/internal/model"
	"github.com/evokelab/entrain/internal/plan"
	"github.com/evokelab/entrain/internal/trigger"
)

type collectSink struct {
	mu      sync.Mutex
	records []model.TrialRecord
	fail    error
}

func (s *collectSink) Write(_ context.Context, rec model.TrialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *collectSink) all() []model.TrialRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TrialRecord(nil), s.records...)
}

type recordingRenderer struct {
	mu         sync.Mutex
	presented  []string
	clears     int
	highlights []int
}

func (r *recordingRenderer) Present(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presented = append(r.presented, label)
}

func (r *recordingRenderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
}

func (r *recordingRenderer) Highlight(periodMS int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.highlights = append(r.highlights, periodMS)
}

type scriptedFeedback struct {
	mu      sync.Mutex
	results []feedback.Result
}

func (f *scriptedFeedback) Correlate(_ context.Context, _ int) (feedback.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := f.results[0]
	f.results = f.results[1:]
	return res, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, run model.RunConfig, order plan.Order, sink trigger.Sink) Config {
	t.Helper()
	logger := testLogger()
	return Config{
		RunID:    uuid.New(),
		Paradigm: "test",
		Slug:     "TEST",
		Run:      run,
		Order:    order,
		Renderer: &recordingRenderer{},
		Emitter:  trigger.New(sink, logger),
		Cues:     bus.NewBroker[model.Cue](logger),
		Progress: bus.NewBroker[model.Progress](logger),
		Rand:     rand.New(rand.NewSource(1)),
		Logger:   logger,
	}
}

func quickRun(classes ...model.ClassSpec) model.RunConfig {
	return model.RunConfig{
		TrialsPerClass:  1,
		TrialDuration:   2 * time.Millisecond,
		ITIMin:          time.Millisecond,
		ITIMax:          time.Millisecond,
		PreRunDuration:  time.Millisecond,
		PostRunDuration: time.Millisecond,
		Classes:         classes,
	}
}

func TestExecuteFixedRunEmitsEveryTrial(t *testing.T) {
	run := quickRun(model.ClassSpec{Label: "A", PeriodMS: 100}, model.ClassSpec{Label: "B", PeriodMS: 50})
	sink := &collectSink{}
	cfg := testConfig(t, run, plan.Order{0, 1}, sink)
	cfg.Strategy = FixedPresentation{Window: run.TrialDuration}
	cfg.Payload = func(classIdx int) ([]float64, int) {
		return []float64{10, 20}, classIdx
	}

	summary, err := New(cfg).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeCompleted, summary.Outcome)
	assert.Equal(t, 2, summary.Planned)
	assert.Equal(t, 2, summary.Emitted)
	assert.False(t, summary.EndedAt.Before(summary.StartedAt))

	recs := sink.all()
	require.Len(t, recs, 2)
	labels := []string{recs[0].Class, recs[1].Class}
	assert.ElementsMatch(t, []string{"A", "B"}, labels)
	for i, rec := range recs {
		assert.Equal(t, cfg.RunID, rec.RunID)
		assert.Equal(t, i, rec.TrialIndex)
		assert.Equal(t, model.CompletionNormal, rec.Completion)
		assert.Equal(t, model.Span{Start: 0, End: run.TrialDuration}, rec.Span)
		assert.Equal(t, []float64{10, 20}, rec.Freqs)
	}
}

func TestExecuteRacingTimeoutStillEmits(t *testing.T) {
	run := quickRun(model.ClassSpec{Label: "GO"})
	run.Timeout = 5 * time.Millisecond
	sink := &collectSink{}
	cfg := testConfig(t, run, plan.Order{0}, sink)
	cfg.Strategy = RacingPresentation{Timeout: run.Timeout}

	summary, err := New(cfg).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeCompleted, summary.Outcome)
	assert.Equal(t, 1, summary.Emitted)

	recs := sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, model.CompletionTimeout, recs[0].Completion)
	assert.Negative(t, recs[0].Span.Start)
	assert.Zero(t, recs[0].Span.End)
	assert.Equal(t, model.NoTarget, recs[0].Target)
	assert.Empty(t, recs[0].Freqs)
}

func TestExecuteCancelKeepsEmittedRecords(t *testing.T) {
	run := quickRun(
		model.ClassSpec{Label: "A"},
		model.ClassSpec{Label: "B"},
	)
	run.TrialsPerClass = 5
	run.TrialDuration = 20 * time.Millisecond
	sink := &collectSink{}
	cfg := testConfig(t, run, plan.Order{0, 1, 0, 1, 0}, sink)
	cfg.Strategy = FixedPresentation{Window: run.TrialDuration}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Let roughly two trials complete before aborting.
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	summary, err := New(cfg).Execute(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, model.OutcomeAborted, summary.Outcome)
	assert.NotEmpty(t, summary.Error)
	assert.Less(t, summary.Emitted, summary.Planned)
	assert.Len(t, sink.all(), summary.Emitted)
}

func TestExecuteEmptyOrderCompletesWithoutTrials(t *testing.T) {
	run := quickRun(model.ClassSpec{Label: "A"})
	sink := &collectSink{}
	cfg := testConfig(t, run, plan.Order{}, sink)
	cfg.Strategy = FixedPresentation{Window: run.TrialDuration}

	summary, err := New(cfg).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCompleted, summary.Outcome)
	assert.Zero(t, summary.Emitted)
	assert.Empty(t, sink.all())
}

func TestExecuteFeedbackTallies(t *testing.T) {
	run := quickRun(model.ClassSpec{Label: "A", PeriodMS: 100})
	run.TrialsPerClass = 3
	sink := &collectSink{}
	cfg := testConfig(t, run, plan.Order{0, 0, 0}, sink)
	cfg.Strategy = FixedPresentation{Window: run.TrialDuration}
	renderer := &recordingRenderer{}
	cfg.Renderer = renderer
	cfg.Feedback = &scriptedFeedback{results: []feedback.Result{
		{Matched: true, ObservedIndex: 0, ObservedPeriodMS: 100},
		{Matched: false, ObservedIndex: 1, ObservedPeriodMS: 50},
		{TimedOut: true, ObservedIndex: feedback.NoObservation},
	}}

	summary, err := New(cfg).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FeedbackMatched)
	assert.Equal(t, 1, summary.FeedbackMismatched)
	assert.Equal(t, 1, summary.FeedbackMissed)
	assert.InDelta(t, 0.5, summary.FeedbackAccuracy, 1e-9)

	// Only correlations with an observation highlight a stimulus.
	assert.Equal(t, []int{100, 50}, renderer.highlights)
}

func TestExecutePublishesCuesAndProgress(t *testing.T) {
	run := quickRun(model.ClassSpec{Label: "LEFT"})
	sink := &collectSink{}
	cfg := testConfig(t, run, plan.Order{0}, sink)
	cfg.Strategy = FixedPresentation{Window: run.TrialDuration}

	cues := cfg.Cues.Subscribe()
	progress := cfg.Progress.Subscribe()

	_, err := New(cfg).Execute(context.Background())
	require.NoError(t, err)
	cfg.Cues.Close()
	cfg.Progress.Close()

	var labels []string
	for cue := range cues {
		labels = append(labels, cue.Label)
	}
	// Pre-run clear, ITI clear, action cue, post-run clear.
	assert.Equal(t, []string{"", "", "LEFT", ""}, labels)

	var phases []model.Phase
	for p := range progress {
		phases = append(phases, p.Phase)
	}
	assert.Equal(t, []model.Phase{
		model.PhasePreRun,
		model.PhaseITI,
		model.PhaseAction,
		model.PhaseAction,
		model.PhasePostRun,
		model.PhaseComplete,
	}, phases)
}

func TestExecuteSinkFailureFailsRun(t *testing.T) {
	run := quickRun(model.ClassSpec{Label: "A"})
	sink := &collectSink{fail: model.ErrSinkClosed}
	cfg := testConfig(t, run, plan.Order{0}, sink)
	cfg.Strategy = FixedPresentation{Window: run.TrialDuration}

	summary, err := New(cfg).Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrSinkClosed)
	assert.Equal(t, model.OutcomeFailed, summary.Outcome)
	assert.Zero(t, summary.Emitted)
}
