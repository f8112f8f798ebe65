// Package model defines the core domain types for entrain.
//
// Types are read-only snapshots for the lifetime of a run: RunConfig and the
// class set are frozen when a session is created, TrialRecords are immutable
// once emitted. Types use strong typing (UUIDs, time.Duration, enums) and
// avoid interface{} wherever possible.
package model

import (
	"time"

	"github.com/google/uuid"
)

// ClassSpec is one selectable trial class. The set is fixed per run once
// planning begins.
type ClassSpec struct {
	Label string `json:"label"`

	// PeriodMS is the stimulation reversal period in whole milliseconds.
	// Zero for classes with no periodic stimulus (reaction directions).
	PeriodMS int `json:"period_ms,omitempty"`

	// BasePeriodMS is the second stimulation component for intermodulation
	// classes. Zero otherwise.
	BasePeriodMS int `json:"base_period_ms,omitempty"`
}

// Frequency returns the stimulation frequency in Hz, or 0 when the class has
// no periodic stimulus.
func (c ClassSpec) Frequency() float64 {
	if c.PeriodMS == 0 {
		return 0
	}
	return 1000.0 / float64(c.PeriodMS)
}

// BaseFrequency returns the intermodulation base frequency in Hz, or 0.
func (c ClassSpec) BaseFrequency() float64 {
	if c.BasePeriodMS == 0 {
		return 0
	}
	return 1000.0 / float64(c.BasePeriodMS)
}

// Span is a trial's time window relative to the record's emission instant.
// Fixed-duration presentations emit at window start, Span = (0, trialDuration).
// Racing presentations emit after the window, Span = (-elapsed, 0).
type Span struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// NoTarget marks a TrialRecord without a target index (reaction trials).
const NoTarget = -1

// TrialRecord is the immutable artifact emitted once per trial boundary.
type TrialRecord struct {
	RunID      uuid.UUID      `json:"run_id"`
	TrialIndex int            `json:"trial_index"`
	Class      string         `json:"class"`
	Completion CompletionKind `json:"completion"`
	Span       Span           `json:"span"`

	// Freqs lists the stimulation frequencies presented this trial, in class
	// order. Empty for paradigms without periodic stimuli.
	Freqs []float64 `json:"freqs,omitempty"`

	// Target indexes Freqs at the attended class, or NoTarget.
	Target int `json:"target"`

	EmittedAt time.Time `json:"emitted_at"`
}

// DecodeMessage is an asynchronous classifier output: one score per candidate
// frequency. Scores and Freqs are index-aligned.
type DecodeMessage struct {
	Scores []float64 `json:"scores"`
	Freqs  []float64 `json:"freqs"`
}

// Cue is one update on the cued-class stream. An empty Label means no class
// is currently cued (intertrial interval, pre/post run).
type Cue struct {
	Label string    `json:"label,omitempty"`
	At    time.Time `json:"at"`
}

// Progress is one update on the run progress stream. Trial is 1-based and 0
// outside the trial loop; Completed counts emitted records and is monotonic.
type Progress struct {
	Phase     Phase  `json:"phase"`
	Trial     int    `json:"trial"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Status    string `json:"status"`
}

// Summary is the terminal description of a run.
type Summary struct {
	RunID    uuid.UUID `json:"run_id"`
	Paradigm string    `json:"paradigm"`
	Slug     string    `json:"slug"`
	Outcome  Outcome   `json:"outcome"`

	Planned int `json:"planned"`
	Emitted int `json:"emitted"`

	// Feedback tallies. Matched+Mismatched correlations received a decode;
	// Missed counts feedback windows that timed out.
	FeedbackMatched    int     `json:"feedback_matched"`
	FeedbackMismatched int     `json:"feedback_mismatched"`
	FeedbackMissed     int     `json:"feedback_missed"`
	FeedbackAccuracy   float64 `json:"feedback_accuracy,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Error     string    `json:"error,omitempty"`
}
