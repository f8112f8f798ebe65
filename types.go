package entrain

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal result of a run.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeFailed    Outcome = "failed"
)

// Phase is the macro state of a run as reported on the progress stream.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhasePreRun   Phase = "pre_run"
	PhaseITI      Phase = "intertrial"
	PhaseAction   Phase = "action"
	PhaseFeedback Phase = "feedback"
	PhasePostRun  Phase = "post_run"
	PhaseComplete Phase = "complete"
	PhaseAborted  Phase = "aborted"
)

// CompletionKind marks how a trial's action window ended. Timeout is a
// first-class outcome, not an error: the run continues.
type CompletionKind string

const (
	CompletionNormal  CompletionKind = "normal"
	CompletionTimeout CompletionKind = "timeout"
)

// Span is a trial's time window relative to the record's emission instant.
// Fixed presentations emit at window start, Span = (0, trialDuration); racing
// presentations emit after the window, Span = (-elapsed, 0).
type Span struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// NoTarget marks a TrialRecord without a target index (reaction trials).
const NoTarget = -1

// ClassSpec is one authored trial class. Frequencies are Hz; SSVEP
// frequencies snap to the nearest integral-millisecond reversal period when
// the session is created.
type ClassSpec struct {
	Label         string  `json:"label"`
	Frequency     float64 `json:"frequency,omitempty"`
	BaseFrequency float64 `json:"base_frequency,omitempty"`
}

// TrialRecord is the immutable artifact emitted once per trial boundary.
type TrialRecord struct {
	RunID      uuid.UUID      `json:"run_id"`
	TrialIndex int            `json:"trial_index"`
	Class      string         `json:"class"`
	Completion CompletionKind `json:"completion"`
	Span       Span           `json:"span"`
	Freqs      []float64      `json:"freqs,omitempty"`
	Target     int            `json:"target"`
	EmittedAt  time.Time      `json:"emitted_at"`
}

// DecodeMessage is an asynchronous classifier output: one score per candidate
// frequency, index-aligned with Freqs.
type DecodeMessage struct {
	Scores []float64 `json:"scores"`
	Freqs  []float64 `json:"freqs"`
}

// Cue is one update on the cued-class stream. An empty Label means no class
// is currently cued.
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

	FeedbackMatched    int     `json:"feedback_matched"`
	FeedbackMismatched int     `json:"feedback_mismatched"`
	FeedbackMissed     int     `json:"feedback_missed"`
	FeedbackAccuracy   float64 `json:"feedback_accuracy,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Error     string    `json:"error,omitempty"`
}

// ReactionConfig selects the reaction layout and optional decode class.
type ReactionConfig struct {
	// Mode is "center" (default), "2-direction", or "4-direction".
	Mode string `json:"mode,omitempty"`

	// DecodeClass lets a classifier complete CENTER trials: the trial's race
	// includes a signal fired when the decoded class changes to this value.
	DecodeClass string `json:"decode_class,omitempty"`
}

// SSVEPConfig selects the ssvep stimulus variant.
type SSVEPConfig struct {
	// Stimulus is "checkerboard" (default), "motion", or "intermodulation".
	Stimulus string `json:"stimulus,omitempty"`

	// CommonBaseFrequency, for intermodulation, is a shared second
	// stimulation frequency applied to every class without its own.
	CommonBaseFrequency float64 `json:"common_base_frequency,omitempty"`
}

// SSAEPConfig parameterizes the two amplitude-modulated tones. Zero fields
// take the standard parameterization (41 kHz; 450/9 Hz left, 650/13 Hz right).
type SSAEPConfig struct {
	SampleRate      float64 `json:"sample_rate,omitempty"`
	LeftCarrier     float64 `json:"left_carrier,omitempty"`
	LeftModulation  float64 `json:"left_modulation,omitempty"`
	RightCarrier    float64 `json:"right_carrier,omitempty"`
	RightModulation float64 `json:"right_modulation,omitempty"`
}

// Config is the experiment definition for one session. It is frozen when the
// session is created; nothing here can change mid-run.
type Config struct {
	// Paradigm is "reaction", "ssvep", or "ssaep".
	Paradigm string `json:"paradigm"`

	TrialsPerClass int           `json:"trials_per_class"`
	TrialDuration  time.Duration `json:"trial_duration"`
	Timeout        time.Duration `json:"timeout"`

	ITIMin time.Duration `json:"iti_min"`
	ITIMax time.Duration `json:"iti_max"`

	PreRunDuration  time.Duration `json:"pre_run_duration"`
	PostRunDuration time.Duration `json:"post_run_duration"`

	// FocusCueDuration is the pause between cueing a class and starting the
	// action window.
	FocusCueDuration time.Duration `json:"focus_cue_duration,omitempty"`

	// Multiclass presents all stimuli simultaneously instead of only the
	// cued one.
	Multiclass bool `json:"multiclass,omitempty"`

	FeedbackEnabled bool          `json:"feedback_enabled,omitempty"`
	FeedbackDelay   time.Duration `json:"feedback_delay,omitempty"`
	FeedbackWindow  time.Duration `json:"feedback_window,omitempty"`
	FeedbackHold    time.Duration `json:"feedback_hold,omitempty"`

	// Classes is the authored class set. Reaction and ssaep derive their own
	// class sets and ignore this.
	Classes []ClassSpec `json:"classes,omitempty"`

	Reaction ReactionConfig `json:"reaction,omitempty"`
	SSVEP    SSVEPConfig    `json:"ssvep,omitempty"`
	SSAEP    SSAEPConfig    `json:"ssaep,omitempty"`
}
