package model

// Phase is the macro state of a run. Transitions follow
// IDLE → PRE_RUN → (ITI → ACTION → [FEEDBACK])* → POST_RUN → COMPLETE,
// with ABORTED reachable from any non-idle phase via cancellation.
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

// Terminal reports whether no further phase transitions can occur.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseAborted
}

// Outcome is the terminal result of a run as seen by the caller.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeFailed    Outcome = "failed"
)

// CompletionKind marks how a trial's action window ended. Timeout is a
// first-class outcome, not an error: the run continues.
type CompletionKind string

const (
	CompletionNormal  CompletionKind = "normal"
	CompletionTimeout CompletionKind = "timeout"
)
