package model

import (
	"fmt"
	"time"
)

// RunConfig is the immutable snapshot of all operator-tunable parameters taken
// at run start. Values are frozen for the duration of one run; the control
// surface is disabled so they cannot change mid-run.
type RunConfig struct {
	TrialsPerClass int           `json:"trials_per_class"`
	TrialDuration  time.Duration `json:"trial_duration"`
	Timeout        time.Duration `json:"timeout"`

	ITIMin time.Duration `json:"iti_min"`
	ITIMax time.Duration `json:"iti_max"`

	PreRunDuration  time.Duration `json:"pre_run_duration"`
	PostRunDuration time.Duration `json:"post_run_duration"`

	// FocusCueDuration is the pause between presenting the stimulus layout and
	// starting the action window. Zero skips the focus cue.
	FocusCueDuration time.Duration `json:"focus_cue_duration,omitempty"`

	FeedbackEnabled bool          `json:"feedback_enabled"`
	FeedbackDelay   time.Duration `json:"feedback_delay,omitempty"`
	FeedbackWindow  time.Duration `json:"feedback_window,omitempty"`
	FeedbackHold    time.Duration `json:"feedback_hold,omitempty"`

	Multiclass bool `json:"multiclass"`

	Classes []ClassSpec `json:"classes"`
}

// Validate checks the parameter combinations that are invalid for every
// paradigm. Paradigm-specific constraints (which of TrialDuration/Timeout is
// the action window, class frequency rules) are checked by the paradigm.
func (c RunConfig) Validate() error {
	if c.TrialsPerClass < 1 {
		return fmt.Errorf("%w: trials per class must be at least 1, got %d", ErrInvalidConfiguration, c.TrialsPerClass)
	}
	if len(c.Classes) == 0 {
		return fmt.Errorf("%w: at least one class is required", ErrInvalidConfiguration)
	}
	if c.TrialDuration < 0 {
		return fmt.Errorf("%w: trial duration must be non-negative, got %v", ErrInvalidConfiguration, c.TrialDuration)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be non-negative, got %v", ErrInvalidConfiguration, c.Timeout)
	}
	if c.ITIMin < 0 {
		return fmt.Errorf("%w: ITI min must be non-negative, got %v", ErrInvalidConfiguration, c.ITIMin)
	}
	if c.ITIMax < c.ITIMin {
		return fmt.Errorf("%w: ITI max %v is below ITI min %v", ErrInvalidConfiguration, c.ITIMax, c.ITIMin)
	}
	if c.PreRunDuration < 0 {
		return fmt.Errorf("%w: pre-run duration must be non-negative, got %v", ErrInvalidConfiguration, c.PreRunDuration)
	}
	if c.PostRunDuration < 0 {
		return fmt.Errorf("%w: post-run duration must be non-negative, got %v", ErrInvalidConfiguration, c.PostRunDuration)
	}
	if c.FocusCueDuration < 0 {
		return fmt.Errorf("%w: focus cue duration must be non-negative, got %v", ErrInvalidConfiguration, c.FocusCueDuration)
	}
	if c.FeedbackEnabled {
		if c.FeedbackWindow <= 0 {
			return fmt.Errorf("%w: feedback window must be positive when feedback is enabled, got %v", ErrInvalidConfiguration, c.FeedbackWindow)
		}
		if c.FeedbackDelay < 0 || c.FeedbackHold < 0 {
			return fmt.Errorf("%w: feedback delay and hold must be non-negative", ErrInvalidConfiguration)
		}
	}
	seen := make(map[string]struct{}, len(c.Classes))
	for _, cl := range c.Classes {
		if cl.Label == "" {
			return fmt.Errorf("%w: class labels must not be empty", ErrInvalidConfiguration)
		}
		if _, dup := seen[cl.Label]; dup {
			return fmt.Errorf("%w: duplicate class label %q", ErrInvalidConfiguration, cl.Label)
		}
		seen[cl.Label] = struct{}{}
	}
	return nil
}

// MeanITI returns the expected intertrial interval for a uniform draw from
// [ITIMin, ITIMax].
func (c RunConfig) MeanITI() time.Duration {
	return c.ITIMin + (c.ITIMax-c.ITIMin)/2
}

// PlannedTrials returns the total trial count for this configuration.
func (c RunConfig) PlannedTrials() int {
	return c.TrialsPerClass * len(c.Classes)
}

// Estimate returns the expected wall-clock length of a run whose per-trial
// action window is window (the timeout for racing paradigms, the trial
// duration for fixed presentations). Feedback and focus-cue time is included
// when configured.
func (c RunConfig) Estimate(window time.Duration) time.Duration {
	perTrial := c.MeanITI() + c.FocusCueDuration + window
	if c.FeedbackEnabled {
		perTrial += c.FeedbackDelay + c.FeedbackWindow + c.FeedbackHold
	}
	return c.PreRunDuration + time.Duration(c.PlannedTrials())*perTrial + c.PostRunDuration
}
