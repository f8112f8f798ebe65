package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/evokelab/entrain/internal/model"
	"github.com/evokelab/entrain/internal/paradigm"
)

// Task is the experiment definition as authored in a YAML task file.
// Durations are seconds so operators can write fractional values directly.
type Task struct {
	Paradigm string `yaml:"paradigm"`

	TrialsPerClass   int     `yaml:"trials_per_class"`
	TrialDurationSec float64 `yaml:"trial_duration_sec"`
	TimeoutSec       float64 `yaml:"timeout_sec"`
	ITIMinSec        float64 `yaml:"iti_min_sec"`
	ITIMaxSec        float64 `yaml:"iti_max_sec"`
	PreRunSec        float64 `yaml:"pre_run_sec"`
	PostRunSec       float64 `yaml:"post_run_sec"`
	FocusCueSec      float64 `yaml:"focus_cue_sec"`

	Multiclass bool `yaml:"multiclass"`

	Feedback FeedbackTask `yaml:"feedback"`
	Classes  []ClassTask  `yaml:"classes"`

	Reaction ReactionTask `yaml:"reaction"`
	SSVEP    SSVEPTask    `yaml:"ssvep"`
	SSAEP    SSAEPTask    `yaml:"ssaep"`
}

// FeedbackTask configures the optional post-trial feedback step.
type FeedbackTask struct {
	Enabled   bool    `yaml:"enabled"`
	DelaySec  float64 `yaml:"delay_sec"`
	WindowSec float64 `yaml:"window_sec"`
	HoldSec   float64 `yaml:"hold_sec"`
}

// ClassTask is one authored trial class.
type ClassTask struct {
	Label         string  `yaml:"label"`
	Frequency     float64 `yaml:"frequency,omitempty"`
	BaseFrequency float64 `yaml:"base_frequency,omitempty"`
}

// ReactionTask holds the reaction paradigm section.
type ReactionTask struct {
	Mode        string `yaml:"mode,omitempty"`
	DecodeClass string `yaml:"decode_class,omitempty"`
}

// SSVEPTask holds the ssvep paradigm section.
type SSVEPTask struct {
	Stimulus            string  `yaml:"stimulus,omitempty"`
	CommonBaseFrequency float64 `yaml:"common_base_frequency,omitempty"`
}

// SSAEPTask holds the ssaep paradigm section. Zero fields take the standard
// two-tone parameterization.
type SSAEPTask struct {
	SampleRate      float64 `yaml:"sample_rate,omitempty"`
	LeftCarrier     float64 `yaml:"left_carrier,omitempty"`
	LeftModulation  float64 `yaml:"left_modulation,omitempty"`
	RightCarrier    float64 `yaml:"right_carrier,omitempty"`
	RightModulation float64 `yaml:"right_modulation,omitempty"`
}

// DefaultTask returns the standard task parameters for a paradigm. A task
// file overrides field by field.
func DefaultTask(par string) Task {
	t := Task{
		Paradigm:         par,
		TrialsPerClass:   10,
		TrialDurationSec: 4.0,
		TimeoutSec:       4.0,
		ITIMinSec:        1.0,
		ITIMaxSec:        2.0,
		PreRunSec:        3.0,
		PostRunSec:       3.0,
		Feedback: FeedbackTask{
			DelaySec:  0.5,
			WindowSec: 2.0,
			HoldSec:   0.5,
		},
	}
	switch par {
	case paradigm.Reaction:
		t.TrialsPerClass = 5
	case paradigm.SSVEP:
		t.FocusCueSec = 1.0
	}
	return t
}

// LoadTask reads a task file. Unset fields fall back to the paradigm's
// defaults, so the file is read twice: once for the paradigm name, then over
// the matching default task.
func LoadTask(path string) (Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Task{}, fmt.Errorf("config: read task file: %w", err)
	}

	var probe struct {
		Paradigm string `yaml:"paradigm"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return Task{}, fmt.Errorf("config: parse task file: %w", err)
	}
	if probe.Paradigm == "" {
		return Task{}, fmt.Errorf("%w: task file does not name a paradigm", model.ErrInvalidConfiguration)
	}

	task := DefaultTask(probe.Paradigm)
	if err := yaml.Unmarshal(data, &task); err != nil {
		return Task{}, fmt.Errorf("config: parse task file: %w", err)
	}
	return task, nil
}

// ExampleTask is the commented starter file written by `entrain init`.
const ExampleTask = `# entrain task file
#
# paradigm: reaction | ssvep | ssaep
paradigm: ssvep

trials_per_class: 10
trial_duration_sec: 4.0   # fixed presentation window (ssvep, ssaep)
timeout_sec: 4.0          # action window (reaction)
iti_min_sec: 1.0
iti_max_sec: 2.0
pre_run_sec: 3.0
post_run_sec: 3.0
focus_cue_sec: 1.0        # pause after the cue before the window starts

# Present all stimuli simultaneously instead of only the cued one.
multiclass: false

# Post-trial decode feedback (ssvep only).
feedback:
  enabled: false
  delay_sec: 0.5
  window_sec: 2.0
  hold_sec: 0.5

# Trial classes (ssvep). Frequencies snap to the nearest integral-millisecond
# reversal period. Reaction and ssaep derive their own class sets.
classes:
  - label: A
    frequency: 15.0
  - label: B
    frequency: 20.0

# Reaction settings.
# reaction:
#   mode: center            # center | 2-direction | 4-direction
#   decode_class: GO        # classifier class completing CENTER trials

# SSVEP settings.
# ssvep:
#   stimulus: checkerboard  # checkerboard | motion | intermodulation
#   common_base_frequency: 40.0

# SSAEP settings (defaults shown).
# ssaep:
#   sample_rate: 41000
#   left_carrier: 450
#   left_modulation: 9
#   right_carrier: 650
#   right_modulation: 13
`
