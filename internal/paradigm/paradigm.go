// Package paradigm defines the experiment catalog. Each paradigm is a bundle
// of capabilities the session wires into the sequencer: a class set, a
// presentation strategy, a record payload factory, and the completion signals
// (if any) that user actions and classifier decodes can fire.
package paradigm

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/evokelab/entrain/internal/model"
	"github.com/evokelab/entrain/internal/race"
	"github.com/evokelab/entrain/internal/sequencer"
)

// Canonical paradigm names as accepted in task files.
const (
	Reaction = "reaction"
	SSVEP    = "ssvep"
	SSAEP    = "ssaep"
)

// Info describes one catalog entry for display.
type Info struct {
	Name             string
	Slug             string
	Title            string
	Presentation     string // "racing" or "fixed"
	SupportsFeedback bool
}

// Catalog lists the registered paradigms in display order.
func Catalog() []Info {
	return []Info{
		{Name: Reaction, Slug: "RXN", Title: "Reaction Time Task", Presentation: "racing"},
		{Name: SSVEP, Slug: "SSVEP", Title: "Steady State Visually Evoked Potentials", Presentation: "fixed", SupportsFeedback: true},
		{Name: SSAEP, Slug: "SSAEP", Title: "Steady State Auditory Evoked Potentials", Presentation: "fixed"},
	}
}

// Options carries the paradigm-specific parameters parsed from the task file.
// Only the section matching the selected paradigm is read.
type Options struct {
	Reaction ReactionOptions
	SSVEP    SSVEPOptions
	SSAEP    SSAEPOptions
}

// Bundle is a built paradigm: everything the session needs beyond the run
// parameters themselves. Signals are per-run; a bundle is single-use.
type Bundle struct {
	Name  string
	Slug  string
	Title string

	Strategy sequencer.Strategy

	// Payload produces the record payload for a class index, or nil when the
	// paradigm has no periodic stimulus.
	Payload func(classIndex int) ([]float64, int)

	SupportsFeedback bool

	// Window is the per-trial action window used for run-length estimation:
	// the timeout for racing paradigms, the trial duration for fixed ones.
	Window time.Duration

	// Signals maps action labels to completion signals. Empty for fixed
	// presentations.
	Signals map[string]*race.Signal

	// Primary is the unlabeled action signal, nil when the paradigm takes no
	// user actions.
	Primary *race.Signal

	// Watcher receives the decoded-class stream, nil when unused.
	Watcher *DecodeWatcher

	// ClearSignals re-arms every completion signal. Nil for fixed
	// presentations.
	ClearSignals func()
}

// Build constructs the named paradigm against the frozen run parameters,
// returning the bundle and the run config with the paradigm's class set and
// constraints applied. Unknown names and invalid parameter combinations fail
// with ErrInvalidConfiguration.
func Build(name string, run model.RunConfig, opts Options, logger *slog.Logger) (*Bundle, model.RunConfig, error) {
	switch name {
	case Reaction:
		return buildReaction(run, opts.Reaction, logger)
	case SSVEP:
		return buildSSVEP(run, opts.SSVEP, logger)
	case SSAEP:
		return buildSSAEP(run, opts.SSAEP, logger)
	default:
		return nil, run, fmt.Errorf("%w: unknown paradigm %q", model.ErrInvalidConfiguration, name)
	}
}

// Snap maps a requested stimulation frequency to the nearest frequency whose
// reversal period is a whole number of milliseconds, returning the snapped
// frequency and its period. Presentation clocks tick in milliseconds, so only
// integral periods render faithfully.
func Snap(freq float64) (float64, int) {
	if freq <= 0 {
		return 0, 0
	}
	period := int(1000.0/freq + 0.5)
	if period < 1 {
		period = 1
	}
	return 1000.0 / float64(period), period
}
