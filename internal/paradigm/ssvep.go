package paradigm

import (
	"fmt"
	"log/slog"

	"github.com/evokelab/entrain/internal/model"
	"github.com/evokelab/entrain/internal/sequencer"
)

// SSVEP stimulus variants.
const (
	StimulusCheckerboard    = "checkerboard"
	StimulusMotion          = "motion"
	StimulusIntermodulation = "intermodulation"
)

// SSVEPOptions selects the stimulus variant. Class frequencies themselves
// arrive already snapped on the run config; see Snap.
type SSVEPOptions struct {
	// Stimulus is one of the stimulus variant constants. Empty means
	// checkerboard.
	Stimulus string

	// CommonBasePeriodMS, for the intermodulation variant, is a shared second
	// stimulation period applied to every class that does not carry its own.
	CommonBasePeriodMS int
}

func buildSSVEP(run model.RunConfig, opts SSVEPOptions, logger *slog.Logger) (*Bundle, model.RunConfig, error) {
	if run.TrialDuration <= 0 {
		return nil, run, fmt.Errorf("%w: ssvep requires a positive trial duration, got %v", model.ErrInvalidConfiguration, run.TrialDuration)
	}

	stimulus := opts.Stimulus
	if stimulus == "" {
		stimulus = StimulusCheckerboard
	}
	switch stimulus {
	case StimulusCheckerboard, StimulusMotion, StimulusIntermodulation:
	default:
		return nil, run, fmt.Errorf("%w: unknown ssvep stimulus %q", model.ErrInvalidConfiguration, opts.Stimulus)
	}

	// Every class needs a distinct reversal period. Two frequencies snapping
	// to the same period would present identical stimuli, so the decode could
	// never separate them.
	seen := make(map[int]string, len(run.Classes))
	for i := range run.Classes {
		c := &run.Classes[i]
		if c.PeriodMS <= 0 {
			return nil, run, fmt.Errorf("%w: class %q has no stimulation frequency", model.ErrInvalidConfiguration, c.Label)
		}
		if prev, dup := seen[c.PeriodMS]; dup {
			return nil, run, fmt.Errorf("%w: classes %q and %q share reversal period %dms", model.ErrInvalidConfiguration, prev, c.Label, c.PeriodMS)
		}
		seen[c.PeriodMS] = c.Label

		if stimulus == StimulusIntermodulation {
			if c.BasePeriodMS == 0 {
				c.BasePeriodMS = opts.CommonBasePeriodMS
			}
			if c.BasePeriodMS <= 0 {
				return nil, run, fmt.Errorf("%w: intermodulation class %q has no base frequency", model.ErrInvalidConfiguration, c.Label)
			}
		} else if c.BasePeriodMS != 0 {
			logger.Warn("paradigm: base frequency is ignored outside intermodulation", "class", c.Label)
			c.BasePeriodMS = 0
		}
	}

	freqs := make([]float64, len(run.Classes))
	for i, c := range run.Classes {
		freqs[i] = c.Frequency()
	}

	b := &Bundle{
		Name:             SSVEP,
		Slug:             "SSVEP",
		Title:            "Steady State Visually Evoked Potentials",
		Strategy:         sequencer.FixedPresentation{Window: run.TrialDuration},
		SupportsFeedback: true,
		Window:           run.TrialDuration,
		Payload: func(classIndex int) ([]float64, int) {
			return freqs, classIndex
		},
	}
	return b, run, nil
}
