package paradigm

import (
	"fmt"
	"log/slog"

	"github.com/evokelab/entrain/internal/model"
	"github.com/evokelab/entrain/internal/sequencer"
)

// SSAEPOptions parameterizes the two amplitude-modulated tones. Zero fields
// take the defaults from DefaultSSAEP.
type SSAEPOptions struct {
	SampleRate float64

	LeftCarrier    float64
	LeftModulation float64

	RightCarrier    float64
	RightModulation float64
}

// DefaultSSAEP returns the standard two-tone parameterization.
func DefaultSSAEP() SSAEPOptions {
	return SSAEPOptions{
		SampleRate:      41000,
		LeftCarrier:     450,
		LeftModulation:  9,
		RightCarrier:    650,
		RightModulation: 13,
	}
}

func (o SSAEPOptions) withDefaults() SSAEPOptions {
	def := DefaultSSAEP()
	if o.SampleRate == 0 {
		o.SampleRate = def.SampleRate
	}
	if o.LeftCarrier == 0 {
		o.LeftCarrier = def.LeftCarrier
	}
	if o.LeftModulation == 0 {
		o.LeftModulation = def.LeftModulation
	}
	if o.RightCarrier == 0 {
		o.RightCarrier = def.RightCarrier
	}
	if o.RightModulation == 0 {
		o.RightModulation = def.RightModulation
	}
	return o
}

func (o SSAEPOptions) validate() error {
	if o.SampleRate <= 0 {
		return fmt.Errorf("%w: ssaep sample rate must be positive, got %v", model.ErrInvalidConfiguration, o.SampleRate)
	}
	for side, c := range map[string]struct{ carrier, mod float64 }{
		"left":  {o.LeftCarrier, o.LeftModulation},
		"right": {o.RightCarrier, o.RightModulation},
	} {
		if c.mod <= 0 || c.carrier <= 0 {
			return fmt.Errorf("%w: ssaep %s tone frequencies must be positive", model.ErrInvalidConfiguration, side)
		}
		if c.mod >= c.carrier {
			return fmt.Errorf("%w: ssaep %s modulation %vHz must be below its carrier %vHz", model.ErrInvalidConfiguration, side, c.mod, c.carrier)
		}
		if 2*c.carrier > o.SampleRate {
			return fmt.Errorf("%w: ssaep %s carrier %vHz exceeds the Nyquist limit for %vHz sampling", model.ErrInvalidConfiguration, side, c.carrier, o.SampleRate)
		}
	}
	if o.LeftModulation == o.RightModulation {
		return fmt.Errorf("%w: ssaep modulation frequencies must differ", model.ErrInvalidConfiguration)
	}
	return nil
}

func buildSSAEP(run model.RunConfig, opts SSAEPOptions, logger *slog.Logger) (*Bundle, model.RunConfig, error) {
	if run.TrialDuration <= 0 {
		return nil, run, fmt.Errorf("%w: ssaep requires a positive trial duration, got %v", model.ErrInvalidConfiguration, run.TrialDuration)
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, run, err
	}

	// The class set is fixed by the stimulus: one ear per class, keyed by its
	// modulation frequency.
	_, leftPeriod := Snap(opts.LeftModulation)
	_, rightPeriod := Snap(opts.RightModulation)
	run.Classes = []model.ClassSpec{
		{Label: ClassLeft, PeriodMS: leftPeriod},
		{Label: ClassRight, PeriodMS: rightPeriod},
	}
	run.FeedbackEnabled = false

	mods := []float64{opts.LeftModulation, opts.RightModulation}
	b := &Bundle{
		Name:     SSAEP,
		Slug:     "SSAEP",
		Title:    "Steady State Auditory Evoked Potentials",
		Strategy: sequencer.FixedPresentation{Window: run.TrialDuration},
		Window:   run.TrialDuration,
		Payload: func(classIndex int) ([]float64, int) {
			return mods, classIndex
		},
	}
	return b, run, nil
}
