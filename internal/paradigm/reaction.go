package paradigm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/evokelab/entrain/internal/model"
	"github.com/evokelab/entrain/internal/race"
	"github.com/evokelab/entrain/internal/sequencer"
)

// Reaction layout modes.
const (
	ModeCenter     = "center"      // single CENTER class, default
	ModeCenterOut2 = "2-direction" // LEFT / RIGHT reaches from center
	ModeCenterOut4 = "4-direction" // UP / DOWN / LEFT / RIGHT reaches
)

// Class labels used by the reaction layouts.
const (
	ClassCenter = "CENTER"
	ClassUp     = "UP"
	ClassDown   = "DOWN"
	ClassLeft   = "LEFT"
	ClassRight  = "RIGHT"
)

// ReactionOptions selects the reaction layout and the optional decode class.
type ReactionOptions struct {
	// Mode is one of ModeCenter, ModeCenterOut2, ModeCenterOut4. Empty means
	// ModeCenter.
	Mode string

	// DecodeClass, when set, lets a classifier complete CENTER trials: the
	// trial's race includes a signal fired when the decoded class changes to
	// this value.
	DecodeClass string
}

// DecodeWatcher turns a decoded-class stream into a completion signal. It is
// edge-triggered: the signal fires only when the observed class changes to
// the target, so a classifier that was already reporting the target before
// the trial cannot complete it.
type DecodeWatcher struct {
	target string
	signal *race.Signal

	mu   sync.Mutex
	last string
}

// NewDecodeWatcher creates a watcher firing on transitions to target.
func NewDecodeWatcher(target string) *DecodeWatcher {
	return &DecodeWatcher{target: target, signal: race.NewSignal()}
}

// Observe feeds one decoded class label.
func (w *DecodeWatcher) Observe(label string) {
	w.mu.Lock()
	changed := label != w.last
	w.last = label
	w.mu.Unlock()
	if changed && label == w.target {
		w.signal.Set()
	}
}

// Signal returns the watcher's completion signal.
func (w *DecodeWatcher) Signal() *race.Signal {
	return w.signal
}

func classLabels(mode string) ([]string, error) {
	switch mode {
	case "", ModeCenter:
		return []string{ClassCenter}, nil
	case ModeCenterOut2:
		return []string{ClassLeft, ClassRight}, nil
	case ModeCenterOut4:
		return []string{ClassUp, ClassDown, ClassLeft, ClassRight}, nil
	default:
		return nil, fmt.Errorf("%w: unknown reaction mode %q", model.ErrInvalidConfiguration, mode)
	}
}

func buildReaction(run model.RunConfig, opts ReactionOptions, logger *slog.Logger) (*Bundle, model.RunConfig, error) {
	if run.Timeout <= 0 {
		return nil, run, fmt.Errorf("%w: reaction requires a positive timeout, got %v", model.ErrInvalidConfiguration, run.Timeout)
	}

	labels, err := classLabels(opts.Mode)
	if err != nil {
		return nil, run, err
	}
	run.Classes = make([]model.ClassSpec, len(labels))
	for i, label := range labels {
		run.Classes[i] = model.ClassSpec{Label: label}
	}
	centerOut := len(labels) > 1

	primary := race.NewSignal()
	signals := map[string]*race.Signal{}
	for _, label := range labels {
		if label != ClassCenter {
			signals[label] = race.NewSignal()
		}
	}

	var watcher *DecodeWatcher
	if opts.DecodeClass != "" {
		if centerOut {
			logger.Warn("paradigm: decode class is ignored outside center mode", "decode_class", opts.DecodeClass)
		} else {
			watcher = NewDecodeWatcher(opts.DecodeClass)
		}
	}

	rearm := func() {
		primary.Arm()
		for _, s := range signals {
			s.Arm()
		}
		if watcher != nil {
			watcher.signal.Arm()
		}
	}

	strat := sequencer.RacingPresentation{
		Timeout: run.Timeout,
		Signals: func(t sequencer.Trial) []*race.Signal {
			if t.Class.Label == ClassCenter {
				if watcher != nil {
					return []*race.Signal{primary, watcher.signal}
				}
				return []*race.Signal{primary}
			}
			return []*race.Signal{signals[t.Class.Label]}
		},
	}
	if centerOut {
		// Direction trials begin only once the subject has returned to
		// center; the centering action is unbounded but cancellable.
		strat.Await = func(ctx context.Context, t sequencer.Trial) error {
			_, err := race.First(ctx, 0, primary)
			return err
		}
	}

	b := &Bundle{
		Name:         Reaction,
		Slug:         "RXN",
		Title:        "Reaction Time Task",
		Strategy:     strat,
		Window:       run.Timeout,
		Signals:      signals,
		Primary:      primary,
		Watcher:      watcher,
		ClearSignals: rearm,
	}
	run.FeedbackEnabled = false
	return b, run, nil
}
