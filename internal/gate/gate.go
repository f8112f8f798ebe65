// Package gate scopes control-surface acquisition around a run.
package gate

import (
	"context"
	"log/slog"
	"sync"
)

// ControlSurface is the external capability that lets an operator change run
// parameters. It is disabled while a run is active.
type ControlSurface interface {
	Disable()
	Enable()
}

// Gate disables the control surface for the duration of a run body and
// guarantees teardown on every exit path (normal return, cancellation,
// error). This is the sole place guaranteeing controls never get stuck
// disabled after a failed or cancelled run.
type Gate struct {
	controls ControlSurface
	reset    func()
	logger   *slog.Logger

	once sync.Once
}

// New creates a gate for one run. reset restores the idle presentation state
// during teardown; nil skips that step.
func New(controls ControlSurface, reset func(), logger *slog.Logger) *Gate {
	return &Gate{controls: controls, reset: reset, logger: logger}
}

// Run executes body with the control surface disabled. Teardown runs before
// Run returns regardless of how body exits.
func (g *Gate) Run(ctx context.Context, body func(context.Context) error) error {
	g.controls.Disable()
	g.logger.Debug("gate: control surface disabled")
	defer g.Teardown()
	return body(ctx)
}

// Teardown resets the idle presentation and re-enables the control surface.
// Idempotent: a late cancellation after normal completion observes no second
// toggle.
func (g *Gate) Teardown() {
	g.once.Do(func() {
		if g.reset != nil {
			g.reset()
		}
		g.controls.Enable()
		g.logger.Debug("gate: control surface re-enabled")
	})
}
