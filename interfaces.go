package entrain

import "context"

// ControlSurface is the operator-facing parameter surface. The session
// disables it for the duration of a run so parameters cannot change mid-run,
// and re-enables it on every exit path.
type ControlSurface interface {
	Disable()
	Enable()
}

// Renderer receives presentation-state changes. Actual stimulus rendering
// (visuals, audio synthesis) lives behind this interface and outside the
// engine.
type Renderer interface {
	// Present cues a class; Clear means no class is currently cued.
	Present(label string)
	Clear()

	// Highlight flags the stimulus whose reversal period matched a decode
	// during feedback.
	Highlight(periodMS int)
}

// RecordSink receives TrialRecords as they are emitted, replacing the
// session's Records channel. Write blocks on backpressure — the engine never
// drops a record. A failed Write fails the run.
type RecordSink interface {
	Write(ctx context.Context, rec TrialRecord) error
}
