package entrain

import "log/slog"

// Option configures a Session.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger       *slog.Logger
	surface      ControlSurface
	renderer     Renderer
	sink         RecordSink
	seed         int64
	seeded       bool
	recordBuffer int
	inboxSize    int
}

// WithLogger sets the structured logger for the session.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithControlSurface attaches the operator parameter surface the session
// disables while a run is active.
func WithControlSurface(s ControlSurface) Option {
	return func(o *resolvedOptions) { o.surface = s }
}

// WithRenderer attaches the stimulus renderer. Without one, presentation
// state changes are only observable on the Cues stream.
func WithRenderer(r Renderer) Option {
	return func(o *resolvedOptions) { o.renderer = r }
}

// WithRecordSink replaces the Records channel with a blocking sink. The
// Records stream is closed immediately when a sink is set.
func WithRecordSink(s RecordSink) Option {
	return func(o *resolvedOptions) { o.sink = s }
}

// WithRandSeed fixes the random source used for trial ordering and ITI
// draws, making the run deterministic. Without it the session seeds from the
// clock.
func WithRandSeed(seed int64) Option {
	return func(o *resolvedOptions) {
		o.seed = seed
		o.seeded = true
	}
}

// WithRecordBuffer sets the Records channel buffer. The channel still blocks
// emission once full; the buffer only decouples short consumer stalls.
func WithRecordBuffer(n int) Option {
	return func(o *resolvedOptions) { o.recordBuffer = n }
}

// WithDecodeInboxSize bounds the per-run decode mailbox, overriding
// ENTRAIN_DECODE_INBOX_SIZE.
func WithDecodeInboxSize(n int) Option {
	return func(o *resolvedOptions) { o.inboxSize = n }
}
