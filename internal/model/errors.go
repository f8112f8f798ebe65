package model

import "errors"

// Sentinel errors for the public API surface. Checked with errors.Is; wrapping
// adds the parameter or component detail.
var (
	// ErrInvalidConfiguration marks malformed run parameters. Detected before
	// a run starts; the run never begins.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrSessionActive is returned by Start when the session has already been
	// started. Sessions are single-use.
	ErrSessionActive = errors.New("session already started")

	// ErrSinkClosed is returned when a record is emitted after the outbound
	// sink has been closed.
	ErrSinkClosed = errors.New("record sink closed")

	// ErrMailboxFull is producer-visible backpressure from a bounded inbound
	// mailbox.
	ErrMailboxFull = errors.New("mailbox at capacity")
)
