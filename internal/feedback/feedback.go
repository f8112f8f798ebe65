// Package feedback correlates asynchronous classifier output with the trial
// currently awaiting feedback.
package feedback

import (
	"context"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/evokelab/entrain/internal/mailbox"
	"github.com/evokelab/entrain/internal/model"
)

// NoObservation marks a Result with no usable decode (window timed out or the
// message was malformed).
const NoObservation = -1

// Result is the outcome of one correlation window.
type Result struct {
	// TimedOut is set when no decode arrived within the window. No
	// correctness judgment is made in that case.
	TimedOut bool

	// Matched reports whether the observed period equals the trial's target
	// period.
	Matched bool

	// ObservedIndex indexes the decode's frequency list at the maximum score,
	// or NoObservation.
	ObservedIndex int

	// ObservedPeriodMS is the reversal period of the decoded frequency,
	// rounded to whole milliseconds.
	ObservedPeriodMS int
}

// Correlator consumes at most one DecodeMessage per trial from the per-run
// inbox and judges it against the trial's target period. Backlog beyond the
// consumed message stays queued for the next call.
type Correlator struct {
	inbox  *mailbox.Mailbox[model.DecodeMessage]
	window time.Duration
	logger *slog.Logger
}

// New creates a correlator draining inbox with the given per-trial window.
func New(inbox *mailbox.Mailbox[model.DecodeMessage], window time.Duration, logger *slog.Logger) *Correlator {
	return &Correlator{inbox: inbox, window: window, logger: logger}
}

// Correlate waits up to the feedback window for the next decode. An empty
// window is a timeout Result, not an error; cancellation of ctx is the only
// error path.
func (c *Correlator) Correlate(ctx context.Context, targetPeriodMS int) (Result, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.window)
	defer cancel()

	msg, err := c.inbox.Get(waitCtx)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		c.logger.Info("feedback: no decode received within window", "window", c.window)
		return Result{TimedOut: true, ObservedIndex: NoObservation}, nil
	}

	if len(msg.Scores) == 0 || len(msg.Scores) != len(msg.Freqs) {
		c.logger.Warn("feedback: malformed decode message",
			"scores", len(msg.Scores), "freqs", len(msg.Freqs))
		return Result{ObservedIndex: NoObservation}, nil
	}

	idx := floats.MaxIdx(msg.Scores)
	if msg.Freqs[idx] <= 0 {
		c.logger.Warn("feedback: decode frequency not positive", "frequency", msg.Freqs[idx])
		return Result{ObservedIndex: NoObservation}, nil
	}

	per := int(math.Round(1000.0 / msg.Freqs[idx]))
	res := Result{
		Matched:          per == targetPeriodMS,
		ObservedIndex:    idx,
		ObservedPeriodMS: per,
	}
	c.logger.Info("feedback: decode correlated",
		"observed_period_ms", per,
		"target_period_ms", targetPeriodMS,
		"matched", res.Matched,
	)
	return res, nil
}
