// Package testutil provides the shared logger and recording fakes used by
// tests across the repo.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/evokelab/entrain/internal/model"
)

// TestLogger returns a text logger at warn level so failing tests still show
// warnings without drowning output in per-trial debug lines.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// CountingSurface is a ControlSurface fake tracking disable/enable calls.
type CountingSurface struct {
	mu       sync.Mutex
	Disables int
	Enables  int
}

func (s *CountingSurface) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Disables++
}

func (s *CountingSurface) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Enables++
}

// Enabled reports whether enables have caught up with disables.
func (s *CountingSurface) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Enables >= s.Disables
}

// RecordingRenderer is a Renderer fake capturing presentation state changes.
type RecordingRenderer struct {
	mu         sync.Mutex
	presented  []string
	clears     int
	highlights []int
}

func (r *RecordingRenderer) Present(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presented = append(r.presented, label)
}

func (r *RecordingRenderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
}

func (r *RecordingRenderer) Highlight(periodMS int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.highlights = append(r.highlights, periodMS)
}

// Presented returns the cued labels in order.
func (r *RecordingRenderer) Presented() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.presented...)
}

// Clears returns how many times the presentation was cleared.
func (r *RecordingRenderer) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears
}

// Highlights returns the highlighted periods in order.
func (r *RecordingRenderer) Highlights() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.highlights...)
}

// CollectSink is a record sink fake collecting everything written to it.
type CollectSink struct {
	mu      sync.Mutex
	records []model.TrialRecord
}

func (s *CollectSink) Write(_ context.Context, rec model.TrialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns the collected records in emission order.
func (s *CollectSink) Records() []model.TrialRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TrialRecord(nil), s.records...)
}

// FailingSink is a record sink fake that always fails with Err.
type FailingSink struct {
	Err error
}

func (s *FailingSink) Write(context.Context, model.TrialRecord) error {
	return s.Err
}
