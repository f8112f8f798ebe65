// Package recordlog is the CLI-side session recorder: an append-only JSONL
// file per run. The engine core never persists anything itself; this sits
// behind the session's record sink, so filesystem backpressure propagates to
// the run through the blocking sink contract.
package recordlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evokelab/entrain/internal/config"
	"github.com/evokelab/entrain/internal/model"
)

// Config controls where the log lives and how eagerly it reaches the disk.
type Config struct {
	Dir          string
	SyncMode     string // config.SyncFull, SyncBatch, or SyncNone
	SyncInterval time.Duration
}

// Log is one run's record file. Append and Close are safe for concurrent use.
type Log struct {
	logger *slog.Logger
	mode   string
	path   string

	mu     sync.Mutex
	f      *os.File
	enc    *json.Encoder
	closed bool

	done chan struct{} // stops the batch sync loop
	wg   sync.WaitGroup
}

// Open creates the run's log file, named `<SLUG>_<UTC timestamp>_<run id>.jsonl`.
// The file must not already exist.
func Open(logger *slog.Logger, cfg Config, slug string, runID uuid.UUID) (*Log, error) {
	switch cfg.SyncMode {
	case config.SyncFull, config.SyncBatch, config.SyncNone:
	default:
		return nil, fmt.Errorf("%w: unknown record sync mode %q", model.ErrInvalidConfiguration, cfg.SyncMode)
	}
	if cfg.SyncMode == config.SyncBatch && cfg.SyncInterval <= 0 {
		return nil, fmt.Errorf("%w: batch sync requires a positive interval", model.ErrInvalidConfiguration)
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("recordlog: create record directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s.jsonl", slug, time.Now().UTC().Format("20060102T150405Z"), runID)
	path := filepath.Join(cfg.Dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recordlog: create record file: %w", err)
	}

	l := &Log{
		logger: logger,
		mode:   cfg.SyncMode,
		path:   path,
		f:      f,
		enc:    json.NewEncoder(f),
		done:   make(chan struct{}),
	}

	switch cfg.SyncMode {
	case config.SyncNone:
		logger.Warn("recordlog: sync disabled, records may be lost on power failure", "path", path)
	case config.SyncBatch:
		l.wg.Add(1)
		go l.syncLoop(cfg.SyncInterval)
	}

	logger.Info("recordlog: opened", "path", path, "sync_mode", cfg.SyncMode)
	return l, nil
}

// Path returns the log file's location.
func (l *Log) Path() string {
	return l.path
}

// Append writes one value as a JSON line. In full sync mode the line is
// fsynced before Append returns.
func (l *Log) Append(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("recordlog: %w", model.ErrSinkClosed)
	}
	if err := l.enc.Encode(v); err != nil {
		return fmt.Errorf("recordlog: append: %w", err)
	}
	if l.mode == config.SyncFull {
		if err := l.f.Sync(); err != nil {
			return fmt.Errorf("recordlog: sync: %w", err)
		}
	}
	return nil
}

func (l *Log) syncLoop(interval time.Duration) {
	defer l.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			if !l.closed {
				if err := l.f.Sync(); err != nil {
					l.logger.Warn("recordlog: interval sync failed", "error", err)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Close fsyncs and closes the file. Idempotent.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()

	l.wg.Wait()

	var errs []error
	if err := l.f.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("recordlog: final sync: %w", err))
	}
	if err := l.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("recordlog: close: %w", err))
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
