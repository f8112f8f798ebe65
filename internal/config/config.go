// Package config loads the two configuration layers: operational settings
// from environment variables and the experiment definition from a YAML task
// file. Both are validated before a run starts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Record log sync modes.
const (
	SyncFull  = "full"  // fsync after every record
	SyncBatch = "batch" // fsync on an interval ticker
	SyncNone  = "none"  // rely on OS writeback
)

// Config holds the operational settings read from the environment. The
// experiment itself lives in a Task file; nothing here changes what a run
// presents or records.
type Config struct {
	// Logging.
	LogLevel  string // debug, info, warn, error
	LogFormat string // json or text

	// OTEL settings. Telemetry is disabled when the endpoint is empty.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Session record log settings.
	RecordDir          string
	RecordSyncMode     string
	RecordSyncInterval time.Duration

	// DecodeInboxSize bounds the per-run decode mailbox.
	DecodeInboxSize int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		LogLevel:           envStr("ENTRAIN_LOG_LEVEL", "info"),
		LogFormat:          envStr("ENTRAIN_LOG_FORMAT", "text"),
		OTELEndpoint:       envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:       envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:        envStr("OTEL_SERVICE_NAME", "entrain"),
		RecordDir:          envStr("ENTRAIN_RECORD_DIR", "."),
		RecordSyncMode:     envStr("ENTRAIN_RECORD_SYNC_MODE", SyncFull),
		RecordSyncInterval: envDuration("ENTRAIN_RECORD_SYNC_INTERVAL", time.Second),
		DecodeInboxSize:    envInt("ENTRAIN_DECODE_INBOX_SIZE", 256),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the operational settings are usable.
func (c Config) Validate() error {
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("config: ENTRAIN_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	switch c.RecordSyncMode {
	case SyncFull, SyncBatch, SyncNone:
	default:
		return fmt.Errorf("config: ENTRAIN_RECORD_SYNC_MODE must be full, batch, or none, got %q", c.RecordSyncMode)
	}
	if c.RecordSyncInterval <= 0 {
		return fmt.Errorf("config: ENTRAIN_RECORD_SYNC_INTERVAL must be positive")
	}
	if c.DecodeInboxSize <= 0 {
		return fmt.Errorf("config: ENTRAIN_DECODE_INBOX_SIZE must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
