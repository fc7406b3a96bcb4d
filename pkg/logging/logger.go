// Package logging configures zerolog for the collector and hands out
// component loggers.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Component names used in the "component" field.
const (
	ComponentClient    = "client"
	ComponentRateLimit = "ratelimit"
	ComponentCollector = "collector"
	ComponentCLI       = "cli"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	// Items go to stdout, so logs must not.
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. Loggers created by NewLogger
// afterwards inherit its output and level.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ValidLevel reports whether s names a supported level.
func ValidLevel(s string) bool {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: page and quota bookkeeping
//   - Outgoing requests (endpoint, params)
//   - Quota headers missing on a page
//   - Quota state updates while quota remains
//
// Info: run lifecycle
//   - Collection started / finished / reached total
//   - Progress every 10000 items
//   - Quota state updates when exhausted
//
// Warn: the run continues but is slowed down
//   - 503 retries
//   - Waits for a quota window reset
//   - Quota headers that cannot be parsed
//   - Quota store write failures
//
// Error: the run ends
//   - Non-503 provider responses
//   - Retries exhausted
//   - Malformed quota status payloads
//
// Context Fields:
//   - variant: search or user
//   - run_id: one collection run
//   - endpoint: provider endpoint path
//   - status: HTTP status code
//   - attempt: 1-based attempt number
//   - remaining / reset_at: quota state
//   - wait / backoff: sleep duration
