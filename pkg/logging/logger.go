// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
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

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
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

// ConfigFromEnv builds a configuration from LOG_LEVEL and LOG_PRETTY using
// lookup (usually os.Getenv). Unset values keep their defaults.
func ConfigFromEnv(lookup func(string) string) Config {
	cfg := DefaultConfig()
	if level := lookup("LOG_LEVEL"); level != "" {
		cfg.Level = LogLevel(strings.ToLower(level))
	}
	switch strings.ToLower(lookup("LOG_PRETTY")) {
	case "1", "true", "yes":
		cfg.Pretty = true
	}
	return cfg
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL, invalidation pattern)
//   - Transport attempts and page fetch progress
//
// Info: Normal operation events
//   - Requests that succeeded after retry
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Denied requests (rate limited)
//   - Typed operation failures (4xx, 5xx, network)
//   - Cache and limiter store errors (degraded to miss / fail open)
//   - Retry exhaustion
//
// Error: Error conditions requiring attention
//   - Untyped operation failures
//   - Configuration errors
//
// Context Fields:
//   - component: cache, ratelimit, service, http-transport, gateway
//   - endpoint: Resource endpoint (e.g., rsvps)
//   - operation: Dispatcher operation (fetchAll, create, ...)
//   - status_code: HTTP status code
//   - error_class: Error classification (network, client, server, parse, rate_limited)
//   - request_id: X-Request-ID of the transport call
//   - identity: Rate limit identity (policy:client-ip)
//   - ttl: Cache entry TTL
