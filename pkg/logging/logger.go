// Package logging sets up the zerolog logger shared by the mediahub client,
// its catalog controller and the CLI.
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
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"

	// LevelDisabled silences all output; tests and scripted CLI runs use it.
	LevelDisabled LogLevel = "disabled"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written. Unknown values fall back to info.
	Level LogLevel

	// Pretty switches from JSON lines to the console writer.
	Pretty bool

	// Output receives log lines; nil means os.Stderr. The CLI passes its
	// stderr so stdout stays clean for catalog output and exports.
	Output io.Writer

	// App, when set, is attached to every line as the "app" field.
	App string
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it. Component
// loggers from NewLogger derive from it, so Setup must run before any
// client, controller or store is constructed.
func Setup(cfg Config) zerolog.Logger {
	// The level is global so component loggers created earlier still obey it.
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var output io.Writer = os.Stderr
	if cfg.Output != nil {
		output = cfg.Output
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.App != "" {
		ctx = ctx.Str("app", cfg.App)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

func parseLevel(level LogLevel) zerolog.Level {
	switch LogLevel(strings.ToLower(strings.TrimSpace(string(level)))) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn, "warning":
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelDisabled, "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Query transitions inside the catalog controller (version, tag, page)
//   - Stale fetch results being discarded
//
// Info: Normal operation events
//   - Committed catalog pages
//   - Successful admin submissions and logins
//   - 304 Not Modified revalidations
//
// Warn: Warning conditions that don't prevent operation
//   - Catalog fetch failures (the view keeps its previous items)
//   - Retry attempts and rate limit cooldowns
//   - Cache errors (fallback to direct request)
//   - Circuit breaker state changes
//
// Error: Error conditions requiring attention
//   - Requests failed after all retries
//   - Session storage failures
//   - Configuration errors
//
// Context Fields:
//   - app: process name, when Config.App is set
//   - component: emitting package (catalog-controller, mediahub-client, admin, session, cache)
//   - endpoint: logical backend endpoint (catalog, admin, auth)
//   - status: HTTP status code
//   - error_class: client, server, rate_limit, network
//   - query_version: controller query counter a fetch was issued for
//   - tag, page: active catalog query
//   - request_id: X-Request-ID sent to the backend
