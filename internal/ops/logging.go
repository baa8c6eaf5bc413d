package ops

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/plumefeed/plume/internal/config"
)

// Logger is a structured logger wrapper
type Logger struct {
	*slog.Logger
	level  slog.Level
	format string
}

// NewLogger creates a new structured logger based on config
func NewLogger(cfg *config.Logging) *Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// NewLoggerWithWriter creates a logger with a custom writer
func NewLoggerWithWriter(cfg *config.Logging, w io.Writer) *Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		format: cfg.Format,
	}
}

// WithComponent adds a component field to all log messages
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
		level:  l.level,
		format: l.format,
	}
}

// WithFields adds custom fields to the logger
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
		level:  l.level,
		format: l.format,
	}
}

// IsDebugEnabled returns true if debug logging is enabled
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= slog.LevelDebug
}

// Component-specific logger helpers

// LogCacheOperation logs a cache operation
func (l *Logger) LogCacheOperation(op string, key string, hit bool) {
	l.Debug("cache operation",
		"operation", op,
		"key", key,
		"hit", hit)
}

// LogRelayQuery logs a relay query
func (l *Logger) LogRelayQuery(feed string, count int, duration time.Duration, err error) {
	if err != nil {
		l.Warn("relay query failed",
			"feed", feed,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	} else {
		l.Debug("relay query completed",
			"feed", feed,
			"events", count,
			"duration_ms", duration.Milliseconds())
	}
}

// LogFeedTransition logs a feed state transition
func (l *Logger) LogFeedTransition(feed string, phase string, items int, pending int) {
	l.Debug("feed state",
		"feed", feed,
		"phase", phase,
		"items", items,
		"pending", pending)
}

// LogEnrichment logs a profile enrichment batch
func (l *Logger) LogEnrichment(requested int, resolved int, err error) {
	if err != nil {
		l.Debug("profile enrichment failed",
			"requested", requested,
			"error", err)
	} else {
		l.Debug("profile enrichment completed",
			"requested", requested,
			"resolved", resolved)
	}
}
