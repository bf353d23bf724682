// Package telemetry is the ambient observability stack: structured logging,
// OpenTelemetry tracing, and Sentry error capture. None of it is ever
// load-bearing — every collaborator here is optional and no-op by default,
// matching the teacher's own "logging must not fail the run" posture in
// cmd/server/main.go's log-manager code. Grounded on ferg-cod3s-conexus's
// internal/observability package (logger.go/tracing.go/error_handler.go),
// the one pack repo that actually wires slog+OTel+Sentry together, adapted
// down to this module's smaller context-key set.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/getsentry/sentry-go"
)

type ctxKey string

// TraceIDKey is the context key a logger uses to pull the active trace id,
// set by Tracer.Start (see tracing.go) when tracing is enabled.
const TraceIDKey ctxKey = "trace_id"

// RepoKey is the context key for the repository root an operation targets.
const RepoKey ctxKey = "repo"

// LoggerConfig configures the structured logger.
type LoggerConfig struct {
	Level         string // debug|info|warn|error, default info
	Format        string // json|text, default json
	Output        io.Writer
	SentryEnabled bool
}

// Logger wraps slog.Logger with context-aware helpers.
type Logger struct {
	logger *slog.Logger
}

// NewLogger builds a Logger per cfg.
func NewLogger(cfg LoggerConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	if cfg.SentryEnabled {
		handler = &sentryHandler{next: handler}
	}

	return &Logger{logger: slog.New(handler)}
}

// WithContext returns a logger enriched with the trace id and repo path
// carried on ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	logger := l.logger
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		logger = logger.With("trace_id", traceID)
	}
	if repo, ok := ctx.Value(RepoKey).(string); ok && repo != "" {
		logger = logger.With("repo", repo)
	}
	return logger
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Debug(msg, args...)
}
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Info(msg, args...)
}
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Warn(msg, args...)
}
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Error(msg, args...)
}

// With returns a logger with additional persistent attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// sentryHandler forwards warn/error records to Sentry as breadcrumbs before
// passing them on unchanged; it never blocks or drops the underlying log.
type sentryHandler struct {
	next slog.Handler
}

func (h *sentryHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sentryHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		extra := make(map[string]interface{})
		r.Attrs(func(a slog.Attr) bool {
			extra[a.Key] = a.Value.Any()
			return true
		})
		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Category: "log",
			Message:  r.Message,
			Level:    sentryLevel(r.Level),
			Data:     extra,
		})
	}
	return h.next.Handle(ctx, r)
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sentryHandler{next: h.next.WithAttrs(attrs)}
}

func (h *sentryHandler) WithGroup(name string) slog.Handler {
	return &sentryHandler{next: h.next.WithGroup(name)}
}

func sentryLevel(l slog.Level) sentry.Level {
	switch {
	case l >= slog.LevelError:
		return sentry.LevelError
	case l >= slog.LevelWarn:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}
