package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// NewLogger builds a structured logger from the logging configuration.
// Format "text" produces human-readable output for development; everything
// else falls back to JSON.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = NewTextHandler(w, ParseLevel(level))
	} else {
		handler = NewJSONHandler(w, ParseLevel(level))
	}
	return slog.New(handler)
}

// ParseLevel converts a config-level string to a slog.Level, defaulting to
// info for unknown values.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewJSONHandler creates a JSON log handler with the specified output and level.
func NewJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// NewTextHandler creates a text log handler with the specified output and level.
func NewTextHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

// TracedLogger is a structured logger with automatic trace correlation. It
// wraps slog.Logger, stamps report and job identifiers on every entry, and
// redacts sensitive fields at info level and above.
type TracedLogger struct {
	logger          *slog.Logger
	reportID        string
	jobID           string
	redactSensitive bool
}

// NewTracedLogger creates a logger scoped to one report and job.
func NewTracedLogger(handler slog.Handler, reportID, jobID string) *TracedLogger {
	return &TracedLogger{
		logger:          slog.New(handler),
		reportID:        reportID,
		jobID:           jobID,
		redactSensitive: true,
	}
}

// Debug logs a debug-level message. Debug entries keep all fields without
// redaction so prompts stay inspectable during development.
func (l *TracedLogger) Debug(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Debug(msg, args...)
}

// Info logs an info-level message with sensitive fields redacted.
func (l *TracedLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Info(msg, args...)
}

// Warn logs a warning-level message with sensitive fields redacted.
func (l *TracedLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Warn(msg, args...)
}

// Error logs an error-level message with sensitive fields redacted.
func (l *TracedLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Error(msg, args...)
}

// WithContext returns a slog.Logger carrying the report/job identifiers and,
// when the context holds a valid OpenTelemetry span, the trace correlation
// fields.
func (l *TracedLogger) WithContext(ctx context.Context) *slog.Logger {
	logger := l.logger.With(
		slog.String("report_id", l.reportID),
		slog.String("job_id", l.jobID),
	)

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		logger = logger.With(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	return logger
}

// redactSensitiveData replaces values of sensitive keys with a marker.
// Dossiers and prompts can contain client financial data, so they never
// reach log output above debug level.
func redactSensitiveData(args []any) []any {
	if len(args)%2 != 0 {
		return args
	}

	sensitiveFields := map[string]bool{
		"prompt":     true,
		"prompts":    true,
		"dossier":    true,
		"apikey":     true,
		"secret":     true,
		"password":   true,
		"token":      true,
		"credential": true,
	}

	redacted := make([]any, len(args))
	copy(redacted, args)

	for i := 0; i < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			normalizedKey := strings.ToLower(strings.ReplaceAll(key, "_", ""))
			if sensitiveFields[normalizedKey] {
				redacted[i+1] = "[REDACTED]"
			}
		}
	}

	return redacted
}
