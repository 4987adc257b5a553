package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	requestIDKey = "request_id"
	connIDKey    = "conn_id"
	envLogLevel  = "LOG_LEVEL"
)

var (
	level         = new(slog.LevelVar)
	defaultLogger *slog.Logger
)

func init() {
	level.Set(ParseLevel(os.Getenv(envLogLevel)))
	defaultLogger = New(os.Stdout)
}

// New returns a JSON logger writing to w at the shared level.
func New(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: false,
	}))
}

// ParseLevel maps debug|info|warn|error to a slog level; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the level of every logger built by this package.
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

// SetOutput points the default logger at w. Loggers already stored in a
// context keep their old writer.
func SetOutput(w io.Writer) {
	defaultLogger = New(w)
}

type contextKey struct{}

var loggerKey = &contextKey{}

// FromContext returns the logger from context, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return defaultLogger
}

// WithContext returns a new context that carries the given logger.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithRequestID returns a new context whose logger includes the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return With(ctx, requestIDKey, id)
}

// WithConnID returns a new context whose logger includes the given connection ID.
func WithConnID(ctx context.Context, id string) context.Context {
	return With(ctx, connIDKey, id)
}

// With returns a new context whose logger carries the extra key-value pairs.
func With(ctx context.Context, args ...interface{}) context.Context {
	return WithContext(ctx, FromContext(ctx).With(args...))
}

// Error logs with error level. args are alternating key-value pairs (e.g. "error", err).
func Error(ctx context.Context, message string, args ...interface{}) {
	FromContext(ctx).ErrorContext(ctx, message, args...)
}

// Info logs with info level. args are alternating key-value pairs.
func Info(ctx context.Context, message string, args ...interface{}) {
	FromContext(ctx).InfoContext(ctx, message, args...)
}

// Debug logs with debug level. args are alternating key-value pairs.
func Debug(ctx context.Context, message string, args ...interface{}) {
	FromContext(ctx).DebugContext(ctx, message, args...)
}

// Warn logs with warn level. args are alternating key-value pairs.
func Warn(ctx context.Context, message string, args ...interface{}) {
	FromContext(ctx).WarnContext(ctx, message, args...)
}
