package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

const serviceName = "docforge"

var (
	// process-wide logger, replaced only by Configure
	defaultLogger *slog.Logger
)

func init() {
	Configure(os.Getenv("ENVIRONMENT"), nil)
}

// rebuilds the default logger for the given environment.
// production logs JSON at INFO to stdout, everything else logs text at DEBUG to stderr.
// a non-nil writer overrides the destination (used by tests)
func Configure(environment string, w io.Writer) {
	var handler slog.Handler

	if environment == "production" {
		if w == nil {
			w = os.Stdout
		}

		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		if w == nil {
			w = os.Stderr
		}

		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	defaultLogger = slog.New(handler).With("service", serviceName)
}

// returns the default logger instance
func Default() *slog.Logger {
	return defaultLogger
}

// creates a logger with additional context fields
func With(args ...any) *slog.Logger {
	return defaultLogger.With(args...)
}

// returns the request-scoped logger if one was attached, otherwise the default
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return defaultLogger
	}

	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}

	return defaultLogger
}

// attaches a logger to the context
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

type loggerKey struct{}

func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// logs an error under the "error" key
func ErrorErr(err error, msg string, args ...any) {
	args = append(args, "error", err)
	defaultLogger.Error(msg, args...)
}

// logs a warning with an error attached
func WarnErr(err error, msg string, args ...any) {
	args = append(args, "error", err)
	defaultLogger.Warn(msg, args...)
}

// logs and exits; only for process startup
func Fatal(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
	os.Exit(1)
}

func FatalErr(err error, msg string, args ...any) {
	args = append(args, "error", err)
	defaultLogger.Error(msg, args...)
	os.Exit(1)
}
