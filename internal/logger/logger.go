package logger

import (
	"context"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

const (
	// LoggerKey is the context key for the logger instance
	LoggerKey ContextKey = "logger"
	// RequestIDKey is the context key for the HTTP request ID
	RequestIDKey ContextKey = "request_id"
	// RunIDKey is the context key for the extraction run ID
	RunIDKey ContextKey = "run_id"
)

// New creates a console logger on stdout.
func New() zerolog.Logger {
	return NewWithWriter(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})
}

// NewWithWriter creates a logger that writes JSON lines to w.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from the context or returns a default logger
func FromContext(ctx context.Context) zerolog.Logger {
	return FromContextOr(ctx, New())
}

// FromContextOr retrieves the logger from the context or returns fallback.
func FromContextOr(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return fallback
}

// WithRequestID stores the request ID and tags the context logger, if any.
// Set the logger first for the tag to apply.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, RequestIDKey, id)
}

// RequestID returns the ID stored by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// WithRunID stores the extraction run ID and tags the context logger, if any.
func WithRunID(ctx context.Context, id string) context.Context {
	return withID(ctx, RunIDKey, id)
}

// RunID returns the ID stored by WithRunID.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(RunIDKey).(string)
	return id
}

func withID(ctx context.Context, key ContextKey, id string) context.Context {
	ctx = context.WithValue(ctx, key, id)
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		ctx = context.WithValue(ctx, LoggerKey, logger.With().Str(string(key), id).Logger())
	}
	return ctx
}

// WithFields adds structured fields to a logger in key order.
func WithFields(logger zerolog.Logger, fields map[string]interface{}) zerolog.Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ctx := logger.With()
	for _, k := range keys {
		ctx = ctx.Interface(k, fields[k])
	}
	return ctx.Logger()
}
