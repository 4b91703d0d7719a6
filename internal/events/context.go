package events

import (
	"context"
	"os"
	"sync"
)

type contextKey int

const (
	loggerKey contextKey = iota
	passIDKey
)

// FromContext extracts logger from context.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return defaultLogger
}

// WithLogger adds logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithPassID tags the context logger with the sequence number of a sync pass.
func WithPassID(ctx context.Context, id int) context.Context {
	logger := FromContext(ctx).WithField("pass", id)
	ctx = context.WithValue(ctx, passIDKey, id)
	return WithLogger(ctx, logger)
}

// GetPassID retrieves the pass number from context, or 0.
func GetPassID(ctx context.Context) int {
	if id, ok := ctx.Value(passIDKey).(int); ok {
		return id
	}
	return 0
}

var defaultLogger = &Logger{
	mu:     &sync.Mutex{},
	level:  WarnLevel,
	format: "text",
	output: os.Stderr,
	fields: make(map[string]interface{}),
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
