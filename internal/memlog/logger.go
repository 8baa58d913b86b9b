// Package memlog provides structured logging for the memory engine.
//
// Logger wraps log/slog with component-scoped context fields, mirroring
// the way the rest of this codebase attaches stable identity (component,
// domain, episode id) to every log line instead of relying on the default
// global logger.
package memlog

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Logger wraps slog with a persistent component name and fields.
type Logger struct {
	mu        sync.RWMutex
	inner     *slog.Logger
	component string
}

// New creates a structured logger for a given component.
// Output defaults to os.Stderr if w is nil.
func New(component string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return &Logger{
		inner:     slog.New(handler),
		component: component,
	}
}

// NewWithHandler creates a logger with a custom slog handler.
func NewWithHandler(component string, h slog.Handler) *Logger {
	return &Logger{inner: slog.New(h), component: component}
}

// With returns a new Logger with additional persistent fields.
func (l *Logger) With(key string, value any) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		inner:     l.inner.With(slog.Any(key, value)),
		component: l.component,
	}
}

func (l *Logger) attrs(msg string, args []any) (string, []any) {
	return msg, append([]any{slog.String("component", l.component)}, args...)
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Debug(msg, args...)
}

// Info logs at INFO level.
func (l *Logger) Info(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Info(msg, args...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Warn(msg, args...)
}

// Error logs at ERROR level.
func (l *Logger) Error(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Error(msg, args...)
}

// Storage logs a storage-tier event (backend name, operation outcome).
func (l *Logger) Storage(backend, op string, args ...any) {
	allArgs := append([]any{
		slog.String("component", l.component),
		slog.String("backend", backend),
		slog.String("op", op),
	}, args...)
	l.inner.Debug("storage", allArgs...)
}

// Extraction logs a pattern/heuristic extraction event.
func (l *Logger) Extraction(kind string, episodeID string, args ...any) {
	allArgs := append([]any{
		slog.String("component", l.component),
		slog.String("kind", kind),
		slog.String("episode_id", episodeID),
	}, args...)
	l.inner.Info("extraction", allArgs...)
}

// ComponentName returns the component name associated with this logger.
func (l *Logger) ComponentName() string {
	return l.component
}
