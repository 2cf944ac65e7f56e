package logx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Level mirrors slog levels under the names used by the server bootstrap
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Fields is a set of structured attributes attached to a log line
type Fields map[string]any

var (
	mu     sync.RWMutex
	level  = new(slog.LevelVar)
	logger = newLogger(os.Stdout, false)
)

func newLogger(w io.Writer, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetLevel changes the minimum level of the package logger
func SetLevel(l Level) {
	level.Set(l)
}

// SetOutput redirects log output. jsonOutput switches to the JSON handler.
func SetOutput(w io.Writer, jsonOutput bool) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w, jsonOutput)
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string) { current().Debug(msg) }
func Debugf(format string, args ...any) { current().Debug(fmt.Sprintf(format, args...)) }
func Info(msg string) { current().Info(msg) }
func Infof(format string, args ...any) { current().Info(fmt.Sprintf(format, args...)) }
func Warn(msg string) { current().Warn(msg) }
func Warnf(format string, args ...any) { current().Warn(fmt.Sprintf(format, args...)) }
func Error(msg string) { current().Error(msg) }
func Errorf(format string, args ...any) { current().Error(fmt.Sprintf(format, args...)) }

// Fatalf logs at error level and exits the process
func Fatalf(format string, args ...any) {
	current().Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// Entry is a logger bound to a set of fields
type Entry struct {
	l *slog.Logger
}

// WithFields returns an entry that prefixes every line with fields
func WithFields(fields Fields) *Entry {
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return &Entry{l: current().With(attrs...)}
}

// WithField is WithFields for a single key
func WithField(key string, value any) *Entry {
	return &Entry{l: current().With(key, value)}
}

func (e *Entry) WithField(key string, value any) *Entry {
	return &Entry{l: e.l.With(key, value)}
}

func (e *Entry) Debugf(format string, args ...any) { e.l.Debug(fmt.Sprintf(format, args...)) }
func (e *Entry) Info(msg string) { e.l.Info(msg) }
func (e *Entry) Infof(format string, args ...any) { e.l.Info(fmt.Sprintf(format, args...)) }
func (e *Entry) Warnf(format string, args ...any) { e.l.Warn(fmt.Sprintf(format, args...)) }
func (e *Entry) Errorf(format string, args ...any) { e.l.Error(fmt.Sprintf(format, args...)) }

// Ctx logs with a context so handlers that read it (tracing, request ids) can use it
func Ctx(ctx context.Context) *CtxEntry {
	return &CtxEntry{ctx: ctx, l: current()}
}

type CtxEntry struct {
	ctx context.Context
	l   *slog.Logger
}

func (e *CtxEntry) Infof(format string, args ...any) {
	e.l.InfoContext(e.ctx, fmt.Sprintf(format, args...))
}

func (e *CtxEntry) Warnf(format string, args ...any) {
	e.l.WarnContext(e.ctx, fmt.Sprintf(format, args...))
}

func (e *CtxEntry) Errorf(format string, args ...any) {
	e.l.ErrorContext(e.ctx, fmt.Sprintf(format, args...))
}
