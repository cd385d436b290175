// Package logging provides the structured logging contract shared by every
// pipeline component, plus adapters between slog and Watermill's logger.
package logging

import (
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields represents structured logging key/value pairs.
type LogFields map[string]any

// Logger is the minimal logging contract required by pipeline components. It
// maps directly onto Watermill's logging needs so the bus and the pipeline
// share one logger.
type Logger interface {
	With(fields LogFields) Logger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Warn(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
}

// NewSlogLogger wraps a slog.Logger so it satisfies the Logger interface.
func NewSlogLogger(log *slog.Logger) Logger {
	if log == nil {
		panic("logging: slog logger cannot be nil")
	}
	return &slogLogger{inner: log}
}

// NewDefaultLogger returns a JSON slog logger writing to stderr at the given
// level, wrapped as a Logger.
func NewDefaultLogger(level slog.Level) Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return NewSlogLogger(slog.New(handler))
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() Logger {
	return &watermillLogger{inner: watermill.NopLogger{}}
}

type slogLogger struct {
	inner *slog.Logger
}

func (l *slogLogger) With(fields LogFields) Logger {
	if len(fields) == 0 {
		return l
	}
	return &slogLogger{inner: l.inner.With(toArgs(fields)...)}
}

func (l *slogLogger) Debug(msg string, fields LogFields) {
	l.inner.Debug(msg, toArgs(fields)...)
}

func (l *slogLogger) Info(msg string, fields LogFields) {
	l.inner.Info(msg, toArgs(fields)...)
}

func (l *slogLogger) Warn(msg string, fields LogFields) {
	l.inner.Warn(msg, toArgs(fields)...)
}

func (l *slogLogger) Error(msg string, err error, fields LogFields) {
	args := toArgs(fields)
	if err != nil {
		args = append(args, slog.Any("error", err))
	}
	l.inner.Error(msg, args...)
}

func toArgs(fields LogFields) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}
	return args
}

type watermillLogger struct {
	inner watermill.LoggerAdapter
}

func (w *watermillLogger) With(fields LogFields) Logger {
	return &watermillLogger{inner: w.inner.With(watermill.LogFields(fields))}
}

func (w *watermillLogger) Debug(msg string, fields LogFields) {
	w.inner.Debug(msg, watermill.LogFields(fields))
}

func (w *watermillLogger) Info(msg string, fields LogFields) {
	w.inner.Info(msg, watermill.LogFields(fields))
}

func (w *watermillLogger) Warn(msg string, fields LogFields) {
	w.inner.Info(msg, watermill.LogFields(fields))
}

func (w *watermillLogger) Error(msg string, err error, fields LogFields) {
	w.inner.Error(msg, err, watermill.LogFields(fields))
}

type watermillAdapter struct {
	base Logger
}

// NewWatermillAdapter converts a Logger into a Watermill LoggerAdapter so the
// bus transports reuse the same logger abstraction.
func NewWatermillAdapter(log Logger) watermill.LoggerAdapter {
	if log == nil {
		panic("logging: logger cannot be nil")
	}
	return &watermillAdapter{base: log}
}

func (s *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	s.base.Error(msg, err, LogFields(fields))
}

func (s *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	s.base.Info(msg, LogFields(fields))
}

func (s *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	s.base.Debug(msg, LogFields(fields))
}

func (s *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	s.base.Debug(msg, LogFields(fields))
}

func (s *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{base: s.base.With(LogFields(fields))}
}
