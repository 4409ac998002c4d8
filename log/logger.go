// Package log provides category-tagged logging for the probe toolkit.
package log

import (
	"context"
	"io"
	"regexp"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger and tags every entry with a category so
// that output from the CDP plumbing, the browser layer and the probes
// can be told apart (and filtered) when reading a run transcript.
type Logger struct {
	ctx context.Context
	*logrus.Logger
	debugOverride  bool
	categoryFilter *regexp.Regexp
}

// NullLogger returns a logrus logger that discards everything. Used in
// tests and as a safe default.
func NullLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// New returns a Logger on top of the given logrus logger. A non-nil
// categoryFilter suppresses entries whose category does not match.
func New(ctx context.Context, logger *logrus.Logger, debugOverride bool, categoryFilter *regexp.Regexp) *Logger {
	return &Logger{
		ctx:            ctx,
		Logger:         logger,
		debugOverride:  debugOverride,
		categoryFilter: categoryFilter,
	}
}

// NewNull returns a Logger that discards everything.
func NewNull(ctx context.Context) *Logger {
	return New(ctx, NullLogger(), false, nil)
}

// Debugf logs a debug message under the given category.
func (l *Logger) Debugf(category string, msg string, args ...any) {
	l.logf(logrus.DebugLevel, category, msg, args...)
}

// Infof logs an info message under the given category.
func (l *Logger) Infof(category string, msg string, args ...any) {
	l.logf(logrus.InfoLevel, category, msg, args...)
}

// Warnf logs a warning under the given category.
func (l *Logger) Warnf(category string, msg string, args ...any) {
	l.logf(logrus.WarnLevel, category, msg, args...)
}

// Errorf logs an error under the given category.
func (l *Logger) Errorf(category string, msg string, args ...any) {
	l.logf(logrus.ErrorLevel, category, msg, args...)
}

func (l *Logger) logf(level logrus.Level, category string, msg string, args ...any) {
	if l.categoryFilter != nil && !l.categoryFilter.MatchString(category) {
		return
	}
	entry := l.WithField("category", category)
	if l.GetLevel() < level && l.debugOverride {
		entry.Printf(msg, args...)
		return
	}
	entry.Logf(level, msg, args...)
}

// SetLevel sets the logger level from a level string ("debug", "info",
// "warn", "error", ...).
func (l *Logger) SetLevel(level string) error {
	pl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.Logger.SetLevel(pl)
	return nil
}

// DebugMode returns true if the logger level is set to Debug or higher.
func (l *Logger) DebugMode() bool {
	return l.Logger.GetLevel() >= logrus.DebugLevel
}
