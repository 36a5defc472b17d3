package logger

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Format selects the logrus formatter
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// LogrusLogger adapts a logrus entry to Logger.
type LogrusLogger struct {
	logger *logrus.Logger
	entry  *logrus.Entry
}

// NewLogrusLogger creates a LogrusLogger writing to stderr. Unknown levels fall back to info.
func NewLogrusLogger(level string, format Format) *LogrusLogger {
	return newLogrusLogger(os.Stderr, level, format)
}

func newLogrusLogger(w io.Writer, level string, format Format) *LogrusLogger {
	l := logrus.New()
	l.SetOutput(w)
	if format == FormatText {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return &LogrusLogger{logger: l, entry: logrus.NewEntry(l)}
}

func (l *LogrusLogger) with(fields map[string]interface{}) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	return l.entry.WithFields(fields)
}

func (l *LogrusLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.with(fields).WithContext(ctx).Debug(msg)
}

func (l *LogrusLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.with(fields).WithContext(ctx).Info(msg)
}

func (l *LogrusLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.with(fields).WithContext(ctx).Warn(msg)
}

func (l *LogrusLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.with(fields).WithContext(ctx).Error(msg)
}

// WithField returns a new logger with the given field added.
func (l *LogrusLogger) WithField(key string, value interface{}) Logger {
	return &LogrusLogger{logger: l.logger, entry: l.entry.WithField(key, value)}
}

// WithFields returns a new logger with the given fields added.
func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{logger: l.logger, entry: l.entry.WithFields(fields)}
}
