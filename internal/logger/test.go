package logger

import (
	"context"
	"sync"
)

// LogEntry is a single captured entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

type sink struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// TestLogger captures entries in memory. Derived loggers share the parent's sink.
type TestLogger struct {
	sink   *sink
	fields map[string]interface{}
}

// NewTestLogger creates an empty TestLogger.
func NewTestLogger() *TestLogger {
	return &TestLogger{sink: &sink{}, fields: map[string]interface{}{}}
}

func (l *TestLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("debug", msg, fields)
}

func (l *TestLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("info", msg, fields)
}

func (l *TestLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("warn", msg, fields)
}

func (l *TestLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("error", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{sink: l.sink, fields: merged}
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	all := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.entries = append(l.sink.entries, LogEntry{Level: level, Message: msg, Fields: all})
}

// Entries returns a copy of the captured entries.
func (l *TestLogger) Entries() []LogEntry {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	out := make([]LogEntry, len(l.sink.entries))
	copy(out, l.sink.entries)
	return out
}

// Messages returns the captured messages at level, in order.
func (l *TestLogger) Messages(level string) []string {
	var out []string
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Reset drops all captured entries.
func (l *TestLogger) Reset() {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.entries = nil
}
