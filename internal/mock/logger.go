// Package mock provides hand-written test doubles for the engine interfaces.
package mock

import (
	"strings"
	"sync"

	"margin_maker/internal/core"
)

// NopLogger discards all log output.
type NopLogger struct{}

func (NopLogger) Debug(msg string, fields ...interface{})              {}
func (NopLogger) Info(msg string, fields ...interface{})               {}
func (NopLogger) Warn(msg string, fields ...interface{})               {}
func (NopLogger) Error(msg string, fields ...interface{})              {}
func (NopLogger) Fatal(msg string, fields ...interface{})              {}
func (n NopLogger) WithField(key string, value interface{}) core.ILogger { return n }
func (n NopLogger) WithFields(fields map[string]interface{}) core.ILogger { return n }

// LogEntry is one captured log call.
type LogEntry struct {
	Level   string
	Message string
	Fields  []interface{}
}

// RecordingLogger captures log calls for assertions.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (l *RecordingLogger) record(level, msg string, fields []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: msg, Fields: fields})
}

func (l *RecordingLogger) Debug(msg string, fields ...interface{}) { l.record("DEBUG", msg, fields) }
func (l *RecordingLogger) Info(msg string, fields ...interface{})  { l.record("INFO", msg, fields) }
func (l *RecordingLogger) Warn(msg string, fields ...interface{})  { l.record("WARN", msg, fields) }
func (l *RecordingLogger) Error(msg string, fields ...interface{}) { l.record("ERROR", msg, fields) }
func (l *RecordingLogger) Fatal(msg string, fields ...interface{}) { l.record("FATAL", msg, fields) }

func (l *RecordingLogger) WithField(key string, value interface{}) core.ILogger {
	return l
}

func (l *RecordingLogger) WithFields(fields map[string]interface{}) core.ILogger {
	return l
}

// Entries returns a copy of the captured log entries.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Contains reports whether any captured message contains the substring.
func (l *RecordingLogger) Contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
