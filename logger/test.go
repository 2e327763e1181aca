package logger

import (
	"fmt"
	"sync"
)

type TestLogEntry struct {
	Severity string
	Message  string
}

// TestLogger captures log entries for assertions in tests.
type TestLogger struct {
	mu       sync.Mutex
	metadata map[string]interface{}
	entries  []TestLogEntry
}

var _ Logger = (*TestLogger)(nil)

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	return c
}

func (c *TestLogger) WithPrefix(prefix string) Logger {
	return c
}

func (c *TestLogger) IsLevelEnabled(level LogLevel) bool {
	return true
}

func (c *TestLogger) log(severity, msg string, args ...interface{}) {
	c.mu.Lock()
	c.entries = append(c.entries, TestLogEntry{severity, fmt.Sprintf(msg, args...)})
	c.mu.Unlock()
}

func (c *TestLogger) Trace(msg string, args ...interface{}) { c.log("TRACE", msg, args...) }
func (c *TestLogger) Debug(msg string, args ...interface{}) { c.log("DEBUG", msg, args...) }
func (c *TestLogger) Info(msg string, args ...interface{})  { c.log("INFO", msg, args...) }
func (c *TestLogger) Warn(msg string, args ...interface{})  { c.log("WARNING", msg, args...) }
func (c *TestLogger) Error(msg string, args ...interface{}) { c.log("ERROR", msg, args...) }

// Entries returns a copy of the captured log entries.
func (c *TestLogger) Entries() []TestLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]TestLogEntry{}, c.entries...)
}

// NewTestLogger returns a new Logger instance useful for testing
func NewTestLogger() *TestLogger {
	return &TestLogger{entries: make([]TestLogEntry, 0)}
}
