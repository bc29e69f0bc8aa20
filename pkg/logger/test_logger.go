package logger

import (
	"sync"

	"github.com/rs/zerolog"
)

// TestLogger is an in-memory Logger for assertions in tests. Loggers
// derived via WithField share the parent's sink, so everything logged
// anywhere in the tree is visible from the root. Safe for concurrent
// use.
type TestLogger struct {
	sink   *testSink
	fields map[string]interface{}
	nop    zerolog.Logger
}

type testSink struct {
	mu      sync.Mutex
	entries []TestEntry
}

// TestEntry is one captured log record.
type TestEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewTestLogger creates a logger that records entries instead of
// writing them anywhere.
func NewTestLogger() *TestLogger {
	return &TestLogger{
		sink:   &testSink{},
		fields: make(map[string]interface{}),
		nop:    zerolog.Nop(),
	}
}

func (t *TestLogger) record(level, msg string, extra map[string]interface{}) {
	fields := make(map[string]interface{}, len(t.fields)+len(extra))
	for k, v := range t.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	t.sink.entries = append(t.sink.entries, TestEntry{Level: level, Message: msg, Fields: fields})
}

// Entries returns a copy of everything logged so far.
func (t *TestLogger) Entries() []TestEntry {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	out := make([]TestEntry, len(t.sink.entries))
	copy(out, t.sink.entries)
	return out
}

// HasMessage reports whether any entry carries the given message.
func (t *TestLogger) HasMessage(msg string) bool {
	for _, e := range t.Entries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func (t *TestLogger) Debug(msg string) { t.record("debug", msg, nil) }
func (t *TestLogger) Info(msg string)  { t.record("info", msg, nil) }
func (t *TestLogger) Warn(msg string)  { t.record("warn", msg, nil) }
func (t *TestLogger) Error(msg string) { t.record("error", msg, nil) }
func (t *TestLogger) Fatal(msg string) { t.record("fatal", msg, nil) }

func (t *TestLogger) WithField(key string, value interface{}) Logger {
	return t.WithFields(map[string]interface{}{key: value})
}

func (t *TestLogger) WithFields(fields map[string]interface{}) Logger {
	child := &TestLogger{
		sink:   t.sink,
		fields: make(map[string]interface{}, len(t.fields)+len(fields)),
		nop:    t.nop,
	}
	for k, v := range t.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

func (t *TestLogger) WithError(err error) Logger {
	if err == nil {
		return t
	}
	return t.WithField("error", err.Error())
}

func (t *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	t.record("debug", msg, fields)
}

func (t *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	t.record("info", msg, fields)
}

func (t *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	t.record("warn", msg, fields)
}

func (t *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	t.record("error", msg, fields)
}

func (t *TestLogger) GetZerolog() *zerolog.Logger { return &t.nop }
