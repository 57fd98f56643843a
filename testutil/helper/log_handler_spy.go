package helper

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// LogHandlerSpy is a slog.Handler implementation that captures log records for testing.
type LogHandlerSpy struct {
	records     []slog.Record
	mu          sync.Mutex
	logToStdout bool
}

// NewLogHandlerSpy creates a new LogHandlerSpy
// Switchable to log to stdout, which can be useful for debugging tests by seeing the actual log output.
func NewLogHandlerSpy(logToStdOut bool) *LogHandlerSpy {
	return &LogHandlerSpy{
		records:     make([]slog.Record, 0),
		logToStdout: logToStdOut,
	}
}

// NewSpyLogger returns a debug-level *slog.Logger writing into a fresh LogHandlerSpy.
func NewSpyLogger() (*slog.Logger, *LogHandlerSpy) {
	spy := NewLogHandlerSpy(false)

	return slog.New(spy), spy
}

// Handle implements slog.Handler interface.
func (s *LogHandlerSpy) Handle(ctx context.Context, record slog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)

	if s.logToStdout {
		jsonHandler := slog.NewJSONHandler(os.Stdout, nil)
		_ = jsonHandler.Handle(ctx, record)
	}

	return nil
}

// Enabled implements slog.Handler interface.
func (s *LogHandlerSpy) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

// WithAttrs implements slog.Handler interface.
func (s *LogHandlerSpy) WithAttrs(_ []slog.Attr) slog.Handler {
	return s
}

// WithGroup implements slog.Handler interface.
func (s *LogHandlerSpy) WithGroup(_ string) slog.Handler {
	return s
}

// GetRecordCount returns the number of captured log records.
func (s *LogHandlerSpy) GetRecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

// GetRecords returns a copy of all captured log records.
func (s *LogHandlerSpy) GetRecords() []slog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]slog.Record, len(s.records))
	copy(records, s.records)

	return records
}

// Reset clears all captured log records.
func (s *LogHandlerSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = s.records[:0]
}

// CountLogsWithMessage counts the records of the given level and message.
func (s *LogHandlerSpy) CountLogsWithMessage(level slog.Level, message string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0

	for _, record := range s.records {
		if record.Level == level && record.Message == message {
			count++
		}
	}

	return count
}

// SpyLogRecordMatcher provides a fluent interface for checking log record attributes.
type SpyLogRecordMatcher struct {
	record *slog.Record
	found  bool
}

func (s *LogHandlerSpy) hasLogWithMessage(level slog.Level, message string) *SpyLogRecordMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.Level == level && record.Message == message {
			return &SpyLogRecordMatcher{record: &record, found: true}
		}
	}

	return &SpyLogRecordMatcher{found: false}
}

// HasDebugLogWithMessage starts a fluent chain to check a debug-level log record.
func (s *LogHandlerSpy) HasDebugLogWithMessage(message string) *SpyLogRecordMatcher {
	return s.hasLogWithMessage(slog.LevelDebug, message)
}

// HasInfoLogWithMessage starts a fluent chain to check an info-level log record.
func (s *LogHandlerSpy) HasInfoLogWithMessage(message string) *SpyLogRecordMatcher {
	return s.hasLogWithMessage(slog.LevelInfo, message)
}

// HasWarnLogWithMessage starts a fluent chain to check a warn-level log record.
func (s *LogHandlerSpy) HasWarnLogWithMessage(message string) *SpyLogRecordMatcher {
	return s.hasLogWithMessage(slog.LevelWarn, message)
}

// HasErrorLogWithMessage starts a fluent chain to check an error-level log record.
func (s *LogHandlerSpy) HasErrorLogWithMessage(message string) *SpyLogRecordMatcher {
	return s.hasLogWithMessage(slog.LevelError, message)
}

// WithDurationMS checks if the log record has a duration_ms attribute with a non-negative value.
func (m *SpyLogRecordMatcher) WithDurationMS() *SpyLogRecordMatcher {
	if !m.found {
		return m
	}

	hasDurationMS := false
	m.record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == "duration_ms" {
			switch attr.Value.Kind() {
			case slog.KindInt64:
				hasDurationMS = attr.Value.Int64() >= 0
			case slog.KindFloat64:
				hasDurationMS = attr.Value.Float64() >= 0
			default:
			}

			return false
		}

		return true
	})

	if !hasDurationMS {
		m.found = false
	}

	return m
}

// WithAttr checks if the log record has an attribute with the given key.
func (m *SpyLogRecordMatcher) WithAttr(key string) *SpyLogRecordMatcher {
	if !m.found {
		return m
	}

	hasAttr := false
	m.record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key {
			hasAttr = true
			return false
		}

		return true
	})

	if !hasAttr {
		m.found = false
	}

	return m
}

// WithAttrValue checks if the log record has an attribute with the given key whose value renders as value.
func (m *SpyLogRecordMatcher) WithAttrValue(key, value string) *SpyLogRecordMatcher {
	if !m.found {
		return m
	}

	matches := false
	m.record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key {
			matches = attr.Value.String() == value
			return false
		}

		return true
	})

	if !matches {
		m.found = false
	}

	return m
}

// Assert returns true if all conditions in the fluent chain were met.
func (m *SpyLogRecordMatcher) Assert() bool {
	return m.found
}
