// Package logger provides a simple logging interface for dgxops components.
// It allows packages to log debug, info, warn, and error messages without
// being coupled to a specific logging implementation.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger defines the interface for logging operations.
// All methods accept a format string and arguments, similar to fmt.Printf.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Options controls the shared logrus backend.
type Options struct {
	Level  string    // debug, info, warn, error
	Format string    // text or json
	Output io.Writer // defaults to stderr
}

var (
	baseMu sync.RWMutex
	base   = newBase(Options{})
)

func newBase(opts Options) *logrus.Logger {
	l := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	if strings.EqualFold(opts.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	}

	level := opts.Level
	if level == "" {
		level = os.Getenv("DGXOPS_LOG_LEVEL")
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	// DGXOPS_DEBUG always wins, handy when chasing a flaky host.
	if os.Getenv("DGXOPS_DEBUG") != "" {
		lvl = logrus.DebugLevel
	}
	l.SetLevel(lvl)

	return l
}

// Configure replaces the shared backend. Loggers created before the call
// pick up the new settings on their next message.
func Configure(opts Options) {
	l := newBase(opts)
	baseMu.Lock()
	base = l
	baseMu.Unlock()
}

func current() *logrus.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

// componentLogger implements Logger on top of the shared logrus backend,
// tagging every entry with its component name.
type componentLogger struct {
	component string
}

// New creates a logger tagged with the given component (e.g., "registry" or "sync").
func New(component string) Logger {
	return &componentLogger{component: component}
}

func (l *componentLogger) entry() *logrus.Entry {
	return current().WithField("component", l.component)
}

func (l *componentLogger) Debug(format string, args ...interface{}) {
	l.entry().Debugf(format, args...)
}

func (l *componentLogger) Info(format string, args ...interface{}) {
	l.entry().Infof(format, args...)
}

func (l *componentLogger) Warn(format string, args ...interface{}) {
	l.entry().Warnf(format, args...)
}

func (l *componentLogger) Error(format string, args ...interface{}) {
	l.entry().Errorf(format, args...)
}

// Entry exposes the logrus entry for callers that want structured fields,
// such as the HTTP access log.
func Entry(component string) *logrus.Entry {
	return current().WithField("component", component)
}

// noopLogger implements Logger but discards all messages.
// Useful for testing or when logging is not desired.
type noopLogger struct{}

// Noop returns a logger that discards all messages.
func Noop() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Debug(format string, args ...interface{}) {}
func (l *noopLogger) Info(format string, args ...interface{})  {}
func (l *noopLogger) Warn(format string, args ...interface{})  {}
func (l *noopLogger) Error(format string, args ...interface{}) {}

// LogMessage represents a captured log message.
type LogMessage struct {
	Level   string
	Message string
}

// BufferLogger captures log messages for testing.
// Safe for use from concurrent goroutines.
type BufferLogger struct {
	mu       sync.Mutex
	messages []LogMessage
}

// NewBufferLogger creates a logger that captures messages for inspection.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{}
}

func (l *BufferLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, LogMessage{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (l *BufferLogger) Debug(format string, args ...interface{}) { l.add("debug", format, args...) }
func (l *BufferLogger) Info(format string, args ...interface{})  { l.add("info", format, args...) }
func (l *BufferLogger) Warn(format string, args ...interface{})  { l.add("warn", format, args...) }
func (l *BufferLogger) Error(format string, args ...interface{}) { l.add("error", format, args...) }

// Messages returns a copy of the captured messages.
func (l *BufferLogger) Messages() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// HasLevel returns true if any message was logged at the given level.
func (l *BufferLogger) HasLevel(level string) bool {
	for _, m := range l.Messages() {
		if m.Level == level {
			return true
		}
	}
	return false
}

// Contains returns true if any captured message contains substr.
func (l *BufferLogger) Contains(substr string) bool {
	for _, m := range l.Messages() {
		if strings.Contains(m.Message, substr) {
			return true
		}
	}
	return false
}

// Clear removes all captured messages.
func (l *BufferLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = l.messages[:0]
}
