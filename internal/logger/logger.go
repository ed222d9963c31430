package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	// LevelAlways is never filtered. Progress reports are logged at this level.
	LevelAlways
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelAlways:
		return "ALWAYS"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name such as "debug" or "WARN" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// F creates a new Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger is the interface for all logger implementations.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Always logs msg regardless of the configured level.
	Always(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

// baseLogger provides common formatting logic.
type baseLogger struct {
	writer io.Writer
	level  Level
	fields []Field
	mu     *sync.Mutex
}

func newBase(w io.Writer, level Level) baseLogger {
	return baseLogger{writer: w, level: level, mu: &sync.Mutex{}}
}

func (b *baseLogger) log(level Level, msg string, fields ...Field) {
	if level < b.level {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	allFields := append(append([]Field(nil), b.fields...), fields...)

	var sb strings.Builder
	for _, f := range allFields {
		fmt.Fprintf(&sb, " %s=%v", f.Key, f.Value)
	}

	fmt.Fprintf(b.writer, "[%s] %s: %s%s\n", timestamp, level.String(), msg, sb.String())
}

func (b *baseLogger) with(fields []Field) baseLogger {
	return baseLogger{
		writer: b.writer,
		level:  b.level,
		fields: append(append([]Field(nil), b.fields...), fields...),
		mu:     b.mu,
	}
}

// StdoutLogger logs to stdout.
type StdoutLogger struct {
	baseLogger
}

// NewStdoutLogger creates a logger that writes to stdout.
func NewStdoutLogger(level Level) *StdoutLogger {
	return NewWriterLogger(os.Stdout, level)
}

// NewWriterLogger creates a logger that writes to w.
func NewWriterLogger(w io.Writer, level Level) *StdoutLogger {
	return &StdoutLogger{baseLogger: newBase(w, level)}
}

func (l *StdoutLogger) Debug(msg string, fields ...Field)  { l.log(LevelDebug, msg, fields...) }
func (l *StdoutLogger) Info(msg string, fields ...Field)   { l.log(LevelInfo, msg, fields...) }
func (l *StdoutLogger) Warn(msg string, fields ...Field)   { l.log(LevelWarn, msg, fields...) }
func (l *StdoutLogger) Error(msg string, fields ...Field)  { l.log(LevelError, msg, fields...) }
func (l *StdoutLogger) Always(msg string, fields ...Field) { l.log(LevelAlways, msg, fields...) }

func (l *StdoutLogger) WithFields(fields ...Field) Logger {
	return &StdoutLogger{baseLogger: l.with(fields)}
}

// FileLogger logs to a file.
type FileLogger struct {
	baseLogger
	file *os.File
}

// NewFileLogger creates a logger that appends to the file at path.
func NewFileLogger(path string, level Level) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &FileLogger{
		baseLogger: newBase(file, level),
		file:       file,
	}, nil
}

func (l *FileLogger) Debug(msg string, fields ...Field)  { l.log(LevelDebug, msg, fields...) }
func (l *FileLogger) Info(msg string, fields ...Field)   { l.log(LevelInfo, msg, fields...) }
func (l *FileLogger) Warn(msg string, fields ...Field)   { l.log(LevelWarn, msg, fields...) }
func (l *FileLogger) Error(msg string, fields ...Field)  { l.log(LevelError, msg, fields...) }
func (l *FileLogger) Always(msg string, fields ...Field) { l.log(LevelAlways, msg, fields...) }

func (l *FileLogger) WithFields(fields ...Field) Logger {
	return &FileLogger{baseLogger: l.with(fields), file: l.file}
}

// Close closes the log file.
func (l *FileLogger) Close() error {
	return l.file.Close()
}

// MultiLogger fans every call out to several loggers.
type MultiLogger struct {
	loggers []Logger
	fields  []Field
}

// NewMultiLogger creates a logger that writes to multiple destinations.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) each(fields []Field, fn func(Logger, []Field)) {
	allFields := append(append([]Field(nil), m.fields...), fields...)
	for _, l := range m.loggers {
		fn(l, allFields)
	}
}

func (m *MultiLogger) Debug(msg string, fields ...Field) {
	m.each(fields, func(l Logger, f []Field) { l.Debug(msg, f...) })
}

func (m *MultiLogger) Info(msg string, fields ...Field) {
	m.each(fields, func(l Logger, f []Field) { l.Info(msg, f...) })
}

func (m *MultiLogger) Warn(msg string, fields ...Field) {
	m.each(fields, func(l Logger, f []Field) { l.Warn(msg, f...) })
}

func (m *MultiLogger) Error(msg string, fields ...Field) {
	m.each(fields, func(l Logger, f []Field) { l.Error(msg, f...) })
}

func (m *MultiLogger) Always(msg string, fields ...Field) {
	m.each(fields, func(l Logger, f []Field) { l.Always(msg, f...) })
}

func (m *MultiLogger) WithFields(fields ...Field) Logger {
	newLoggers := make([]Logger, len(m.loggers))
	copy(newLoggers, m.loggers)
	return &MultiLogger{
		loggers: newLoggers,
		fields:  append(append([]Field(nil), m.fields...), fields...),
	}
}

// NoopLogger discards everything.
type NoopLogger struct{}

// NewNoopLogger creates a logger that discards all output.
func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (NoopLogger) Debug(string, ...Field)  {}
func (NoopLogger) Info(string, ...Field)   {}
func (NoopLogger) Warn(string, ...Field)   {}
func (NoopLogger) Error(string, ...Field)  {}
func (NoopLogger) Always(string, ...Field) {}

func (n NoopLogger) WithFields(...Field) Logger { return n }
