package logger

import (
	"context"
	"log/slog"
)

// slogAlways sits above slog.LevelError so handlers never filter it out.
const slogAlways = slog.Level(12)

// SlogLogger adapts a slog.Handler to Logger.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps h. Progress lines logged with Always are emitted at a
// level above ERROR and labelled "ALWAYS".
func NewSlogLogger(h slog.Handler) *SlogLogger {
	return &SlogLogger{l: slog.New(h)}
}

// SlogLevel maps a Level onto the slog level scale.
func SlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelAlways:
		return slogAlways
	default:
		return slog.LevelInfo
	}
}

// ReplaceLevelAttr renames the custom Always level in handler output. Pass it
// as slog.HandlerOptions.ReplaceAttr.
func ReplaceLevelAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == slogAlways {
			a.Value = slog.StringValue("ALWAYS")
		}
	}
	return a
}

func (s *SlogLogger) emit(level slog.Level, msg string, fields []Field) {
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	s.l.LogAttrs(context.Background(), level, msg, attrs...)
}

func (s *SlogLogger) Debug(msg string, fields ...Field)  { s.emit(slog.LevelDebug, msg, fields) }
func (s *SlogLogger) Info(msg string, fields ...Field)   { s.emit(slog.LevelInfo, msg, fields) }
func (s *SlogLogger) Warn(msg string, fields ...Field)   { s.emit(slog.LevelWarn, msg, fields) }
func (s *SlogLogger) Error(msg string, fields ...Field)  { s.emit(slog.LevelError, msg, fields) }
func (s *SlogLogger) Always(msg string, fields ...Field) { s.emit(slogAlways, msg, fields) }

func (s *SlogLogger) WithFields(fields ...Field) Logger {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return &SlogLogger{l: s.l.With(args...)}
}
