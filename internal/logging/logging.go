package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Logger struct {
	level slog.Level
	base  *slog.Logger
}

// New returns a text logger on stdout at the given level.
func New(level string) *Logger {
	return NewWithWriter(os.Stdout, level, "text")
}

// NewWithWriter builds a logger writing to w. format is "text" or "json".
func NewWithWriter(w io.Writer, level, format string) *Logger {
	lv := parseLevel(level)
	opts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{level: lv, base: slog.New(h)}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{level: slog.LevelError + 1, base: slog.New(slog.DiscardHandler)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a logger that adds the given key/value pairs to every record.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{level: l.level, base: l.base.With(kv...)}
}

// Slog exposes the underlying structured logger.
func (l *Logger) Slog() *slog.Logger { return l.base }

func (l *Logger) Debugf(format string, args ...any) {
	l.base.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.base.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.base.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.base.Error(fmt.Sprintf(format, args...))
}
