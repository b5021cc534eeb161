package common

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents logging verbosity levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "error"
	case LogLevelWarn:
		return "warn"
	case LogLevelDebug:
		return "debug"
	default:
		return "info"
	}
}

// ToSlogLevel converts LogLevel to slog.Level
func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel maps a config string to a LogLevel. Empty means info.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "info", "":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return LogLevelInfo, fmt.Errorf("invalid logging level: %s (valid: error, warn, info, debug)", s)
	}
}

// Logger wraps slog.Logger with the context helpers used across sqlupgrade.
type Logger struct {
	*slog.Logger
	level  LogLevel
	masker *Masker
}

func newLogger(h slog.Handler, level LogLevel, m *Masker) *Logger {
	return &Logger{Logger: slog.New(h), level: level, masker: m}
}

// NewLogger creates a text logger writing to stdout.
func NewLogger(level LogLevel) *Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo creates a text logger writing to w.
func NewLoggerTo(w io.Writer, level LogLevel) *Logger {
	m := NewMasker()
	h := newMaskingHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.ToSlogLevel()}), m)
	return newLogger(h, level, m)
}

// NewJSONLogger creates a structured logger with JSON output
func NewJSONLogger(level LogLevel) *Logger {
	return NewJSONLoggerTo(os.Stdout, level)
}

// NewJSONLoggerTo creates a JSON logger writing to w.
func NewJSONLoggerTo(w io.Writer, level LogLevel) *Logger {
	m := NewMasker()
	h := newMaskingHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level.ToSlogLevel()}), m)
	return newLogger(h, level, m)
}

// NewColorLogger creates a logger using ColorHandler on stdout.
func NewColorLogger(level LogLevel) *Logger {
	h := NewColorHandler(os.Stdout, &slog.HandlerOptions{Level: level.ToSlogLevel()})
	return newLogger(h, level, h.masker)
}

// Level returns the current log level
func (l *Logger) Level() LogLevel {
	return l.level
}

// EnableMasking toggles sensitive-data masking for this logger.
func (l *Logger) EnableMasking(enabled bool) {
	if l.masker != nil {
		l.masker.SetEnabled(enabled)
	}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level, masker: l.masker}
}

// WithComponent returns a logger with component context
func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// WithVersion returns a logger with schema version context
func (l *Logger) WithVersion(version string) *Logger {
	return l.with("version", version)
}

// WithStore returns a logger with store context
func (l *Logger) WithStore(storeType string) *Logger {
	return l.with("store", storeType)
}

var defaultLogger = NewLogger(LogLevelInfo)

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger *Logger) {
	if logger != nil {
		defaultLogger = logger
	}
}

// GetLogger returns the default logger
func GetLogger() *Logger {
	return defaultLogger
}
