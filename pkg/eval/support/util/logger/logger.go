// Package logger provides the leveled logging used throughout pvtruth.
// It keeps a printf-style API and writes through log/slog, using a tint console
// handler for text output and the JSON handler for machine-readable output.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// LogLevel is a type representing the logging level.
type LogLevel int

const (
	// LevelDebug is the log level used for detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo is the log level used for general informational messages.
	LevelInfo
	// LevelWarn is the log level used for potential issues or warning messages.
	LevelWarn
	// LevelError is the log level used for error messages.
	LevelError
	// LevelFatal is the log level used for errors that terminate the process.
	LevelFatal
)

var (
	mu           sync.RWMutex
	logLevel     = LevelInfo
	outputFormat = "text"
	out          io.Writer = os.Stderr
	slogger      *slog.Logger
	levelVar     = new(slog.LevelVar)
)

func init() {
	rebuild()
}

// SetLogLevel sets the global log level.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR", "FATAL" (case-insensitive).
// Unknown values fall back to INFO.
func SetLogLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	lvl, ok := ParseLevel(level)
	if !ok {
		fmt.Fprintf(out, "Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
	}
	logLevel = lvl
	levelVar.Set(toSlogLevel(lvl))
}

// SetFormat switches between "text" (tint) and "json" output.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(f) {
	case "json":
		outputFormat = "json"
	default:
		outputFormat = "text"
	}
	rebuild()
}

// SetOutput redirects log output. Mostly useful in tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

// ParseLevel converts a level name to a LogLevel. The boolean is false for unknown names.
func ParseLevel(level string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG", "TRACE":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// GetLogLevel returns the current global log level.
func GetLogLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel
}

// Slog exposes the underlying structured logger for callers that want attributes.
func Slog() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// rebuild must be called with mu held.
func rebuild() {
	levelVar.Set(toSlogLevel(logLevel))
	var h slog.Handler
	if outputFormat == "json" {
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: levelVar})
	} else {
		h = tint.NewHandler(out, &tint.Options{
			Level:      levelVar,
			TimeFormat: time.DateTime,
		})
	}
	slogger = slog.New(h).With("app", "pvtruth")
}

func toSlogLevel(l LogLevel) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError, LevelFatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logf(l LogLevel, format string, v ...interface{}) {
	if GetLogLevel() > l {
		return
	}
	Slog().Log(context.Background(), toSlogLevel(l), fmt.Sprintf(format, v...))
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	logf(LevelDebug, format, v...)
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	logf(LevelInfo, format, v...)
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	logf(LevelWarn, format, v...)
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	logf(LevelError, format, v...)
}

// Fatalf logs at ERROR level and terminates the program with exit code 1.
func Fatalf(format string, v ...interface{}) {
	Slog().Error("[FATAL] " + fmt.Sprintf(format, v...))
	os.Exit(1)
}
