// Package logger provides a minimal leveled logging utility.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Level is a log severity level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu           sync.Mutex
	currentLevel = LevelInfo
	out          io.Writer = os.Stderr
)

// SetLevel sets the global log level.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
}

// SetLevelFromString sets the log level from a string. Unknown values
// fall back to Info.
func SetLevelFromString(level string) {
	switch strings.ToLower(level) {
	case "debug":
		SetLevel(LevelDebug)
	case "info":
		SetLevel(LevelInfo)
	case "warn", "warning":
		SetLevel(LevelWarn)
	case "error":
		SetLevel(LevelError)
	default:
		SetLevel(LevelInfo)
	}
}

// SetOutput redirects log output. Tests use this to capture logs.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// IsDebugEnabled reports whether debug logging is enabled.
func IsDebugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return currentLevel <= LevelDebug
}

func logf(level Level, prefix, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if currentLevel <= level {
		fmt.Fprintf(out, prefix+format+"\n", args...)
	}
}

// Debug logs a debug message.
func Debug(format string, args ...any) { logf(LevelDebug, "[DEBUG] ", format, args...) }

// Info logs an informational message.
func Info(format string, args ...any) { logf(LevelInfo, "[INFO] ", format, args...) }

// Warn logs a warning message.
func Warn(format string, args ...any) { logf(LevelWarn, "[WARN] ", format, args...) }

// Error logs an error message.
func Error(format string, args ...any) { logf(LevelError, "[ERROR] ", format, args...) }
