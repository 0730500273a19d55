// Package logger provides a process-wide structured logging singleton used
// by every oauth2broker package. It wraps log/slog so callers never import
// slog directly and so the broker never logs secret material.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
)

var singleton atomic.Pointer[slog.Logger]

func init() {
	Initialize()
}

// Initialize configures the singleton logger from the process environment.
// UNSTRUCTURED_LOGS controls the handler: unset or "true" selects a
// human-readable text handler, "false" selects JSON.
func Initialize() {
	InitializeWithEnv(osEnv{})
}

// envReader abstracts environment lookups so tests can inject deterministic
// values without mutating process-wide environment variables.
type envReader interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

// InitializeWithEnv configures the singleton logger using the given
// environment reader. Exposed so embedding applications can reconfigure
// logging without relying on process environment variables.
func InitializeWithEnv(env envReader) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if unstructuredLogsWithEnv(env) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	singleton.Store(slog.New(handler))
}

// unstructuredLogsWithEnv reports whether UNSTRUCTURED_LOGS selects the
// human-readable text handler. Unset or unparsable values default to true.
func unstructuredLogsWithEnv(env envReader) bool {
	v := env.Getenv("UNSTRUCTURED_LOGS")
	if v == "" {
		return true
	}
	switch v {
	case "false":
		return false
	case "true":
		return true
	default:
		return true
	}
}

// Get returns the current singleton logger.
func Get() *slog.Logger {
	l := singleton.Load()
	if l == nil {
		Initialize()
		l = singleton.Load()
	}
	return l
}

func log(level slog.Level, msg string) {
	Get().Log(context.Background(), level, msg)
}

func logf(level slog.Level, format string, args ...any) {
	Get().Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func logw(level slog.Level, msg string, kv ...any) {
	Get().Log(context.Background(), level, msg, kv...)
}

// Debug logs msg at debug level.
func Debug(msg string) { log(slog.LevelDebug, msg) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { logf(slog.LevelDebug, format, args...) }

// Debugw logs msg with structured key/value pairs at debug level.
func Debugw(msg string, kv ...any) { logw(slog.LevelDebug, msg, kv...) }

// Info logs msg at info level.
func Info(msg string) { log(slog.LevelInfo, msg) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { logf(slog.LevelInfo, format, args...) }

// Infow logs msg with structured key/value pairs at info level.
func Infow(msg string, kv ...any) { logw(slog.LevelInfo, msg, kv...) }

// Warn logs msg at warn level.
func Warn(msg string) { log(slog.LevelWarn, msg) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { logf(slog.LevelWarn, format, args...) }

// Warnw logs msg with structured key/value pairs at warn level.
func Warnw(msg string, kv ...any) { logw(slog.LevelWarn, msg, kv...) }

// Error logs msg at error level.
func Error(msg string) { log(slog.LevelError, msg) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { logf(slog.LevelError, format, args...) }

// Errorw logs msg with structured key/value pairs at error level.
func Errorw(msg string, kv ...any) { logw(slog.LevelError, msg, kv...) }

// dpanicLevel sits between error and the fatal levels; it logs like Error
// but panics, matching the "development panic" convention.
const dpanicLevel = slog.Level(12)

// DPanic logs msg at dpanic level, then panics.
func DPanic(msg string) {
	log(dpanicLevel, msg)
	panic(msg)
}

// DPanicf logs a formatted message at dpanic level, then panics.
func DPanicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log(dpanicLevel, msg)
	panic(msg)
}

// DPanicw logs msg with structured key/value pairs at dpanic level, then panics.
func DPanicw(msg string, kv ...any) {
	logw(dpanicLevel, msg, kv...)
	panic(msg)
}

// Panic logs msg at error level, then panics unconditionally.
func Panic(msg string) {
	log(slog.LevelError, msg)
	panic(msg)
}

// Panicf logs a formatted message at error level, then panics unconditionally.
func Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log(slog.LevelError, msg)
	panic(msg)
}

// Panicw logs msg with structured key/value pairs at error level, then panics unconditionally.
func Panicw(msg string, kv ...any) {
	logw(slog.LevelError, msg, kv...)
	panic(msg)
}
