// Package logger provides component-tagged logging for all soundcheck
// subsystems. Every line carries a short component tag ("hub", "api",
// "viewer", ...) so a single process log stays greppable.
package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log = newLogger(zerolog.InfoLevel)
)

func newLogger(level zerolog.Level) zerolog.Logger {
	var w zerolog.LevelWriter
	if isatty.IsTerminal(os.Stderr.Fd()) {
		w = zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		w = zerolog.MultiLevelWriter(os.Stderr)
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// SetLevel adjusts the global log level. Accepts debug/info/warn/error;
// anything else keeps the current level.
func SetLevel(level string) {
	var l zerolog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l = zerolog.DebugLevel
	case "info":
		l = zerolog.InfoLevel
	case "warn", "warning":
		l = zerolog.WarnLevel
	case "error":
		l = zerolog.ErrorLevel
	default:
		return
	}
	mu.Lock()
	log = newLogger(l)
	mu.Unlock()
}

func emit(level zerolog.Level, component, msg string, fields map[string]interface{}) {
	mu.RLock()
	l := log
	mu.RUnlock()

	ev := l.WithLevel(level).Str("component", component)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// DebugC logs a debug message for a component.
func DebugC(component, msg string) { emit(zerolog.DebugLevel, component, msg, nil) }

// DebugCF logs a debug message with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	emit(zerolog.DebugLevel, component, msg, fields)
}

// InfoC logs an info message for a component.
func InfoC(component, msg string) { emit(zerolog.InfoLevel, component, msg, nil) }

// InfoCF logs an info message with structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	emit(zerolog.InfoLevel, component, msg, fields)
}

// WarnC logs a warning for a component.
func WarnC(component, msg string) { emit(zerolog.WarnLevel, component, msg, nil) }

// WarnCF logs a warning with structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	emit(zerolog.WarnLevel, component, msg, fields)
}

// ErrorC logs an error for a component.
func ErrorC(component, msg string) { emit(zerolog.ErrorLevel, component, msg, nil) }

// ErrorCF logs an error with structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	emit(zerolog.ErrorLevel, component, msg, fields)
}
