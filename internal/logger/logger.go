package logger

import (
	"strings"
	"sync"
)

const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	processLogger *Logger
	processOnce   sync.Once
)

// Get returns the process-wide console logger. Only the first call's level
// counts.
func Get(level string) *Logger {
	processOnce.Do(func() {
		processLogger = newZapLogger(strings.ToLower(level))
	})
	return processLogger
}

// ValidLevel reports whether level names one of the supported levels.
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		return true
	}
	return false
}
