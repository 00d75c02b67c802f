// Package logging gates verbose telemetry lines behind the debug config key,
// leaving fatal/error lines on the standard logger unconditionally.
package logging

import "log"

// Logger wraps the standard library logger with a debug gate, matching
// spec.md §7: "With debug enabled, one line per class of event is emitted."
type Logger struct {
	Debug bool
}

// New returns a Logger with the given debug setting.
func New(debug bool) *Logger {
	return &Logger{Debug: debug}
}

// Debugf logs only when the debug gate is enabled.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || !l.Debug {
		return
	}
	log.Printf(format, args...)
}

// Errorf always logs.
func (l *Logger) Errorf(format string, args ...any) {
	log.Printf(format, args...)
}

// Fatalf always logs and exits, for startup-fatal conditions.
func (l *Logger) Fatalf(format string, args ...any) {
	log.Fatalf(format, args...)
}
