// SPDX-License-Identifier: MIT
package log

import "fmt"

// Logger prefixes every message with a component name, e.g.
//
//	playback: loaded /music/a.flac (44100 Hz, 2 ch)
//
// It shares the global level and output with the package functions.
type Logger struct {
	component string
}

// New returns a Logger for the named component.
func New(component string) *Logger {
	return &Logger{component: component}
}

// Component returns the prefix this logger writes.
func (l *Logger) Component() string { return l.component }

func (l *Logger) Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		output(LevelDebug, l.component, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		output(LevelInfo, l.component, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		output(LevelWarn, l.component, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		output(LevelError, l.component, fmt.Sprintf(format, v...))
	}
}

// Fatalf always logs and exits.
func (l *Logger) Fatalf(format string, v ...any) {
	output(LevelFatal, l.component, fmt.Sprintf(format, v...))
	exit(1)
}
