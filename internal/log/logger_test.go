// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	SetOutput(&buf)
	t.Cleanup(func() {
		SetLevel(prev)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		level LogLevel
		ok    bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"Fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, ok := ParseLevel(tt.in)
			if level != tt.level || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.in, level, ok, tt.level, tt.ok)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelWarn)

	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warnf("warn %d", 3)
	Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below WARN were logged: %q", out)
	}
	if !strings.Contains(out, "[WARN]  warn 3") {
		t.Errorf("expected padded WARN line, got %q", out)
	}
	if !strings.Contains(out, "[ERROR] error 4") {
		t.Errorf("expected ERROR line, got %q", out)
	}
}

func TestComponentLogger(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelDebug)

	l := New("playback")
	l.Debugf("loaded %s", "a.wav")

	if got := buf.String(); !strings.Contains(got, "[DEBUG] playback: loaded a.wav") {
		t.Errorf("unexpected component output %q", got)
	}
	if l.Component() != "playback" {
		t.Errorf("Component() = %q", l.Component())
	}
}

func TestFatalExits(t *testing.T) {
	buf := capture(t)
	code := -1
	prevExit := exit
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = prevExit })

	New("main").Fatalf("boom")

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(buf.String(), "[FATAL] main: boom") {
		t.Errorf("unexpected fatal output %q", buf.String())
	}
}
