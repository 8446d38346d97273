// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewTestLoggerCapturesOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(&buf)

	logger.Info().Str("component", "test").Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"component":"test"`) {
		t.Errorf("expected structured field in output, got %q", out)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("expected message in output, got %q", out)
	}
}

func TestRedactStableWithinProcess(t *testing.T) {
	a := Redact("student@example.edu")
	b := Redact("student@example.edu")
	if a != b {
		t.Errorf("redaction not stable: %q vs %q", a, b)
	}
	if a == "student@example.edu" {
		t.Error("redaction returned the original value")
	}
	if len(a) != redactDigestLen {
		t.Errorf("digest length = %d, want %d", len(a), redactDigestLen)
	}
}

func TestRedactDistinguishesValues(t *testing.T) {
	if Redact("alice") == Redact("bob") {
		t.Error("distinct values produced identical digests")
	}
}

func TestRedactEmpty(t *testing.T) {
	if got := Redact(""); got != "" {
		t.Errorf("Redact(\"\") = %q, want empty", got)
	}
	if got := RedactUserID(""); got != "" {
		t.Errorf("RedactUserID(\"\") = %q, want empty", got)
	}
}

func TestRedactUserIDPrefix(t *testing.T) {
	got := RedactUserID("42")
	if !strings.HasPrefix(got, "u:") {
		t.Errorf("RedactUserID missing prefix: %q", got)
	}
}
