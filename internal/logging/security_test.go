// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestSanitizeToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "***"},
		{"abcdefghijklmnop", "abcd...mnop"},
	}
	for _, tt := range tests {
		if got := SanitizeToken(tt.in); got != tt.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeForLog(t *testing.T) {
	t.Parallel()

	if got := SanitizeForLog("Mozilla\r\n/5.0", 100); got != "Mozilla/5.0" {
		t.Errorf("control characters not stripped: %q", got)
	}
	if got := SanitizeForLog(strings.Repeat("a", 20), 10); got != strings.Repeat("a", 10)+"..." {
		t.Errorf("unexpected truncation: %q", got)
	}
}

func TestSanitizeValue(t *testing.T) {
	t.Parallel()

	if got := SanitizeValue("cookie", "docs_sessionid=abcdefghijkl"); got == "docs_sessionid=abcdefghijkl" {
		t.Error("cookie value should be masked")
	}
	if got := SanitizeValue("endpoint", "/api/convert"); got != "/api/convert" {
		t.Errorf("plain value changed: %q", got)
	}
}

func TestSecurityLoggerRoomMismatch(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewSecurityLoggerWithLogger(NewTestLogger(&buf))
	l.LogRoomMismatch("room-a", "room-b", "agent\n", "/collaboration/ws/?room=room-a", "10.0.0.1")

	out := buf.String()
	for _, want := range []string{`"event":"room_mismatch"`, `"room":"room-a"`, `"claimed_room":"room-b"`, `"user_agent":"agent"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}
