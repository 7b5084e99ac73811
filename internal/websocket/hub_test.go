// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package websocket

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestHubBroadcastSkipsSender(t *testing.T) {
	t.Parallel()

	h := NewHub()
	a, b, c := NewClient(nil, Config{}), NewClient(nil, Config{}), NewClient(nil, Config{})
	h.Add(a)
	h.Add(b)
	h.Add(c)

	if sent := h.Broadcast([]byte("x"), a); sent != 2 {
		t.Errorf("Broadcast() sent to %d clients, want 2", sent)
	}
	if len(a.send) != 0 || len(b.send) != 1 || len(c.send) != 1 {
		t.Errorf("queue lengths = %d %d %d", len(a.send), len(b.send), len(c.send))
	}
}

func TestHubMembership(t *testing.T) {
	t.Parallel()

	h := NewHub()
	a, b := NewClient(nil, Config{}), NewClient(nil, Config{})
	h.Add(b)
	h.Add(a)

	got := h.Clients()
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Error("Clients() should be ordered by id")
	}
	if !h.Remove(a) || h.Remove(a) {
		t.Error("Remove() should report presence once")
	}
	if h.Has(a) || !h.Has(b) || h.Len() != 1 {
		t.Error("unexpected membership after Remove")
	}
}

func TestHubCloseAll(t *testing.T) {
	t.Parallel()

	h := NewHub()
	a, b := NewClient(nil, Config{}), NewClient(nil, Config{})
	h.Add(a)
	h.Add(b)

	if n := h.CloseAll(CloseGoingAway, "shutdown"); n != 2 {
		t.Errorf("CloseAll() = %d", n)
	}
	if !a.Closed() || !b.Closed() || a.CloseCode() != CloseGoingAway {
		t.Error("members not closed")
	}
}

func TestGetShutdownReason(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := GetShutdownReason(ctx); got != ShutdownReasonContextCanceled {
		t.Errorf("got %q", got)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()
	if got := GetShutdownReason(ctx); got != ShutdownReasonContextDeadline {
		t.Errorf("got %q", got)
	}
}

func TestCheckOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"allowed", "https://docs.example.com", []string{"https://docs.example.com"}, true},
		{"other origin", "https://evil.example.com", []string{"https://docs.example.com"}, false},
		{"missing origin", "", []string{"https://docs.example.com"}, false},
		{"wildcard", "https://anything.example", []string{"*"}, true},
		{"wildcard without origin", "", []string{"*"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest("GET", "/collaboration/ws/", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := CheckOrigin(r, tt.allowed); got != tt.want {
				t.Errorf("CheckOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}
