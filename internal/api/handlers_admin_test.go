// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package api

import (
	"net/http"
	"testing"

	"github.com/goccy/go-json"
)

func TestServerSecretGuard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		secret     string
		header     string
		wantStatus int
	}{
		{"no secret configured", "", "", http.StatusForbidden},
		{"no secret configured ignores header", "", "anything", http.StatusForbidden},
		{"missing header", testSecret, "", http.StatusForbidden},
		{"wrong secret", testSecret, "nope", http.StatusForbidden},
		{"bearer form is not accepted", testSecret, "Bearer " + testSecret, http.StatusForbidden},
		{"matching secret", testSecret, testSecret, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := defaultConfig()
			cfg.ServerSecret = tt.secret
			f := newFixture(t, cfg)

			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			resp, data := f.do(t, http.MethodGet, "/collaboration/api/get-connections/?room="+testRoom, headers, "")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.wantStatus, data)
			}
			if tt.wantStatus == http.StatusForbidden {
				expectErrorCode(t, resp, data, http.StatusForbidden, ErrCodeForbidden)
			}
		})
	}
}

func TestResetConnections(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	f.relay.set(2, 0, false, 0)
	f.docs.set(1, 0, false, 0)

	resp, data := f.do(t, http.MethodPost, "/collaboration/api/reset-connections/?room="+testRoom,
		map[string]string{"Authorization": testSecret, "X-User-Id": "user-42"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}

	var body ResetResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}
	if body.Message != "Connections reset" || body.Closed != 3 {
		t.Errorf("body = %+v", body)
	}

	want := closeCall{testRoom, "user-42"}
	for name, rooms := range map[string]*fakeRooms{"relay": f.relay, "docs": f.docs} {
		calls := rooms.calls()
		if len(calls) != 1 || calls[0] != want {
			t.Errorf("%s calls = %+v, want [%+v]", name, calls, want)
		}
	}
}

func TestResetConnectionsWholeRoom(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	resp, _ := f.do(t, http.MethodPost, "/collaboration/api/reset-connections?room="+testRoom,
		map[string]string{"Authorization": testSecret}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if calls := f.relay.calls(); len(calls) != 1 || calls[0].userID != "" {
		t.Errorf("relay calls = %+v", calls)
	}
}

func TestAdminRejectsInvalidRoom(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	auth := map[string]string{"Authorization": testSecret}

	for _, path := range []string{
		"/collaboration/api/reset-connections/",
		"/collaboration/api/reset-connections/?room=not-a-uuid",
	} {
		resp, data := f.do(t, http.MethodPost, path, auth, "")
		expectErrorCode(t, resp, data, http.StatusBadRequest, ErrCodeValidationFailed)
	}
	resp, data := f.do(t, http.MethodGet, "/collaboration/api/get-connections/?room=x", auth, "")
	expectErrorCode(t, resp, data, http.StatusBadRequest, ErrCodeValidationFailed)

	if len(f.relay.calls()) != 0 || len(f.docs.calls()) != 0 {
		t.Error("rooms touched despite invalid query")
	}
}

func TestGetConnections(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	f.relay.set(0, 2, false, 0)
	f.docs.set(0, 3, true, 0)

	resp, data := f.do(t, http.MethodGet, "/collaboration/api/get-connections/?room="+testRoom+"&sessionKey=abc",
		map[string]string{"Authorization": testSecret}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}

	var body ConnectionsResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 5 || !body.Exists {
		t.Errorf("body = %+v, want 5 and exists", body)
	}
	if f.relay.sessionKey() != "abc" || f.docs.sessionKey() != "abc" {
		t.Errorf("session key not forwarded: %q %q", f.relay.sessionKey(), f.docs.sessionKey())
	}
}

func TestAdminMethodNotAllowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	resp, data := f.do(t, http.MethodGet, "/collaboration/api/reset-connections/?room="+testRoom,
		map[string]string{"Authorization": testSecret}, "")
	expectErrorCode(t, resp, data, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed)
}
