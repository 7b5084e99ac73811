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

func TestHealthLive(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	resp, data := f.do(t, http.MethodGet, "/health/live", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if env := decodeEnvelope(t, data); !env.Success {
		t.Errorf("envelope = %s", data)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}

func readyStatus(t *testing.T, data []byte) ReadyStatus {
	t.Helper()

	var env struct {
		Data  ReadyStatus `json:"data"`
		Error *struct {
			Details ReadyStatus `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Error != nil {
		return env.Error.Details
	}
	return env.Data
}

func TestHealthReady(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	f.relay.set(0, 0, false, 2)
	f.docs.set(0, 0, false, 3)

	resp, data := f.do(t, http.MethodGet, "/health/ready", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}
	st := readyStatus(t, data)
	if !st.Ready || st.RelayRooms != 2 || st.Documents != 3 || st.FanoutEnabled {
		t.Errorf("status = %+v", st)
	}
}

func TestHealthReadyFollowsFanout(t *testing.T) {
	t.Parallel()

	fan := &fakeFanout{}
	f := newFixture(t, defaultConfig(), func(h *Handler) { h.SetFanout(fan) })

	resp, data := f.do(t, http.MethodGet, "/health/ready", nil, "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if st := readyStatus(t, data); st.Ready || !st.FanoutEnabled || st.FanoutConnected {
		t.Errorf("status = %+v", st)
	}

	fan.up.Store(true)
	resp, data = f.do(t, http.MethodGet, "/health/ready", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if st := readyStatus(t, data); !st.Ready || !st.FanoutConnected {
		t.Errorf("status = %+v", st)
	}
}
