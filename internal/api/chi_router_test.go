// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package api

import (
	"net/http"
	"strings"
	"testing"
)

func TestWebsocketRouteWithAndWithoutSlash(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	for _, path := range []string{"/collaboration/ws/?room=" + testRoom, "/collaboration/ws?room=" + testRoom} {
		resp, _ := f.do(t, http.MethodGet, path, nil, "")
		if resp.StatusCode != http.StatusTeapot {
			t.Errorf("%s: status = %d", path, resp.StatusCode)
		}
	}
	if got := f.wsHits.Load(); got != 2 {
		t.Errorf("websocket handler hit %d times, want 2", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	f.do(t, http.MethodPost, "/api/convert", convertHeaders("text/markdown", "application/json"), "# Hi")

	resp, data := f.do(t, http.MethodGet, "/metrics", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(data), "collab_api_requests_total") {
		t.Error("api request counter not exposed")
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	headers := map[string]string{
		"Origin":                        "https://docs.example.com",
		"Access-Control-Request-Method": http.MethodPost,
	}
	resp, _ := f.do(t, http.MethodOptions, "/api/convert", headers, "")
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://docs.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	headers["Origin"] = "https://evil.example.com"
	resp, _ = f.do(t, http.MethodOptions, "/api/convert", headers, "")
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	resp, data := f.do(t, http.MethodGet, "/nope", nil, "")
	expectErrorCode(t, resp, data, http.StatusNotFound, ErrCodeNotFound)
}
