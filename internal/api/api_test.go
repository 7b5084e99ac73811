// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"

	"github.com/suitenumerique/docs-sub001/internal/logging"
)

const (
	testSecret = "server-secret"
	testAPIKey = "converter-key"
	testRoom   = "3b8a1c9e-4f2d-4a6b-9c1e-5d7f8a9b0c1d"
)

func init() {
	logging.Init(logging.Config{Level: "disabled"})
}

type closeCall struct {
	room, userID string
}

// fakeRooms stands in for both the relay registry and the CRDT server.
type fakeRooms struct {
	mu     sync.Mutex
	closes []closeCall

	closed  int
	count   int
	exists  bool
	rooms   int
	lastKey string
}

func (f *fakeRooms) CloseConnections(room, userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, closeCall{room, userID})
	return f.closed
}

func (f *fakeRooms) ConnectionInfo(_, sessionKey string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastKey = sessionKey
	return f.count, f.exists
}

func (f *fakeRooms) RoomCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms
}

func (f *fakeRooms) DocumentCount() int { return f.RoomCount() }

func (f *fakeRooms) set(closed, count int, exists bool, rooms int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed, f.count, f.exists, f.rooms = closed, count, exists, rooms
}

func (f *fakeRooms) sessionKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKey
}

func (f *fakeRooms) calls() []closeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]closeCall(nil), f.closes...)
}

type fakeFanout struct{ up atomic.Bool }

func (f *fakeFanout) Connected() bool { return f.up.Load() }

type fixture struct {
	relay, docs *fakeRooms
	handler     *Handler
	wsHits      atomic.Int32
	server      *httptest.Server
}

func newFixture(t *testing.T, cfg HandlerConfig, opts ...func(*Handler)) *fixture {
	t.Helper()

	f := &fixture{relay: &fakeRooms{}, docs: &fakeRooms{}}
	f.handler = NewHandler(f.relay, f.docs, nil, cfg)
	for _, opt := range opts {
		opt(f.handler)
	}

	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.wsHits.Add(1)
		w.WriteHeader(http.StatusTeapot)
	})

	mwCfg := DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = []string{"https://docs.example.com"}
	mwCfg.RateLimitDisabled = true

	router := NewRouter(f.handler, ws, NewChiMiddleware(mwCfg), RouterOptions{MetricsEnabled: true})
	f.server = httptest.NewServer(router.SetupChi())
	t.Cleanup(f.server.Close)
	return f
}

func defaultConfig() HandlerConfig {
	return HandlerConfig{
		ServerSecret:   testSecret,
		APIKey:         testAPIKey,
		AllowedOrigins: []string{"https://docs.example.com"},
	}
}

func (f *fixture) do(t *testing.T, method, path string, headers map[string]string, body string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func decodeEnvelope(t *testing.T, data []byte) APIResponse {
	t.Helper()

	var env APIResponse
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("response is not an envelope: %v: %s", err, data)
	}
	return env
}

func expectErrorCode(t *testing.T, resp *http.Response, data []byte, status int, code string) {
	t.Helper()

	if resp.StatusCode != status {
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, status, data)
	}
	env := decodeEnvelope(t, data)
	if env.Success || env.Error == nil || env.Error.Code != code {
		t.Errorf("envelope = %s, want code %s", data, code)
	}
}
