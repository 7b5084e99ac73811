// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/suitenumerique/docs-sub001/internal/access"
	"github.com/suitenumerique/docs-sub001/internal/logging"
	"github.com/suitenumerique/docs-sub001/internal/websocket"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

const testRoom = "0f9d3c1e-6a1b-4c2d-9e8f-7a6b5c4d3e2f"

// spyClient answers with fixed values and counts calls.
type spyClient struct {
	doc     *access.Document
	docErr  error
	user    *access.User
	userErr error

	docCalls  atomic.Int32
	userCalls atomic.Int32
}

func (s *spyClient) FetchDocument(context.Context, string, http.Header) (*access.Document, error) {
	s.docCalls.Add(1)
	return s.doc, s.docErr
}

func (s *spyClient) FetchCurrentUser(context.Context, http.Header) (*access.User, error) {
	s.userCalls.Add(1)
	if s.user == nil && s.userErr == nil {
		return nil, &access.StatusError{Endpoint: access.EndpointUser, StatusCode: http.StatusUnauthorized}
	}
	return s.user, s.userErr
}

func TestValidRoomID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		want bool
	}{
		{testRoom, true},
		{"0F9D3C1E-6A1B-4C2D-9E8F-7A6B5C4D3E2F", true},
		{"", false},
		{"not-a-uuid", false},
		{"6ba7b810-9dad-11d1-80b4-00c04fd430c8", false}, // version 1
		{"0f9d3c1e-6a1b-4c2d-ce8f-7a6b5c4d3e2f", false}, // reserved variant
		{"0f9d3c1e6a1b4c2d9e8f7a6b5c4d3e2f", false},     // no hyphens
		{"urn:uuid:0f9d3c1e-6a1b-4c2d-9e8f-7a6b5c4d3e2f", false},
		{"{0f9d3c1e-6a1b-4c2d-9e8f-7a6b5c4d3e2f}", false},
	}
	for _, tt := range tests {
		if got := ValidRoomID(tt.id); got != tt.want {
			t.Errorf("ValidRoomID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestAuthorizeRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      string
		client     *spyClient
		wantKind   Kind
		wantCode   int
		wantReason string
		wantDetail string
		wantCalls  int32
	}{
		{
			name:       "missing room",
			query:      "",
			client:     &spyClient{},
			wantKind:   KindProtocol,
			wantCode:   websocket.CloseInvalidPayload,
			wantReason: ReasonMissingRoom,
			wantDetail: "missing_room",
		},
		{
			name:       "invalid room",
			query:      "?room=not-a-uuid",
			client:     &spyClient{},
			wantKind:   KindAuthorization,
			wantCode:   websocket.ClosePolicyViolation,
			wantReason: ReasonUnauthorized,
			wantDetail: "invalid_room",
		},
		{
			name:       "backend refuses",
			query:      "?room=" + testRoom,
			client:     &spyClient{docErr: &access.StatusError{Endpoint: access.EndpointDocument, StatusCode: http.StatusForbidden}},
			wantKind:   KindAuthorization,
			wantCode:   websocket.ClosePolicyViolation,
			wantReason: ReasonUnauthorized,
			wantDetail: "backend_refused",
			wantCalls:  1,
		},
		{
			name:       "backend down",
			query:      "?room=" + testRoom,
			client:     &spyClient{docErr: errors.New("dial tcp: connection refused")},
			wantKind:   KindBackend,
			wantCode:   websocket.ClosePolicyViolation,
			wantReason: ReasonUnauthorized,
			wantDetail: "backend_error",
			wantCalls:  1,
		},
		{
			name:       "backend 500",
			query:      "?room=" + testRoom,
			client:     &spyClient{docErr: &access.StatusError{Endpoint: access.EndpointDocument, StatusCode: http.StatusInternalServerError}},
			wantKind:   KindBackend,
			wantCode:   websocket.ClosePolicyViolation,
			wantReason: ReasonUnauthorized,
			wantDetail: "backend_error",
			wantCalls:  1,
		},
		{
			name:       "no retrieve ability",
			query:      "?room=" + testRoom,
			client:     &spyClient{doc: &access.Document{Abilities: access.Abilities{Update: true}}},
			wantKind:   KindAuthorization,
			wantCode:   websocket.ClosePolicyViolation,
			wantReason: ReasonUnauthorized,
			wantDetail: "no_retrieve",
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gate := NewGate(tt.client, "")
			r := httptest.NewRequest(http.MethodGet, "/collaboration/ws/"+tt.query, http.NoBody)

			cc, err := gate.Authorize(context.Background(), r)
			if cc != nil {
				t.Fatalf("expected rejection, got %+v", cc)
			}
			var rej *RejectError
			if !errors.As(err, &rej) {
				t.Fatalf("error %v is not a *RejectError", err)
			}
			if rej.Kind != tt.wantKind || rej.CloseCode != tt.wantCode || rej.Reason != tt.wantReason || rej.Detail != tt.wantDetail {
				t.Errorf("got %s/%d/%q/%q", rej.Kind, rej.CloseCode, rej.Reason, rej.Detail)
			}
			if got := tt.client.docCalls.Load(); got != tt.wantCalls {
				t.Errorf("FetchDocument called %d times, want %d", got, tt.wantCalls)
			}
			if got := tt.client.userCalls.Load(); got != 0 {
				t.Errorf("FetchCurrentUser called %d times on a rejected request", got)
			}
		})
	}
}

func TestAuthorizeAccepts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		abilities    access.Abilities
		encrypted    bool
		user         *access.User
		wantReadOnly bool
		wantUser     string
	}{
		{"editor", access.Abilities{Retrieve: true, Update: true}, false, &access.User{ID: "u-1"}, false, "u-1"},
		{"reader", access.Abilities{Retrieve: true}, false, &access.User{ID: "u-2"}, true, "u-2"},
		{"anonymous reader", access.Abilities{Retrieve: true}, true, nil, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &spyClient{
				doc:  &access.Document{Abilities: tt.abilities, IsEncrypted: tt.encrypted},
				user: tt.user,
			}
			r := httptest.NewRequest(http.MethodGet, "/collaboration/ws/?room="+testRoom, http.NoBody)
			r.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: "session-1"})

			cc, err := NewGate(client, "").Authorize(context.Background(), r)
			if err != nil {
				t.Fatalf("Authorize() error = %v", err)
			}
			if cc.RoomID != testRoom || cc.ReadOnly != tt.wantReadOnly || cc.IsEncrypted != tt.encrypted {
				t.Errorf("context = %+v", cc)
			}
			if cc.UserID != tt.wantUser || cc.HasUser != (tt.wantUser != "") {
				t.Errorf("user = %q/%v, want %q", cc.UserID, cc.HasUser, tt.wantUser)
			}
			if cc.SessionKey != "session-1" {
				t.Errorf("session key = %q", cc.SessionKey)
			}
			if cc.CanEdit() == cc.ReadOnly {
				t.Error("CanEdit must be the inverse of ReadOnly")
			}
		})
	}
}

func TestAuthorizeForwardsHeaders(t *testing.T) {
	t.Parallel()

	var seen http.Header
	client := &headerClient{seen: func(h http.Header) { seen = h }}
	r := httptest.NewRequest(http.MethodGet, "/collaboration/ws/?room="+testRoom, http.NoBody)
	r.Header.Set("Cookie", "docs_sessionid=abc")

	if _, err := NewGate(client, "").Authorize(context.Background(), r); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if seen.Get("Cookie") != "docs_sessionid=abc" {
		t.Errorf("cookie not forwarded: %v", seen)
	}
}

type headerClient struct {
	seen func(http.Header)
}

func (c *headerClient) FetchDocument(_ context.Context, _ string, h http.Header) (*access.Document, error) {
	c.seen(h)
	return &access.Document{Abilities: access.Abilities{Retrieve: true}}, nil
}

func (c *headerClient) FetchCurrentUser(context.Context, http.Header) (*access.User, error) {
	return nil, errors.New("anonymous")
}

func TestSessionKeyCustomCookie(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.AddCookie(&http.Cookie{Name: "sid", Value: "xyz"})
	if got := SessionKey(r, "sid"); got != "xyz" {
		t.Errorf("SessionKey() = %q", got)
	}
	if got := SessionKey(r, DefaultSessionCookie); got != "" {
		t.Errorf("SessionKey() = %q, want empty", got)
	}
}

func TestRejectErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := error(errBackend(cause))
	if !errors.Is(err, cause) {
		t.Error("RejectError should unwrap to its cause")
	}
	if KindBackend.String() != "backend" || Kind(0).String() != "unknown" {
		t.Error("unexpected Kind strings")
	}
}
