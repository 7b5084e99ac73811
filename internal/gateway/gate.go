// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/suitenumerique/docs-sub001/internal/access"
	"github.com/suitenumerique/docs-sub001/internal/metrics"
)

// DefaultSessionCookie is the backend's session cookie name.
const DefaultSessionCookie = "docs_sessionid"

// ConnectionContext is computed once per accepted socket and never changes.
type ConnectionContext struct {
	RoomID   string
	ReadOnly bool
	// UserID is empty for anonymous requesters; HasUser tells the two apart
	// from a backend that returned an empty id.
	UserID      string
	HasUser     bool
	SessionKey  string
	IsEncrypted bool
}

// CanEdit is the inverse of ReadOnly, for logs.
func (c *ConnectionContext) CanEdit() bool {
	return !c.ReadOnly
}

// Gate decides whether an upgrade request may join a room.
type Gate struct {
	client     access.Client
	cookieName string
}

// NewGate creates a Gate backed by client.
func NewGate(client access.Client, sessionCookie string) *Gate {
	if sessionCookie == "" {
		sessionCookie = DefaultSessionCookie
	}
	return &Gate{client: client, cookieName: sessionCookie}
}

// Authorize runs the connection checks in order. The returned error is
// always a *RejectError. No step is retried.
func (g *Gate) Authorize(ctx context.Context, r *http.Request) (*ConnectionContext, error) {
	start := time.Now()
	defer func() { metrics.GatewayAuthorizeDuration.Observe(time.Since(start).Seconds()) }()

	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		return nil, errMissingRoom()
	}
	// The shape check runs before any backend call.
	if !ValidRoomID(roomID) {
		return nil, errInvalidRoom()
	}

	doc, err := g.client.FetchDocument(ctx, roomID, r.Header)
	if err != nil {
		var se *access.StatusError
		if errors.As(err, &se) && se.ClientError() {
			return nil, errRefused(err)
		}
		return nil, errBackend(err)
	}
	if doc == nil || !doc.Abilities.Retrieve {
		return nil, errNoRetrieve()
	}

	cc := &ConnectionContext{
		RoomID:      roomID,
		ReadOnly:    !doc.Abilities.Update,
		IsEncrypted: doc.IsEncrypted,
	}
	cc.UserID, cc.HasUser = access.IdentifyUser(ctx, g.client, r.Header)
	cc.SessionKey = SessionKey(r, g.cookieName)
	return cc, nil
}

// SessionKey returns the value of the session cookie, or "".
func SessionKey(r *http.Request, cookieName string) string {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
