// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/suitenumerique/docs-sub001/internal/logging"
)

// Conn is the underlying connection type.
type Conn = websocket.Conn

// NewUpgrader creates a websocket upgrader that only accepts the listed
// origins. "*" accepts any origin, including a missing one.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return CheckOrigin(r, allowedOrigins)
		},
	}
}

// CheckOrigin validates the Origin header against allowed.
func CheckOrigin(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	for _, a := range allowed {
		if a == "*" {
			return true
		}
	}

	// Browsers always send Origin; accepting an empty one would bypass the check.
	if origin == "" {
		logging.Warn().Msg("websocket connection rejected: missing Origin header")
		return false
	}
	for _, a := range allowed {
		if a == origin {
			return true
		}
	}

	logging.Warn().Str("origin", logging.SanitizeForLog(origin, 200)).Msg("websocket connection rejected from unauthorized origin")
	return false
}

// Reject sends a close frame with code and reason on a socket that was never
// handed to a Client, then closes it.
func Reject(conn *Conn, code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	werr := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	if err := conn.Close(); err != nil && werr == nil {
		return err
	}
	return werr
}
