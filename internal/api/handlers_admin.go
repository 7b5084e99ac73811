// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package api

import (
	"net/http"

	"github.com/suitenumerique/docs-sub001/internal/logging"
	"github.com/suitenumerique/docs-sub001/internal/validation"
)

// ResetConnectionsQuery is the query of POST /collaboration/api/reset-connections/.
type ResetConnectionsQuery struct {
	Room string `query:"room" validate:"required,uuid4"`
	// UserID comes from the X-User-Id header.
	UserID string `query:"X-User-Id" validate:"omitempty,max=256"`
}

// ConnectionsQuery is the query of GET /collaboration/api/get-connections/.
type ConnectionsQuery struct {
	Room       string `query:"room" validate:"required,uuid4"`
	SessionKey string `query:"sessionKey" validate:"omitempty,max=256"`
}

// ResetResponse is the reset-connections body.
type ResetResponse struct {
	Message string `json:"message"`
	Closed  int    `json:"closed"`
}

// ConnectionsResponse is the get-connections body.
type ConnectionsResponse struct {
	Count  int  `json:"count"`
	Exists bool `json:"exists"`
}

// RequireServerSecret refuses requests whose Authorization header is not
// the server secret.
func (h *Handler) RequireServerSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.ServerSecret == "" {
			logging.Ctx(r.Context()).Error().Err(ErrSecretNotConfigured).Str("path", r.URL.Path).Msg("admin route refused")
			NewResponseWriter(w, r).Forbidden("Forbidden: invalid API key")
			return
		}
		if !secretMatches(r.Header.Get("Authorization"), h.cfg.ServerSecret) {
			h.security.LogSharedSecretFailure(r.URL.Path, r.RemoteAddr, r.UserAgent())
			NewResponseWriter(w, r).Forbidden("Forbidden: invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ResetConnections closes the connections of a room in both strategies,
// or only those of the user named by X-User-Id.
func (h *Handler) ResetConnections(w http.ResponseWriter, r *http.Request) {
	q := ResetConnectionsQuery{
		Room:   r.URL.Query().Get("room"),
		UserID: r.Header.Get("X-User-Id"),
	}
	if verr := validation.ValidateStruct(&q); verr != nil {
		apiErr := verr.ToAPIError()
		NewResponseWriter(w, r).ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	closed := h.relay.CloseConnections(q.Room, q.UserID) + h.docs.CloseConnections(q.Room, q.UserID)

	logging.Ctx(r.Context()).Info().
		Str("room", q.Room).
		Str("user_id", logging.SanitizeUserID(q.UserID)).
		Int("closed", closed).
		Msg("connections reset")

	writeJSON(w, http.StatusOK, ResetResponse{Message: "Connections reset", Closed: closed})
}

// GetConnections reports the connections of a room across both strategies.
func (h *Handler) GetConnections(w http.ResponseWriter, r *http.Request) {
	q := ConnectionsQuery{
		Room:       r.URL.Query().Get("room"),
		SessionKey: r.URL.Query().Get("sessionKey"),
	}
	if verr := validation.ValidateStruct(&q); verr != nil {
		apiErr := verr.ToAPIError()
		NewResponseWriter(w, r).ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	relayCount, relayExists := h.relay.ConnectionInfo(q.Room, q.SessionKey)
	docCount, docExists := h.docs.ConnectionInfo(q.Room, q.SessionKey)

	writeJSON(w, http.StatusOK, ConnectionsResponse{
		Count:  relayCount + docCount,
		Exists: relayExists || docExists,
	})
}
