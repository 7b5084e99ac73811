// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package api

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/suitenumerique/docs-sub001/internal/convert"
	"github.com/suitenumerique/docs-sub001/internal/logging"
)

// RoomAdmin is the admin surface of a synchronization strategy.
type RoomAdmin interface {
	CloseConnections(room, userID string) int
	ConnectionInfo(room, sessionKey string) (count int, exists bool)
}

// RelayRooms is implemented by *relay.Registry.
type RelayRooms interface {
	RoomAdmin
	RoomCount() int
}

// DocumentRooms is implemented by *collab.Server.
type DocumentRooms interface {
	RoomAdmin
	DocumentCount() int
}

// FanoutStatus is implemented by *fanout.Bridge.
type FanoutStatus interface {
	Connected() bool
}

// HandlerConfig holds the secrets and limits of the HTTP handlers.
type HandlerConfig struct {
	// ServerSecret guards the admin routes. Empty refuses every request.
	ServerSecret string
	// APIKey guards the conversion route. Empty refuses every request.
	APIKey string
	// AllowedOrigins are the origins the conversion route accepts when an
	// Origin header is present; "*" accepts any.
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Handler contains dependencies for API handlers.
//
//   - handlers_admin.go: reset and inspect connections
//   - handlers_convert.go: format conversion
//   - handlers_health.go: probes
type Handler struct {
	relay     RelayRooms
	docs      DocumentRooms
	fanout    FanoutStatus
	converter *convert.Converter
	security  *logging.SecurityLogger
	cfg       HandlerConfig
	startTime time.Time
}

// NewHandler creates a Handler over both synchronization strategies.
func NewHandler(relay RelayRooms, docs DocumentRooms, converter *convert.Converter, cfg HandlerConfig) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = convert.MaxBodySize
	}
	if converter == nil {
		converter = convert.New()
	}
	return &Handler{
		relay:     relay,
		docs:      docs,
		converter: converter,
		security:  logging.NewSecurityLogger(),
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// SetFanout makes readiness depend on the fanout connection.
func (h *Handler) SetFanout(f FanoutStatus) {
	h.fanout = f
}

// secretMatches compares in constant time. An empty expected secret never
// matches.
func secretMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// bearerOrRaw accepts "Bearer <key>" as well as the bare key.
func bearerOrRaw(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(header)
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
