// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package api

import (
	"net/http"
	"time"
)

// HealthLive answers as long as the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// ReadyStatus is the readiness body.
type ReadyStatus struct {
	Ready           bool    `json:"ready"`
	RelayRooms      int     `json:"relay_rooms"`
	Documents       int     `json:"documents"`
	FanoutEnabled   bool    `json:"fanout_enabled"`
	FanoutConnected bool    `json:"fanout_connected"`
	Uptime          float64 `json:"uptime"`
}

// HealthReady reports room counts. With fanout enabled the gateway is not
// ready while the NATS connection is down: its rooms would silently split
// from the other replicas.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	status := ReadyStatus{
		Ready:         true,
		RelayRooms:    h.relay.RoomCount(),
		Documents:     h.docs.DocumentCount(),
		FanoutEnabled: h.fanout != nil,
		Uptime:        time.Since(h.startTime).Seconds(),
	}
	if h.fanout != nil {
		status.FanoutConnected = h.fanout.Connected()
		status.Ready = status.FanoutConnected
	}

	if !status.Ready {
		NewResponseWriter(w, r).ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "fanout disconnected", status)
		return
	}
	NewResponseWriter(w, r).Success(status)
}
