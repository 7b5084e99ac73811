// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package websocket

import (
	"context"
	"sort"
	"sync"
)

// ShutdownReason identifies why a component owning hubs is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path (SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// GetShutdownReason determines the shutdown reason from the context error.
func GetShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// Hub is a set of clients sharing one room.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Add inserts c.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Remove deletes c and reports whether it was present.
func (h *Hub) Remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	return true
}

// Has reports whether c is a member.
func (h *Hub) Has(c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[c]
	return ok
}

// Len returns the number of members.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Clients returns the members ordered by ID.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// Broadcast queues p on every member except `except` (may be nil) and
// returns the number of clients that accepted it. Slow consumers are closed
// by Send and leave through their own close path.
func (h *Hub) Broadcast(p []byte, except *Client) int {
	sent := 0
	for _, c := range h.Clients() {
		if c == except {
			continue
		}
		if c.Send(p) {
			sent++
		}
	}
	return sent
}

// CloseAll closes every member with code and reason.
func (h *Hub) CloseAll(code int, reason string) int {
	clients := h.Clients()
	for _, c := range clients {
		c.CloseWith(code, reason)
	}
	return len(clients)
}
