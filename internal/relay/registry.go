// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

// Package relay forwards opaque frames between the peers of an encrypted
// document. The server never interprets, stores or merges payloads: it only
// knows which sockets share a room.
package relay

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/suitenumerique/docs-sub001/internal/fanout"
	"github.com/suitenumerique/docs-sub001/internal/logging"
	"github.com/suitenumerique/docs-sub001/internal/metrics"
	"github.com/suitenumerique/docs-sub001/internal/websocket"
)

// DefaultSentinel is the key-rotation control payload clients send while a
// document is being re-encrypted.
const DefaultSentinel = "decryption-in-progress"

// PeerInfo is what the gateway knows about a relay peer.
type PeerInfo struct {
	UserID     string
	SessionKey string
}

// ControlHook receives control payloads that are recognized and not relayed.
type ControlHook func(room string, from *websocket.Client, payload []byte)

// Config configures a Registry.
type Config struct {
	Socket websocket.Config
	// Sentinel is matched byte for byte against every inbound frame.
	Sentinel string
	// ControlHook defaults to a debug log line.
	ControlHook ControlHook
	// Bus, when set, extends rooms across replicas.
	Bus fanout.Bus
}

type room struct {
	id          string
	hub         *websocket.Hub
	peers       map[*websocket.Client]PeerInfo
	unsubscribe func()
}

// Registry owns the relay rooms of one gateway process.
//
// Invariant: the room map and every room's membership change only under mu,
// so two first joiners of the same room always end up in the same room and a
// leaving peer never deletes a room someone just joined.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*room
	cfg      Config
	sentinel []byte
	log      zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Sentinel == "" {
		cfg.Sentinel = DefaultSentinel
	}
	if cfg.Socket.Path == "" {
		cfg.Socket.Path = "relay"
	}
	r := &Registry{
		rooms:    make(map[string]*room),
		cfg:      cfg,
		sentinel: []byte(cfg.Sentinel),
		log:      logging.WithComponent("relay"),
	}
	if r.cfg.ControlHook == nil {
		r.cfg.ControlHook = r.logControl
	}
	return r
}

// Join adds conn to roomID and starts relaying its frames. The returned
// client is already running.
func (r *Registry) Join(roomID string, conn *websocket.Conn, info PeerInfo) *websocket.Client {
	c := websocket.NewClient(conn, r.cfg.Socket)
	rm := r.add(roomID, c, info)

	c.Start(
		func(from *websocket.Client, payload []byte) { r.relay(rm, from, payload) },
		func(gone *websocket.Client) { r.leave(rm, gone) },
	)
	return c
}

// add is the create-or-get critical section.
func (r *Registry) add(roomID string, c *websocket.Client, info PeerInfo) *room {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{
			id:    roomID,
			hub:   websocket.NewHub(),
			peers: make(map[*websocket.Client]PeerInfo),
		}
		r.subscribe(rm)
		r.rooms[roomID] = rm
		metrics.RelayRooms.Inc()
		r.log.Debug().Str("room", roomID).Msg("relay room created")
	}
	rm.hub.Add(c)
	rm.peers[c] = info
	metrics.RelayPeers.Inc()

	r.log.Info().Str("room", roomID).Uint64("client_id", c.ID()).Int("peers", rm.hub.Len()).Msg("relay peer joined")
	return rm
}

func (r *Registry) subscribe(rm *room) {
	if r.cfg.Bus == nil {
		return
	}
	unsub, err := r.cfg.Bus.Subscribe(fanout.KindRelay, rm.id, func(payload []byte) {
		rm.hub.Broadcast(payload, nil)
	})
	if err != nil {
		r.log.Warn().Err(err).Str("room", rm.id).Msg("relay room not shared with other replicas")
		return
	}
	rm.unsubscribe = unsub
}

func (r *Registry) relay(rm *room, from *websocket.Client, payload []byte) {
	if bytes.Equal(payload, r.sentinel) {
		metrics.RelayControlMessages.Inc()
		r.cfg.ControlHook(rm.id, from, payload)
		return
	}

	rm.hub.Broadcast(payload, from)
	metrics.RecordRelayMessage(len(payload))

	if r.cfg.Bus != nil {
		if err := r.cfg.Bus.Publish(fanout.KindRelay, rm.id, payload); err != nil {
			r.log.Debug().Err(err).Str("room", rm.id).Msg("relay fanout publish failed")
		}
	}
}

// Relay forwards payload from a member of roomID to the other members. It
// returns false when the room does not exist.
func (r *Registry) Relay(roomID string, from *websocket.Client, payload []byte) bool {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.relay(rm, from, payload)
	return true
}

func (r *Registry) leave(rm *room, c *websocket.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !rm.hub.Remove(c) {
		return
	}
	delete(rm.peers, c)
	metrics.RelayPeers.Dec()

	remaining := rm.hub.Len()
	r.log.Info().Str("room", rm.id).Uint64("client_id", c.ID()).Int("close_code", c.CloseCode()).Int("peers", remaining).Msg("relay peer left")

	if remaining == 0 && r.rooms[rm.id] == rm {
		delete(r.rooms, rm.id)
		if rm.unsubscribe != nil {
			rm.unsubscribe()
		}
		metrics.RelayRooms.Dec()
		r.log.Debug().Str("room", rm.id).Msg("relay room removed")
	}
}

func (r *Registry) logControl(room string, from *websocket.Client, payload []byte) {
	r.log.Debug().Str("room", room).Uint64("client_id", from.ID()).Int("bytes", len(payload)).Msg("relay control message swallowed")
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// PeerCount returns the number of peers in roomID.
func (r *Registry) PeerCount(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[roomID]; ok {
		return rm.hub.Len()
	}
	return 0
}

// Rooms returns the live room ids, sorted.
func (r *Registry) Rooms() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// CloseConnections closes the peers of roomID, or only those of userID when
// it is not empty, and returns how many were closed.
func (r *Registry) CloseConnections(roomID, userID string) int {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	var targets []*websocket.Client
	if ok {
		for c, info := range rm.peers {
			if userID == "" || info.UserID == userID {
				targets = append(targets, c)
			}
		}
	}
	r.mu.Unlock()

	for _, c := range targets {
		c.CloseWith(websocket.CloseNormal, "connection-reset")
	}
	return len(targets)
}

// ConnectionInfo reports the number of peers in roomID and whether one of
// them carries sessionKey.
func (r *Registry) ConnectionInfo(roomID, sessionKey string) (count int, exists bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return 0, false
	}
	for _, info := range rm.peers {
		if sessionKey != "" && info.SessionKey == sessionKey {
			exists = true
		}
	}
	return len(rm.peers), exists
}

// RunWithContext blocks until ctx is done and then closes every peer with
// 1001 so clients reconnect to another replica.
func (r *Registry) RunWithContext(ctx context.Context) error {
	<-ctx.Done()

	r.mu.Lock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.Unlock()

	closed := 0
	for _, rm := range rooms {
		closed += rm.hub.CloseAll(websocket.CloseGoingAway, "server-shutdown")
	}

	r.log.Info().
		Str("reason", string(websocket.GetShutdownReason(ctx))).
		Int("rooms", len(rooms)).
		Int("peers_closed", closed).
		Msg("relay registry stopped")
	return ctx.Err()
}
