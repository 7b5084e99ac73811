// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

// Package collab hosts the CRDT documents of plaintext rooms. Peers speak
// the y-protocols framing used by the editor's provider: sync, awareness,
// auth and stateless messages prefixed by the document name.
//
// Every connection authenticates again here, independently of the gateway:
// the document name announced in the protocol must match the room the socket
// was admitted to, must itself be a valid room id, and the backend is asked
// afresh for the document's abilities. A read-only connection receives
// updates and may publish presence, but its edits are never merged.
package collab

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/suitenumerique/docs-sub001/internal/access"
	"github.com/suitenumerique/docs-sub001/internal/crdt"
	"github.com/suitenumerique/docs-sub001/internal/fanout"
	"github.com/suitenumerique/docs-sub001/internal/gateway"
	"github.com/suitenumerique/docs-sub001/internal/logging"
	"github.com/suitenumerique/docs-sub001/internal/metrics"
	"github.com/suitenumerique/docs-sub001/internal/websocket"
)

// maxPending bounds the frames a connection may send before authenticating.
const maxPending = 64

// Default update log limits of one document.
const (
	DefaultMaxUpdates       = 10000
	DefaultMaxBytes   int64 = 64 << 20
)

// stateChunkBytes bounds one state reply on the bus, below the NATS default
// max payload.
const stateChunkBytes = 512 << 10

// ReasonResync closes the peers of a document whose update log was reset.
// They reconnect and push their merged state as a single update.
const ReasonResync = "resync-required"

// Reset origins, used as metrics labels.
const (
	resetLocal  = "local"
	resetRemote = "remote"
)

// Config configures a Server.
type Config struct {
	Socket websocket.Config
	// Bus, when set, shares documents across replicas.
	Bus fanout.Bus
	// MaxUpdates and MaxBytes bound the update log of each document.
	MaxUpdates int
	MaxBytes   int64
}

// Server owns the documents of one gateway process.
type Server struct {
	client   access.Client
	cfg      Config
	security *logging.SecurityLogger
	log      zerolog.Logger

	mu   sync.Mutex
	docs map[string]*document
}

// NewServer creates a Server that re-checks every connection with client.
func NewServer(client access.Client, cfg Config) *Server {
	if cfg.Socket.Path == "" {
		cfg.Socket.Path = "crdt"
	}
	if cfg.MaxUpdates <= 0 {
		cfg.MaxUpdates = DefaultMaxUpdates
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Server{
		client:   client,
		cfg:      cfg,
		security: logging.NewSecurityLogger(),
		log:      logging.WithComponent("collab"),
		docs:     make(map[string]*document),
	}
}

// Accept takes over an upgraded socket admitted by the gateway for cc.RoomID.
// The connection stays unauthenticated until the peer sends an auth message.
func (s *Server) Accept(conn *websocket.Conn, r *http.Request, cc gateway.ConnectionContext) *websocket.Client {
	client := websocket.NewClient(conn, s.cfg.Socket)
	c := &connection{
		srv:        s,
		client:     client,
		roomID:     cc.RoomID,
		header:     r.Header.Clone(),
		userAgent:  r.UserAgent(),
		url:        r.URL.String(),
		remoteAddr: r.RemoteAddr,
		sessionKey: cc.SessionKey,
		userID:     cc.UserID,
		// Until the auth message says otherwise, nothing is writable.
		readOnly: true,
	}
	client.Start(
		func(_ *websocket.Client, p []byte) { c.handle(p) },
		func(*websocket.Client) { c.closed() },
	)
	return client
}

// join adds c to the document named name, creating it if needed. created
// reports whether this replica had no session for the document yet.
func (s *Server) join(name string, c *connection) (d *document, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[name]
	if !ok {
		created = true
		d = newDocument(name, s.cfg.MaxUpdates, s.cfg.MaxBytes)
		s.subscribe(d)
		s.docs[name] = d
		metrics.CRDTDocuments.Inc()
		s.log.Debug().Str("room", name).Msg("document loaded")
	}
	d.hub.Add(c.client)
	d.mu.Lock()
	d.conns[c] = struct{}{}
	d.mu.Unlock()
	metrics.CRDTConnections.Inc()
	return d, created
}

// leave removes c and unloads the document once nobody is left.
func (s *Server) leave(d *document, c *connection) {
	removed := d.removeOwner(c)

	s.mu.Lock()
	if !d.hub.Remove(c.client) {
		s.mu.Unlock()
		return
	}
	d.mu.Lock()
	delete(d.conns, c)
	d.mu.Unlock()
	metrics.CRDTConnections.Dec()

	remaining := d.hub.Len()
	if remaining == 0 && s.docs[d.name] == d {
		delete(s.docs, d.name)
		if d.unsubscribe != nil {
			d.unsubscribe()
		}
		metrics.CRDTDocuments.Dec()
		s.log.Debug().Str("room", d.name).Msg("document unloaded")
	}
	s.mu.Unlock()

	if len(removed) > 0 {
		update := crdt.EncodeAwareness(removed)
		d.hub.Broadcast(EncodeAwareness(d.name, update), nil)
		s.publish(d.name, fanoutAwareness, update)
	}
}

// Fanout payloads are one kind byte followed by the data.
const (
	fanoutUpdate byte = iota
	fanoutAwareness
	fanoutStateless
	// fanoutStateRequest asks replicas holding the document for their log.
	fanoutStateRequest
	// fanoutStateReply carries a count followed by that many updates.
	fanoutStateReply
	// fanoutReset tells replicas the document's log was reset.
	fanoutReset
)

// resetDocument unloads d and closes its peers with 1013 so they reconnect
// and resend their state. A local reset is announced to the other replicas.
func (s *Server) resetDocument(d *document, origin string) {
	s.mu.Lock()
	if s.docs[d.name] != d {
		s.mu.Unlock()
		return
	}
	delete(s.docs, d.name)
	unsubscribe := d.unsubscribe
	metrics.CRDTDocuments.Dec()
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	metrics.CRDTDocumentResets.WithLabelValues(origin).Inc()
	closed := d.hub.CloseAll(websocket.CloseTryAgainLater, ReasonResync)
	s.log.Warn().
		Str("room", d.name).
		Str("origin", origin).
		Int("updates", d.updateCount()).
		Int("connections_closed", closed).
		Msg("document update log reset")

	if origin == resetLocal {
		s.publish(d.name, fanoutReset, nil)
	}
}

// requestState asks the other replicas for the updates they hold for name.
// Replies are merged and broadcast like any remote update.
func (s *Server) requestState(name string) {
	s.publish(name, fanoutStateRequest, nil)
}

// replyState publishes the log of d in chunks.
func (s *Server) replyState(d *document) {
	updates := d.snapshot()
	for len(updates) > 0 {
		n, size := 0, 0
		for n < len(updates) && (n == 0 || size+len(updates[n]) <= stateChunkBytes) {
			size += len(updates[n])
			n++
		}
		enc := crdt.NewEncoder(size + 8*n + 8)
		enc.WriteVarUint(uint64(n))
		for _, u := range updates[:n] {
			enc.WriteVarUint8Array(u)
		}
		s.publish(d.name, fanoutStateReply, enc.Bytes())
		updates = updates[n:]
	}
}

// mergeRemote applies an update received from another replica.
func (s *Server) mergeRemote(d *document, update []byte) bool {
	switch d.applyUpdate(update) {
	case updateApplied:
		metrics.CRDTUpdates.Inc()
		d.hub.Broadcast(EncodeUpdate(d.name, update), nil)
	case updateOverflow:
		s.resetDocument(d, resetLocal)
		return false
	}
	return true
}

func (s *Server) subscribe(d *document) {
	if s.cfg.Bus == nil {
		return
	}
	unsub, err := s.cfg.Bus.Subscribe(fanout.KindCRDT, d.name, func(p []byte) {
		s.applyRemote(d, p)
	})
	if err != nil {
		s.log.Warn().Err(err).Str("room", d.name).Msg("document not shared with other replicas")
		return
	}
	d.unsubscribe = unsub
}

func (s *Server) publish(name string, kind byte, data []byte) {
	if s.cfg.Bus == nil {
		return
	}
	payload := make([]byte, 0, len(data)+1)
	payload = append(payload, kind)
	payload = append(payload, data...)
	if err := s.cfg.Bus.Publish(fanout.KindCRDT, name, payload); err != nil {
		s.log.Debug().Err(err).Str("room", name).Msg("document fanout publish failed")
	}
}

func (s *Server) applyRemote(d *document, p []byte) {
	if len(p) == 0 {
		return
	}
	data := p[1:]
	switch p[0] {
	case fanoutUpdate:
		s.mergeRemote(d, data)
	case fanoutAwareness:
		entries, err := crdt.DecodeAwareness(data)
		if err != nil {
			return
		}
		accepted := d.applyAwareness(nil, entries)
		if len(accepted) == 0 {
			return
		}
		if len(accepted) != len(entries) {
			data = crdt.EncodeAwareness(accepted)
		}
		d.hub.Broadcast(EncodeAwareness(d.name, data), nil)
	case fanoutStateless:
		d.hub.Broadcast(EncodeStateless(d.name, string(data)), nil)
	case fanoutStateRequest:
		s.replyState(d)
	case fanoutStateReply:
		dec := crdt.NewDecoder(data)
		n, err := dec.ReadCount(1)
		if err != nil {
			s.log.Debug().Err(err).Str("room", d.name).Msg("malformed state reply dropped")
			return
		}
		for i := 0; i < n; i++ {
			update, err := dec.ReadVarUint8Array()
			if err != nil {
				s.log.Debug().Err(err).Str("room", d.name).Msg("malformed state reply truncated")
				return
			}
			if !s.mergeRemote(d, update) {
				return
			}
		}
	case fanoutReset:
		s.resetDocument(d, resetRemote)
	}
}

// DocumentCount returns the number of loaded documents.
func (s *Server) DocumentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Documents returns the loaded document names, sorted.
func (s *Server) Documents() []string {
	s.mu.Lock()
	names := make([]string, 0, len(s.docs))
	for name := range s.docs {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names
}

func (s *Server) document(name string) *document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[name]
}

// ConnectionCount returns the authenticated connections of room.
func (s *Server) ConnectionCount(room string) int {
	if d := s.document(room); d != nil {
		return d.hub.Len()
	}
	return 0
}

// CloseConnections closes the connections of room, or only those of userID
// when it is not empty, and returns how many were closed.
func (s *Server) CloseConnections(room, userID string) int {
	d := s.document(room)
	if d == nil {
		return 0
	}
	n := 0
	for _, c := range d.connections() {
		if userID == "" || c.userID == userID {
			c.client.CloseWith(websocket.CloseNormal, "connection-reset")
			n++
		}
	}
	return n
}

// ConnectionInfo reports the number of connections in room and whether one
// of them carries sessionKey.
func (s *Server) ConnectionInfo(room, sessionKey string) (count int, exists bool) {
	d := s.document(room)
	if d == nil {
		return 0, false
	}
	conns := d.connections()
	for _, c := range conns {
		if sessionKey != "" && c.sessionKey == sessionKey {
			exists = true
		}
	}
	return len(conns), exists
}

// RunWithContext blocks until ctx is done and then closes every connection
// with 1001.
func (s *Server) RunWithContext(ctx context.Context) error {
	<-ctx.Done()

	s.mu.Lock()
	docs := make([]*document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	s.mu.Unlock()

	closed := 0
	for _, d := range docs {
		closed += d.hub.CloseAll(websocket.CloseGoingAway, "server-shutdown")
	}

	s.log.Info().
		Str("reason", string(websocket.GetShutdownReason(ctx))).
		Int("documents", len(docs)).
		Int("connections_closed", closed).
		Msg("collaboration server stopped")
	return ctx.Err()
}
