// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package collab

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/suitenumerique/docs-sub001/internal/access"
	"github.com/suitenumerique/docs-sub001/internal/crdt"
	"github.com/suitenumerique/docs-sub001/internal/gateway"
	"github.com/suitenumerique/docs-sub001/internal/metrics"
	"github.com/suitenumerique/docs-sub001/internal/websocket"
)

// ReasonPermissionDenied is the only reason a refused peer ever sees.
const ReasonPermissionDenied = "permission-denied"

type connState int

const (
	statePending connState = iota
	stateAuthenticated
	stateDenied
)

var errClosed = errors.New("connection closed")

// connection is one socket speaking the sync protocol. handle runs on the
// socket's read goroutine, so state, pending and doc need no lock; userID,
// sessionKey and readOnly are written before the connection joins a
// document and only read afterwards.
type connection struct {
	srv    *Server
	client *websocket.Client

	roomID     string
	header     http.Header
	userAgent  string
	url        string
	remoteAddr string
	sessionKey string
	userID     string

	state    connState
	pending  [][]byte
	doc      *document
	readOnly bool
}

func (c *connection) handle(p []byte) {
	f, err := decodeFrame(p)
	if err != nil {
		c.srv.log.Debug().Err(err).Uint64("client_id", c.client.ID()).Msg("malformed frame dropped")
		return
	}

	switch c.state {
	case stateDenied:
		return
	case statePending:
		if f.typ != MessageAuth {
			c.enqueue(p)
			return
		}
		c.authenticate(f)
		return
	}

	if f.doc != c.roomID {
		c.srv.security.LogRoomMismatch(c.roomID, f.doc, c.userAgent, c.url, c.remoteAddr)
		c.deny(f.doc, "room_mismatch")
		return
	}
	if err := c.dispatch(f); err != nil {
		c.srv.log.Debug().Err(err).Str("room", c.roomID).Str("type", f.typ.String()).Msg("message dropped")
	}
}

func (c *connection) enqueue(p []byte) {
	if len(c.pending) >= maxPending {
		c.srv.log.Warn().Str("room", c.roomID).Uint64("client_id", c.client.ID()).Msg("too many messages before authentication")
		c.state = stateDenied
		c.client.CloseWith(websocket.ClosePolicyViolation, gateway.ReasonUnauthorized)
		return
	}
	c.pending = append(c.pending, p)
}

// authenticate re-validates the connection. Each failed check denies it with
// the same client-facing reason.
func (c *connection) authenticate(f *frame) {
	sub, err := f.dec.ReadVarUint()
	if err != nil || sub != authToken {
		c.deny(f.doc, "malformed_auth")
		return
	}

	if f.doc != c.roomID {
		c.srv.security.LogRoomMismatch(c.roomID, f.doc, c.userAgent, c.url, c.remoteAddr)
		c.deny(f.doc, "room_mismatch")
		return
	}
	if !gateway.ValidRoomID(f.doc) {
		c.deny(f.doc, "invalid_room")
		return
	}

	ctx := c.client.Context()
	doc, err := c.srv.client.FetchDocument(ctx, f.doc, c.header)
	if err != nil {
		c.srv.log.Warn().Err(err).Str("room", f.doc).Msg("document abilities unavailable, denying connection")
		c.deny(f.doc, "backend_error")
		return
	}
	if doc == nil || !doc.Abilities.Retrieve {
		c.deny(f.doc, "forbidden")
		return
	}

	c.readOnly = !doc.Abilities.Update
	if id, ok := access.IdentifyUser(ctx, c.srv.client, c.header); ok {
		c.userID = id
	}

	session, created := c.srv.join(f.doc, c)
	c.doc = session
	c.state = stateAuthenticated

	scope := ScopeReadWrite
	if c.readOnly {
		scope = ScopeReadOnly
	}
	c.client.Send(EncodeAuthenticated(f.doc, scope))
	c.client.Send(EncodeSyncStep1(f.doc, emptyStateVector))
	if states := c.doc.awarenessStates(); len(states) > 0 {
		c.client.Send(EncodeAwareness(f.doc, crdt.EncodeAwareness(states)))
	}
	if created {
		c.srv.requestState(f.doc)
	}

	c.srv.log.Info().
		Str("room", f.doc).
		Bool("can_edit", !c.readOnly).
		Bool("identified", c.userID != "").
		Uint64("client_id", c.client.ID()).
		Msg("document connection authenticated")

	pending := c.pending
	c.pending = nil
	for _, p := range pending {
		c.handle(p)
		if c.state != stateAuthenticated {
			return
		}
	}
}

func (c *connection) deny(doc, reason string) {
	c.state = stateDenied
	c.pending = nil
	metrics.CRDTAuthDenied.WithLabelValues(reason).Inc()
	c.srv.log.Warn().Str("room", c.roomID).Str("reason", reason).Uint64("client_id", c.client.ID()).Msg("document connection denied")

	c.client.Send(EncodePermissionDenied(doc, ReasonPermissionDenied))
	c.client.CloseWith(websocket.ClosePermissionDenied, ReasonPermissionDenied)
}

func (c *connection) dispatch(f *frame) error {
	switch f.typ {
	case MessageSync:
		return c.handleSync(f)
	case MessageAwareness:
		return c.handleAwareness(f)
	case MessageQueryAwareness:
		if states := c.doc.awarenessStates(); len(states) > 0 {
			c.client.Send(EncodeAwareness(c.doc.name, crdt.EncodeAwareness(states)))
		}
		return nil
	case MessageAuth:
		// Already authenticated.
		return nil
	case MessageStateless:
		payload, err := f.dec.ReadVarString()
		if err != nil {
			return err
		}
		c.srv.log.Debug().Str("room", c.roomID).Int("bytes", len(payload)).Msg("stateless message received")
		return nil
	case MessageBroadcastStateless:
		payload, err := f.dec.ReadVarString()
		if err != nil {
			return err
		}
		c.doc.hub.Broadcast(EncodeStateless(c.doc.name, payload), nil)
		c.srv.publish(c.doc.name, fanoutStateless, []byte(payload))
		return nil
	case MessageClose:
		c.client.Close()
		return nil
	default:
		return fmt.Errorf("unsupported message type %s", f.typ)
	}
}

func (c *connection) handleSync(f *frame) error {
	sub, err := f.dec.ReadVarUint()
	if err != nil {
		return err
	}
	data, err := f.dec.ReadVarUint8Array()
	if err != nil {
		return err
	}

	switch sub {
	case syncStep1:
		// Without a state vector comparison the peer gets every update; it
		// ignores what it already has.
		for _, u := range c.doc.snapshot() {
			if !c.client.SendWait(EncodeUpdate(c.doc.name, u)) {
				return errClosed
			}
		}
		c.client.Send(EncodeSyncStep2(c.doc.name, emptyUpdate))
		return nil
	case syncStep2, syncUpdate:
		c.applyUpdate(data)
		return nil
	default:
		return fmt.Errorf("unsupported sync message %d", sub)
	}
}

func (c *connection) applyUpdate(update []byte) {
	d := c.doc
	if c.readOnly {
		metrics.CRDTReadOnlyRejected.Inc()
		c.client.Send(EncodeSyncStatus(d.name, d.contains(update)))
		return
	}

	switch d.applyUpdate(update) {
	case updateApplied:
		metrics.CRDTUpdates.Inc()
		d.hub.Broadcast(EncodeUpdate(d.name, update), c.client)
		c.srv.publish(d.name, fanoutUpdate, update)
	case updateOverflow:
		// The peer resends this edit with its state after reconnecting.
		c.srv.resetDocument(d, resetLocal)
		return
	}
	c.client.Send(EncodeSyncStatus(d.name, true))
}

func (c *connection) handleAwareness(f *frame) error {
	data, err := f.dec.ReadVarUint8Array()
	if err != nil {
		return err
	}
	entries, err := crdt.DecodeAwareness(data)
	if err != nil {
		return err
	}
	accepted := c.doc.applyAwareness(c, entries)
	if len(accepted) == 0 {
		return nil
	}
	if len(accepted) != len(entries) {
		data = crdt.EncodeAwareness(accepted)
	}
	c.doc.hub.Broadcast(EncodeAwareness(c.doc.name, data), c.client)
	c.srv.publish(c.doc.name, fanoutAwareness, data)
	return nil
}

func (c *connection) closed() {
	if c.doc != nil {
		c.srv.leave(c.doc, c)
	}
}
