// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package collab

import (
	"fmt"

	"github.com/suitenumerique/docs-sub001/internal/crdt"
)

// MessageType is the outer frame type. Every frame is
// varString(documentName) · varUint(type) · payload.
type MessageType uint64

// Message types.
const (
	MessageSync               MessageType = 0
	MessageAwareness          MessageType = 1
	MessageAuth               MessageType = 2
	MessageQueryAwareness     MessageType = 3
	MessageStateless          MessageType = 5
	MessageBroadcastStateless MessageType = 6
	MessageClose              MessageType = 7
	MessageSyncStatus         MessageType = 8
)

func (t MessageType) String() string {
	switch t {
	case MessageSync:
		return "sync"
	case MessageAwareness:
		return "awareness"
	case MessageAuth:
		return "auth"
	case MessageQueryAwareness:
		return "query_awareness"
	case MessageStateless:
		return "stateless"
	case MessageBroadcastStateless:
		return "broadcast_stateless"
	case MessageClose:
		return "close"
	case MessageSyncStatus:
		return "sync_status"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(t))
	}
}

// Sync sub-types.
const (
	syncStep1  = 0
	syncStep2  = 1
	syncUpdate = 2
)

// Auth sub-types.
const (
	authToken            = 0
	authPermissionDenied = 1
	authAuthenticated    = 2
)

// Authentication scopes.
const (
	ScopeReadOnly  = "readonly"
	ScopeReadWrite = "read-write"
)

var (
	// emptyStateVector is an encoded state vector with no clients.
	emptyStateVector = []byte{0}
	// emptyUpdate is an encoded update with no structs and an empty delete set.
	emptyUpdate = []byte{0, 0}
)

// frame is a decoded inbound message; dec is positioned after the type.
type frame struct {
	doc string
	typ MessageType
	dec *crdt.Decoder
}

func decodeFrame(p []byte) (*frame, error) {
	dec := crdt.NewDecoder(p)
	doc, err := dec.ReadVarString()
	if err != nil {
		return nil, fmt.Errorf("document name: %w", err)
	}
	typ, err := dec.ReadVarUint()
	if err != nil {
		return nil, fmt.Errorf("message type: %w", err)
	}
	return &frame{doc: doc, typ: MessageType(typ), dec: dec}, nil
}

func newFrame(doc string, typ MessageType) *crdt.Encoder {
	enc := crdt.NewEncoder(len(doc) + 16)
	enc.WriteVarString(doc)
	enc.WriteVarUint(uint64(typ))
	return enc
}

func encodeSync(doc string, sub uint64, data []byte) []byte {
	enc := newFrame(doc, MessageSync)
	enc.WriteVarUint(sub)
	enc.WriteVarUint8Array(data)
	return enc.Bytes()
}

// EncodeSyncStep1 asks the peer for what is missing from stateVector.
func EncodeSyncStep1(doc string, stateVector []byte) []byte {
	return encodeSync(doc, syncStep1, stateVector)
}

// EncodeSyncStep2 answers a step 1.
func EncodeSyncStep2(doc string, update []byte) []byte {
	return encodeSync(doc, syncStep2, update)
}

// EncodeUpdate carries one incremental document update.
func EncodeUpdate(doc string, update []byte) []byte {
	return encodeSync(doc, syncUpdate, update)
}

// EncodeAwareness carries an encoded awareness update.
func EncodeAwareness(doc string, update []byte) []byte {
	enc := newFrame(doc, MessageAwareness)
	enc.WriteVarUint8Array(update)
	return enc.Bytes()
}

// EncodeAuthToken is what a client sends to authenticate.
func EncodeAuthToken(doc, token string) []byte {
	enc := newFrame(doc, MessageAuth)
	enc.WriteVarUint(authToken)
	enc.WriteVarString(token)
	return enc.Bytes()
}

// EncodeAuthenticated accepts the connection with scope.
func EncodeAuthenticated(doc, scope string) []byte {
	enc := newFrame(doc, MessageAuth)
	enc.WriteVarUint(authAuthenticated)
	enc.WriteVarString(scope)
	return enc.Bytes()
}

// EncodePermissionDenied refuses the connection.
func EncodePermissionDenied(doc, reason string) []byte {
	enc := newFrame(doc, MessageAuth)
	enc.WriteVarUint(authPermissionDenied)
	enc.WriteVarString(reason)
	return enc.Bytes()
}

// EncodeQueryAwareness asks for every known awareness state.
func EncodeQueryAwareness(doc string) []byte {
	return newFrame(doc, MessageQueryAwareness).Bytes()
}

// EncodeSyncStatus acknowledges an update; synced is false when the update
// was not applied.
func EncodeSyncStatus(doc string, synced bool) []byte {
	enc := newFrame(doc, MessageSyncStatus)
	if synced {
		enc.WriteVarUint(1)
	} else {
		enc.WriteVarUint(0)
	}
	return enc.Bytes()
}

// EncodeStateless carries an application payload outside the document.
func EncodeStateless(doc, payload string) []byte {
	enc := newFrame(doc, MessageStateless)
	enc.WriteVarString(payload)
	return enc.Bytes()
}

// EncodeBroadcastStateless asks the server to deliver payload to every
// connection of the document.
func EncodeBroadcastStateless(doc, payload string) []byte {
	enc := newFrame(doc, MessageBroadcastStateless)
	enc.WriteVarString(payload)
	return enc.Bytes()
}
