// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package collab

import (
	"bytes"
	"crypto/sha256"
	"sort"
	"sync"

	"github.com/suitenumerique/docs-sub001/internal/crdt"
	"github.com/suitenumerique/docs-sub001/internal/websocket"
)

// document is the in-memory session of one plaintext document: the updates
// merged so far, the presence states, and the authenticated connections.
//
// Updates are kept as opaque encoded CRDT updates. Applying an update twice
// is a no-op for the editor, so the log is a union: byte-identical updates
// are stored once and replayed to late joiners in arrival order. The log is
// bounded by maxUpdates and maxBytes; the first update is always accepted so
// a single large state can be loaded.
type document struct {
	name string
	hub  *websocket.Hub

	maxUpdates int
	maxBytes   int64

	mu        sync.Mutex
	updates   [][]byte
	logBytes  int64
	seen      map[[sha256.Size]byte]struct{}
	awareness map[uint64]crdt.AwarenessEntry
	// owners maps an awareness client id to the connection that announced it.
	owners map[uint64]*connection
	conns  map[*connection]struct{}

	unsubscribe func()
}

func newDocument(name string, maxUpdates int, maxBytes int64) *document {
	return &document{
		name:       name,
		hub:        websocket.NewHub(),
		maxUpdates: maxUpdates,
		maxBytes:   maxBytes,
		seen:       make(map[[sha256.Size]byte]struct{}),
		awareness:  make(map[uint64]crdt.AwarenessEntry),
		owners:     make(map[uint64]*connection),
		conns:      make(map[*connection]struct{}),
	}
}

func isEmptyUpdate(update []byte) bool {
	return len(update) == 0 || bytes.Equal(update, emptyUpdate)
}

type updateResult int

const (
	updateDuplicate updateResult = iota
	updateApplied
	// updateOverflow means the update was not stored because the log is full.
	updateOverflow
)

// applyUpdate merges update into the log.
func (d *document) applyUpdate(update []byte) updateResult {
	if isEmptyUpdate(update) {
		return updateDuplicate
	}
	key := sha256.Sum256(update)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return updateDuplicate
	}
	if len(d.updates) > 0 &&
		(len(d.updates) >= d.maxUpdates || d.logBytes+int64(len(update)) > d.maxBytes) {
		return updateOverflow
	}
	d.seen[key] = struct{}{}
	d.updates = append(d.updates, bytes.Clone(update))
	d.logBytes += int64(len(update))
	return updateApplied
}

// contains reports whether applying update would change nothing.
func (d *document) contains(update []byte) bool {
	if isEmptyUpdate(update) {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[sha256.Sum256(update)]
	return ok
}

func (d *document) snapshot() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.updates...)
}

func (d *document) updateCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.updates)
}

// applyAwareness stores entries announced by owner (nil for another
// replica) and returns the ones it accepted. Entries older than the stored
// clock are ignored, and so are entries for a client id announced by a
// different local connection.
func (d *document) applyAwareness(owner *connection, entries []crdt.AwarenessEntry) []crdt.AwarenessEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	accepted := make([]crdt.AwarenessEntry, 0, len(entries))
	for _, e := range entries {
		if cur, ok := d.owners[e.ClientID]; ok && cur != owner {
			continue
		}
		if cur, ok := d.awareness[e.ClientID]; ok && cur.Clock > e.Clock {
			continue
		}
		accepted = append(accepted, e)
		if e.Removed() {
			delete(d.awareness, e.ClientID)
			delete(d.owners, e.ClientID)
			continue
		}
		d.awareness[e.ClientID] = e
		if owner != nil {
			d.owners[e.ClientID] = owner
		}
	}
	return accepted
}

// removeOwner forgets the states announced by c and returns the removal
// entries to broadcast.
func (d *document) removeOwner(c *connection) []crdt.AwarenessEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	var removed []crdt.AwarenessEntry
	for id, owner := range d.owners {
		if owner != c {
			continue
		}
		cur := d.awareness[id]
		removed = append(removed, crdt.AwarenessEntry{ClientID: id, Clock: cur.Clock + 1, State: crdt.AwarenessNull})
		delete(d.awareness, id)
		delete(d.owners, id)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ClientID < removed[j].ClientID })
	return removed
}

// awarenessStates returns the live states ordered by client id.
func (d *document) awarenessStates() []crdt.AwarenessEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	states := make([]crdt.AwarenessEntry, 0, len(d.awareness))
	for _, e := range d.awareness {
		states = append(states, e)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ClientID < states[j].ClientID })
	return states
}

func (d *document) connections() []*connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*connection, 0, len(d.conns))
	for c := range d.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].client.ID() < out[j].client.ID() })
	return out
}
