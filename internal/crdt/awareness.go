// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package crdt

import "fmt"

// AwarenessNull is the state a client announces when it goes away.
const AwarenessNull = "null"

// AwarenessEntry is one client's presence record: cursor, user name and
// color serialized as JSON by the editor.
type AwarenessEntry struct {
	ClientID uint64
	Clock    uint64
	State    string
}

// Removed reports whether the entry announces the client's departure.
func (e AwarenessEntry) Removed() bool {
	return e.State == AwarenessNull
}

// EncodeAwareness encodes an awareness update payload.
func EncodeAwareness(entries []AwarenessEntry) []byte {
	enc := NewEncoder(16 * (len(entries) + 1))
	enc.WriteVarUint(uint64(len(entries)))
	for _, e := range entries {
		enc.WriteVarUint(e.ClientID)
		enc.WriteVarUint(e.Clock)
		enc.WriteVarString(e.State)
	}
	return enc.Bytes()
}

// DecodeAwareness decodes an awareness update payload.
func DecodeAwareness(p []byte) ([]AwarenessEntry, error) {
	dec := NewDecoder(p)
	n, err := dec.ReadCount(3)
	if err != nil {
		return nil, fmt.Errorf("awareness count: %w", err)
	}
	entries := make([]AwarenessEntry, 0, n)
	for i := 0; i < n; i++ {
		var e AwarenessEntry
		if e.ClientID, err = dec.ReadVarUint(); err != nil {
			return nil, fmt.Errorf("awareness client id: %w", err)
		}
		if e.Clock, err = dec.ReadVarUint(); err != nil {
			return nil, fmt.Errorf("awareness clock: %w", err)
		}
		if e.State, err = dec.ReadVarString(); err != nil {
			return nil, fmt.Errorf("awareness state: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
