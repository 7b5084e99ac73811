// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

/*
Package websocket holds the socket plumbing shared by both synchronization
strategies: the relay for encrypted documents and the CRDT server for
plaintext ones.

Key Components:

  - Client: one accepted connection with a read goroutine, a single writer
    goroutine fed by a bounded send queue, and a heartbeat
  - Hub: a set of clients (a relay room, or the peers of one CRDT document)
    with ordered broadcast
  - NewUpgrader: gorilla/websocket upgrader with the origin allow-list

Each client has two goroutines:

	readPump:  ReadMessage → limiter → OnMessage
	writePump: send queue → WriteMessage, heartbeat ticks → ping / timeout

Liveness:

Every HeartbeatInterval the writer checks whether the previous ping was
answered. If it was not, the socket is closed; otherwise a new ping is sent
and marked pending. The pong handler clears the pending flag. A peer that
stops answering is therefore dropped after at most two intervals.

Backpressure:

Send never blocks. A client whose queue is full is closed with 1013 so that
one slow reader cannot stall a whole room. Inbound messages may be throttled
with a token bucket (golang.org/x/time/rate); throttling delays reads rather
than dropping frames, so per-sender order is kept.

Close semantics:

CloseWith records the close code and reason, the writer sends the close
frame and tears down the connection. OnClose runs exactly once per client,
after the read loop has stopped.
*/
package websocket
