// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

/*
Package supervisor runs the gateway's long-lived components under a suture
supervisor tree.

	root (collab-gateway)
	├── fanout-layer: embedded NATS server, NATS bridge
	├── rooms-layer:  relay registry, CRDT server
	└── api-layer:    HTTP server

A service that returns is restarted with backoff. Cancelling the context
given to Serve stops every layer; the room services then close their sockets
with 1001 so clients reconnect elsewhere, and the HTTP server drains within
ShutdownTimeout. Supervisor events are logged through sutureslog on top of
the zerolog stream (see logging.NewSlogLogger).
*/
package supervisor
