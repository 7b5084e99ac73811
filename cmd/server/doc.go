// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

/*
Command server runs the collaborative editing realtime gateway.

It serves the websocket entry point that admits editors to a document room,
relays end-to-end encrypted traffic between the peers of a room, hosts the
shared CRDT document of plaintext rooms, converts documents between Markdown,
HTML, block JSON and the block snapshot format, and exposes the admin
endpoints the document backend uses to reset or inspect connections.

# Configuration

Settings come from built-in defaults, then an optional YAML file
(CONFIG_PATH, default config.yaml), then environment variables, the last
source winning. The most common variables:

	COLLABORATION_BACKEND_BASE_URL   document service, e.g. http://backend:8000/api/v1.0
	COLLABORATION_SERVER_SECRET      secret expected by the admin endpoints
	Y_PROVIDER_API_KEY               API key of the conversion endpoint
	COLLABORATION_SERVER_ORIGIN      allowed websocket and conversion origins
	NATS_ENABLED, NATS_URL           cross-replica fanout
	LOG_LEVEL, LOG_FORMAT            zerolog level and json or console output

# Shutdown

SIGINT and SIGTERM cancel the supervisor tree. Open sockets are closed with
1001 so that clients reconnect to another replica, and the HTTP server
drains within SHUTDOWN_TIMEOUT.
*/
package main
