// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

/*
Package api provides the HTTP surface of the gateway.

Routes:

  - GET  /collaboration/ws/?room=<uuid>: websocket entry point (gateway.Dispatcher)
  - POST /collaboration/api/reset-connections/?room=<uuid>: close the
    connections of a room, optionally only those of the X-User-Id header
  - GET  /collaboration/api/get-connections/?room=<uuid>&sessionKey=<key>:
    connection count of a room and whether sessionKey is among them
  - POST /api/convert: format conversion
  - GET  /health/live, /health/ready: probes
  - GET  /metrics: Prometheus exposition

The admin routes compare the Authorization header with the server secret;
the conversion route accepts the API key either raw or as a bearer token and
refuses foreign origins. Both are rate limited with httprate. The websocket
route is not: its sockets are long-lived and the upgrader checks origins.

Error responses use the APIResponse envelope. The admin success bodies are
the bare objects the document backend expects ({"message": ...} and
{"count": ..., "exists": ...}).
*/
package api
