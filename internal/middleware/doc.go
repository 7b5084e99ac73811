// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

/*
Package middleware provides the HTTP middleware shared by the gateway's
API routes.

Key Components:

  - Request ID: X-Request-ID propagation into the logging context
  - Prometheus Metrics: request count, latency and in-flight gauge, labelled
    by chi route pattern
  - Compression: gzip for text and JSON conversion responses

The middleware use the http.HandlerFunc signature; the api package adapts
them to chi's func(http.Handler) http.Handler:

	r.Use(chiMiddleware(middleware.PrometheusMetrics))

The metrics wrapper forwards http.Hijacker, so it may sit in front of the
websocket entry point. Compression must not: it is only installed on the
conversion route.
*/
package middleware
