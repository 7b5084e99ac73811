// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/suitenumerique/docs-sub001/internal/middleware"
)

// RouterOptions configures the routes that are optional.
type RouterOptions struct {
	MetricsEnabled bool
	MetricsPath    string
}

// Router wires the gateway routes.
type Router struct {
	handler       *Handler
	websocket     http.Handler
	chiMiddleware *ChiMiddleware
	opts          RouterOptions
}

// NewRouter creates a Router. websocket serves /collaboration/ws/.
func NewRouter(handler *Handler, websocket http.Handler, mw *ChiMiddleware, opts RouterOptions) *Router {
	if mw == nil {
		mw = NewChiMiddleware(DefaultChiMiddlewareConfig())
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	return &Router{handler: handler, websocket: websocket, chiMiddleware: mw, opts: opts}
}

// chiMiddleware adapts http.HandlerFunc middleware to Chi's func(http.Handler) http.Handler.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// SetupChi builds the handler tree. Trailing slashes are stripped before
// routing so "/collaboration/ws" and "/collaboration/ws/" are the same route.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.StripSlashes)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is answered everywhere

	r.Route("/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	if router.opts.MetricsEnabled {
		r.Handle(router.opts.MetricsPath, promhttp.Handler())
	}

	// No rate limit on the upgrade: the gate already costs a backend round
	// trip and per-connection message limits apply once upgraded.
	r.With(chiMiddleware(middleware.PrometheusMetrics)).Get("/collaboration/ws", router.websocket.ServeHTTP)

	r.Route("/collaboration/api", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(router.handler.RequireServerSecret)
		r.Post("/reset-connections", router.handler.ResetConnections)
		r.Get("/get-connections", router.handler.GetConnections)
	})

	r.With(
		router.chiMiddleware.RateLimitConvert(),
		APISecurityHeaders(),
		chiMiddleware(middleware.PrometheusMetrics),
		chiMiddleware(middleware.Compression),
		router.handler.RequireAPIKey,
	).Post("/api/convert", router.handler.Convert)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	return r
}
