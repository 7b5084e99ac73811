// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

// Package metrics holds the Prometheus collectors of the gateway. Collectors
// are package globals registered with the default registry via promauto.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection outcomes reported by the dispatcher.
const (
	OutcomeRelay    = "accepted_relay"
	OutcomeCRDT     = "accepted_crdt"
	OutcomeRejected = "rejected"
)

var (
	// Gateway
	GatewayConnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_gateway_connections_total",
			Help: "Websocket connection attempts by outcome",
		},
		[]string{"outcome"},
	)

	GatewayRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_gateway_rejections_total",
			Help: "Rejected websocket connections by error kind and close reason",
		},
		[]string{"kind", "reason"},
	)

	GatewayAuthorizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collab_gateway_authorize_duration_seconds",
			Help:    "Time spent in the connection gate",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Relay
	RelayRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_relay_rooms",
			Help: "Current number of relay rooms",
		},
	)

	RelayPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_relay_peers",
			Help: "Current number of sockets joined to relay rooms",
		},
	)

	RelayMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_relay_messages_total",
			Help: "Messages received for relaying",
		},
	)

	RelayBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_relay_bytes_total",
			Help: "Payload bytes received for relaying",
		},
	)

	RelayControlMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_relay_control_messages_total",
			Help: "Key-rotation control messages intercepted by the relay",
		},
	)

	// Shared socket plumbing
	HeartbeatTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_heartbeat_timeouts_total",
			Help: "Sockets closed after a missed pong",
		},
		[]string{"path"}, // relay, crdt
	)

	SlowConsumers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_slow_consumers_total",
			Help: "Sockets closed because their send queue overflowed",
		},
		[]string{"path"},
	)

	// CRDT
	CRDTDocuments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_crdt_documents",
			Help: "Current number of loaded CRDT documents",
		},
	)

	CRDTConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_crdt_connections",
			Help: "Current number of authenticated CRDT connections",
		},
	)

	CRDTUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_crdt_updates_total",
			Help: "Document updates merged and broadcast",
		},
	)

	CRDTReadOnlyRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_crdt_readonly_rejected_total",
			Help: "Document updates dropped because the connection is read-only",
		},
	)

	CRDTDocumentResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_crdt_document_resets_total",
			Help: "Documents reset after their update log outgrew its limits, by origin (local or remote)",
		},
		[]string{"origin"},
	)

	CRDTAuthDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_crdt_auth_denied_total",
			Help: "CRDT authentication denials by internal reason",
		},
		[]string{"reason"},
	)

	// Access-control backend
	AccessRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_access_requests_total",
			Help: "Calls to the document access-control backend",
		},
		[]string{"endpoint", "result"}, // result: success, denied, error
	)

	AccessRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collab_access_request_duration_seconds",
			Help:    "Latency of access-control backend calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_api_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collab_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_api_active_requests",
			Help: "HTTP requests currently in flight",
		},
	)

	// Conversion
	Conversions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_conversions_total",
			Help: "Format conversions by input, output and HTTP status",
		},
		[]string{"from", "to", "status"},
	)

	// Fanout
	FanoutMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_fanout_messages_total",
			Help: "Messages exchanged with other replicas",
		},
		[]string{"direction", "kind"}, // direction: published, received, dropped
	)
)

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordAccessRequest records one access-control backend call.
func RecordAccessRequest(endpoint, result string, duration time.Duration) {
	AccessRequests.WithLabelValues(endpoint, result).Inc()
	AccessRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordRejection records a rejected websocket connection.
func RecordRejection(kind, reason string) {
	GatewayConnections.WithLabelValues(OutcomeRejected).Inc()
	GatewayRejections.WithLabelValues(kind, reason).Inc()
}

// RecordRelayMessage records one inbound relay payload.
func RecordRelayMessage(size int) {
	RelayMessages.Inc()
	RelayBytes.Add(float64(size))
}
