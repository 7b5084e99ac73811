// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/suitenumerique/docs-sub001/internal/logging"
	"github.com/suitenumerique/docs-sub001/internal/metrics"
	"github.com/suitenumerique/docs-sub001/internal/relay"
	"github.com/suitenumerique/docs-sub001/internal/websocket"
)

// DefaultAuthorizeTimeout bounds the gate, both backend calls included.
const DefaultAuthorizeTimeout = 15 * time.Second

// Authorizer runs the connection checks. *Gate implements it.
type Authorizer interface {
	Authorize(ctx context.Context, r *http.Request) (*ConnectionContext, error)
}

// RelayJoiner takes sockets of encrypted documents. *relay.Registry
// implements it.
type RelayJoiner interface {
	Join(roomID string, conn *websocket.Conn, info relay.PeerInfo) *websocket.Client
}

// DocumentHost takes sockets of plaintext documents. The CRDT server
// implements it.
type DocumentHost interface {
	Accept(conn *websocket.Conn, r *http.Request, cc ConnectionContext) *websocket.Client
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// AllowedOrigins is checked during the upgrade; "*" allows any.
	AllowedOrigins   []string
	AuthorizeTimeout time.Duration
}

// Dispatcher is the websocket entry point. It upgrades the request, runs
// the gate once and hands the socket to the relay or the CRDT server
// depending on the document's encryption flag.
type Dispatcher struct {
	gate     Authorizer
	relay    RelayJoiner
	docs     DocumentHost
	upgrader *gorilla.Upgrader
	timeout  time.Duration
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(gate Authorizer, relayJoiner RelayJoiner, docs DocumentHost, cfg DispatcherConfig) *Dispatcher {
	if cfg.AuthorizeTimeout <= 0 {
		cfg.AuthorizeTimeout = DefaultAuthorizeTimeout
	}
	return &Dispatcher{
		gate:     gate,
		relay:    relayJoiner,
		docs:     docs,
		upgrader: websocket.NewUpgrader(cfg.AllowedOrigins),
		timeout:  cfg.AuthorizeTimeout,
	}
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered with an HTTP error.
		metrics.RecordRejection(KindProtocol.String(), "upgrade_failed")
		logging.Ctx(r.Context()).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The socket outlives the handler; request-scoped values are kept but
	// not its cancellation.
	ctx := logging.ContextWithNewCorrelationID(context.WithoutCancel(r.Context()))

	defer func() {
		if p := recover(); p != nil {
			logging.Ctx(ctx).Error().Interface("panic", p).Str("url", logging.SanitizeForLog(r.URL.String(), 300)).Msg("panic while dispatching websocket")
			_ = websocket.Reject(conn, websocket.CloseInternalError, ReasonInternalError)
		}
	}()

	authCtx, cancel := context.WithTimeout(ctx, d.timeout)
	cc, err := d.gate.Authorize(authCtx, r)
	cancel()
	if err != nil {
		d.reject(ctx, conn, r, err)
		return
	}
	d.route(ctx, conn, r, cc)
}

func (d *Dispatcher) route(ctx context.Context, conn *websocket.Conn, r *http.Request, cc *ConnectionContext) {
	var client *websocket.Client
	if cc.IsEncrypted {
		client = d.relay.Join(cc.RoomID, conn, relay.PeerInfo{UserID: cc.UserID, SessionKey: cc.SessionKey})
		metrics.GatewayConnections.WithLabelValues(metrics.OutcomeRelay).Inc()
	} else {
		client = d.docs.Accept(conn, r, *cc)
		metrics.GatewayConnections.WithLabelValues(metrics.OutcomeCRDT).Inc()
	}

	logging.Ctx(ctx).Info().
		Str("room", cc.RoomID).
		Bool("can_edit", cc.CanEdit()).
		Bool("encrypted", cc.IsEncrypted).
		Bool("identified", cc.HasUser).
		Uint64("client_id", client.ID()).
		Msg("connection accepted")
}

func (d *Dispatcher) reject(ctx context.Context, conn *websocket.Conn, r *http.Request, err error) {
	var rej *RejectError
	if !errors.As(err, &rej) {
		rej = errBackend(err)
	}

	log := logging.Ctx(ctx)
	switch rej.Kind {
	case KindProtocol:
		log.Warn().Str("reason", rej.Detail).Msg("connection rejected")
	case KindAuthorization:
		log.Warn().
			Str("room", logging.SanitizeForLog(r.URL.Query().Get("room"), 64)).
			Str("reason", rej.Detail).
			Err(rej.Err).
			Msg("connection rejected")
	case KindBackend:
		log.Error().
			Str("room", logging.SanitizeForLog(r.URL.Query().Get("room"), 64)).
			Str("reason", rej.Detail).
			Err(rej.Err).
			Msg("connection rejected, backend unavailable")
	}

	metrics.RecordRejection(rej.Kind.String(), rej.Detail)
	if err := websocket.Reject(conn, rej.CloseCode, rej.Reason); err != nil {
		log.Debug().Err(err).Msg("close frame not delivered")
	}
}
