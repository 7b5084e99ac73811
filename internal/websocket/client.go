// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package websocket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/suitenumerique/docs-sub001/internal/logging"
	"github.com/suitenumerique/docs-sub001/internal/metrics"
)

const (
	writeWait = 10 * time.Second

	// DefaultHeartbeatInterval is the ping period used when Config leaves it zero.
	DefaultHeartbeatInterval = 30 * time.Second
	defaultSendBuffer        = 256
	defaultMaxMessageSize    = 10 << 20
)

// Close codes used by the gateway on top of the RFC 6455 ones.
const (
	CloseNormal          = websocket.CloseNormalClosure
	CloseGoingAway       = websocket.CloseGoingAway
	CloseInvalidPayload  = websocket.CloseInvalidFramePayloadData
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseInternalError   = websocket.CloseInternalServerErr
	CloseTryAgainLater   = websocket.CloseTryAgainLater
	// ClosePermissionDenied mirrors the HTTP 403 in the application range.
	ClosePermissionDenied = 4403
)

// Config tunes a Client.
type Config struct {
	HeartbeatInterval time.Duration
	MaxMessageSize    int64
	SendBufferSize    int
	// MessagesPerSecond throttles reads; 0 disables throttling.
	MessagesPerSecond float64
	MessageBurst      int
	// Path labels metrics ("relay" or "crdt").
	Path string
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = defaultSendBuffer
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = 1
	}
	return c
}

// clientIDCounter generates unique, monotonically increasing IDs for clients.
// Hubs sort by it so broadcast order does not depend on map iteration.
var clientIDCounter atomic.Uint64

type closeFrame struct {
	code   int
	reason string
}

// Client is one accepted websocket connection.
type Client struct {
	id   uint64
	conn *websocket.Conn
	cfg  Config

	send chan []byte
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	doneOnce    sync.Once
	closeOnce   sync.Once
	pongPending atomic.Bool
	frame       atomic.Pointer[closeFrame]
	limiter     *rate.Limiter

	onMessage func(*Client, []byte)
	onClose   func(*Client)
}

// NewClient wraps conn. The connection is not read or written until Start.
func NewClient(conn *websocket.Conn, cfg Config) *Client {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		id:     clientIDCounter.Add(1),
		conn:   conn,
		cfg:    cfg,
		send:   make(chan []byte, cfg.SendBufferSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.MessagesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.MessageBurst)
	}
	return c
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Done is closed once the client starts shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Context is canceled when the client starts shutting down. Work done on
// behalf of the connection (backend calls) should use it.
func (c *Client) Context() context.Context {
	return c.ctx
}

// Closed reports whether the client is shutting down.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// CloseCode returns the code passed to CloseWith, or 0.
func (c *Client) CloseCode() int {
	if f := c.frame.Load(); f != nil {
		return f.code
	}
	return 0
}

// Start runs the read and write goroutines. onMessage is called from the
// read goroutine for every data frame, in arrival order. onClose is called
// exactly once after the connection is gone.
func (c *Client) Start(onMessage func(*Client, []byte), onClose func(*Client)) {
	if onMessage == nil {
		onMessage = func(*Client, []byte) {}
	}
	if onClose == nil {
		onClose = func(*Client) {}
	}
	c.onMessage = onMessage
	c.onClose = onClose
	go c.writePump()
	go c.readPump()
}

// Send queues a binary frame. It never blocks: when the queue is full the
// client is closed as a slow consumer and Send returns false.
func (c *Client) Send(p []byte) bool {
	if c.Closed() {
		return false
	}
	select {
	case c.send <- p:
		return true
	default:
		metrics.SlowConsumers.WithLabelValues(c.cfg.Path).Inc()
		logging.Warn().Uint64("client_id", c.id).Str("path", c.cfg.Path).Msg("websocket send queue full, closing slow consumer")
		c.CloseWith(CloseTryAgainLater, "slow-consumer")
		return false
	}
}

// SendWait queues a binary frame, waiting for room in the queue. It is
// meant for bulk replays from the client's own read goroutine, where waiting
// only delays this connection. It returns false once the client is closed.
func (c *Client) SendWait(p []byte) bool {
	select {
	case c.send <- p:
		return true
	case <-c.done:
		return false
	}
}

// CloseWith closes the connection with code and reason. Only the first call
// has an effect.
func (c *Client) CloseWith(code int, reason string) {
	c.frame.CompareAndSwap(nil, &closeFrame{code: code, reason: reason})
	c.markDone()
}

// Close closes the connection normally.
func (c *Client) Close() {
	c.CloseWith(CloseNormal, "")
}

func (c *Client) markDone() {
	c.doneOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
}

func (c *Client) readPump() {
	defer func() {
		c.markDone()
		c.closeOnce.Do(func() { c.onClose(c) })
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.pongPending.Store(false)
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(c.ctx); err != nil {
				return
			}
		}
		if !c.dispatch(data) {
			return
		}
	}
}

// dispatch runs the message callback, converting a panic into a 1011 close.
func (c *Client) dispatch(data []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("panic", fmt.Sprint(r)).Uint64("client_id", c.id).Msg("websocket message handler panicked")
			c.CloseWith(CloseInternalError, "internal-error")
			ok = false
		}
	}()
	c.onMessage(c, data)
	return !c.Closed()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // best-effort; unblocks readPump
	}()

	for {
		select {
		case <-c.done:
			c.flush()
			c.writeClose()
			return

		case p := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.markDone()
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("websocket write failed")
				c.markDone()
				return
			}

		case <-ticker.C:
			if c.pongPending.Load() {
				metrics.HeartbeatTimeouts.WithLabelValues(c.cfg.Path).Inc()
				logging.Info().Uint64("client_id", c.id).Str("path", c.cfg.Path).Msg("websocket peer missed heartbeat, closing")
				c.CloseWith(CloseGoingAway, "heartbeat-timeout")
				c.writeClose()
				return
			}
			c.pongPending.Store(true)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.markDone()
				return
			}
		}
	}
}

// flush writes what is already queued so that a message sent just before
// CloseWith (an auth denial, for instance) reaches the peer. Slow consumers
// are not flushed.
func (c *Client) flush() {
	if c.CloseCode() == CloseTryAgainLater {
		return
	}
	deadline := time.Now().Add(writeWait)
	for {
		select {
		case p := <-c.send:
			if err := c.conn.SetWriteDeadline(deadline); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) writeClose() {
	f := c.frame.Load()
	if f == nil {
		f = &closeFrame{code: CloseGoingAway}
	}
	msg := websocket.FormatCloseMessage(f.code, f.reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
