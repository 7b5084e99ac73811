// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

// Package fanout spreads room traffic across gateway replicas over NATS core
// subjects. A relay room or CRDT document with peers on two replicas sees
// every frame on both.
//
// Subjects are "<prefix>.<kind>.<room>". Each message carries the
// publishing replica's instance id in a header so a replica never delivers
// its own frames twice.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/suitenumerique/docs-sub001/internal/logging"
	"github.com/suitenumerique/docs-sub001/internal/metrics"
)

// Kind separates the two synchronization strategies on the bus.
type Kind string

// Kinds.
const (
	KindRelay Kind = "relay"
	KindCRDT  Kind = "crdt"
)

// OriginHeader carries the publishing instance id.
const OriginHeader = "Docs-Origin"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("fanout: bridge closed")

// Bus is what the room registries need from the fanout layer. A nil Bus
// means single-replica operation.
type Bus interface {
	Publish(kind Kind, room string, payload []byte) error
	Subscribe(kind Kind, room string, fn func(payload []byte)) (unsubscribe func(), err error)
}

var _ Bus = (*Bridge)(nil)

// Config holds the connection settings.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	Name          string
}

// Bridge implements Bus over a NATS connection.
type Bridge struct {
	nc         *nats.Conn
	prefix     string
	instanceID string
}

// Connect dials NATS and returns a Bridge owning the connection.
func Connect(cfg Config) (*Bridge, error) {
	name := cfg.Name
	if name == "" {
		name = "docs-collaboration"
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info().Str("url", c.ConnectedUrlRedacted()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			ev := logging.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("NATS async error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return New(nc, cfg.SubjectPrefix), nil
}

// New wraps an existing connection.
func New(nc *nats.Conn, prefix string) *Bridge {
	return &Bridge{nc: nc, prefix: prefix, instanceID: uuid.NewString()}
}

// InstanceID identifies this replica on the bus.
func (b *Bridge) InstanceID() string {
	return b.instanceID
}

// Connected reports whether the NATS connection is up.
func (b *Bridge) Connected() bool {
	return b.nc.IsConnected()
}

// Subject returns the subject used for kind and room.
func (b *Bridge) Subject(kind Kind, room string) string {
	return b.prefix + "." + string(kind) + "." + room
}

// Publish sends payload to the other replicas.
func (b *Bridge) Publish(kind Kind, room string, payload []byte) error {
	if b.nc.IsClosed() {
		return ErrClosed
	}
	msg := nats.NewMsg(b.Subject(kind, room))
	msg.Header.Set(OriginHeader, b.instanceID)
	msg.Data = payload
	if err := b.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	metrics.FanoutMessages.WithLabelValues("out", string(kind)).Inc()
	return nil
}

// Subscribe calls fn for every payload published on kind/room by another
// replica. fn runs on the subscription's goroutine, one message at a time.
func (b *Bridge) Subscribe(kind Kind, room string, fn func(payload []byte)) (func(), error) {
	if b.nc.IsClosed() {
		return nil, ErrClosed
	}
	sub, err := b.nc.Subscribe(b.Subject(kind, room), func(msg *nats.Msg) {
		if msg.Header.Get(OriginHeader) == b.instanceID {
			return
		}
		metrics.FanoutMessages.WithLabelValues("in", string(kind)).Inc()
		fn(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", b.Subject(kind, room), err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			logging.Debug().Err(err).Str("subject", sub.Subject).Msg("NATS unsubscribe failed")
		}
	}, nil
}

// Flush waits until the server has processed everything published so far.
func (b *Bridge) Flush(ctx context.Context) error {
	return b.nc.FlushWithContext(ctx)
}

// RunWithContext blocks until ctx is done, then drains the connection. It
// lets the supervisor own the bridge's lifetime.
func (b *Bridge) RunWithContext(ctx context.Context) error {
	<-ctx.Done()
	b.Close()
	return ctx.Err()
}

// Close drains pending messages and closes the connection.
func (b *Bridge) Close() {
	if b.nc.IsClosed() || b.nc.IsDraining() {
		return
	}
	if err := b.nc.Drain(); err != nil {
		logging.Debug().Err(err).Msg("NATS drain failed, closing")
		b.nc.Close()
	}
}
