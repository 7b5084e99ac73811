// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package access

import (
	"context"
	"errors"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/suitenumerique/docs-sub001/internal/logging"
	"github.com/suitenumerique/docs-sub001/internal/metrics"
)

var _ Client = (*BreakerClient)(nil)

// BreakerClient wraps a Client with a circuit breaker so that a failing
// document service rejects connections quickly instead of piling up
// upgrade requests waiting on timeouts.
//
// 4xx answers are the service working as intended and never trip the breaker.
type BreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// BreakerSettings tunes the breaker. Zero values take defaults.
type BreakerSettings struct {
	MinRequests  uint32
	FailureRatio float64
	Interval     time.Duration
	Timeout      time.Duration
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.MinRequests == 0 {
		s.MinRequests = 10
	}
	if s.FailureRatio == 0 {
		s.FailureRatio = 0.6
	}
	if s.Interval == 0 {
		s.Interval = time.Minute
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	return s
}

// NewBreakerClient wraps client.
// Circuit breaker configuration (defaults):
// - Max 3 concurrent requests in half-open state
// - 1 minute measurement window
// - 30 second timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewBreakerClient(client Client, settings BreakerSettings) *BreakerClient {
	s := settings.withDefaults()
	cbName := "document-service"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    s.Interval,
		Timeout:     s.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= s.FailureRatio
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening document service circuit")
			}
			return shouldTrip
		},

		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *StatusError
			return errors.As(err, &se) && se.ClientError()
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := from.String(), to.String()
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] Document service state transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &BreakerClient{client: client, cb: cb, name: cbName}
}

// State returns the current breaker state.
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Document service request rejected")
		default:
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(float64(b.cb.Counts().ConsecutiveFailures))
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(0)
	return result, nil
}

// FetchDocument calls the wrapped client through the breaker.
func (b *BreakerClient) FetchDocument(ctx context.Context, roomID string, h http.Header) (*Document, error) {
	result, err := b.execute(func() (any, error) {
		return b.client.FetchDocument(ctx, roomID, h)
	})
	if err != nil {
		return nil, err
	}
	doc, ok := result.(*Document)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for FetchDocument")
	}
	return doc, nil
}

// FetchCurrentUser calls the wrapped client through the breaker.
func (b *BreakerClient) FetchCurrentUser(ctx context.Context, h http.Header) (*User, error) {
	result, err := b.execute(func() (any, error) {
		return b.client.FetchCurrentUser(ctx, h)
	})
	if err != nil {
		return nil, err
	}
	user, ok := result.(*User)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for FetchCurrentUser")
	}
	return user, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
