// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package gateway

import (
	"fmt"

	"github.com/suitenumerique/docs-sub001/internal/websocket"
)

// Kind classifies a rejected connection attempt.
type Kind int

// Rejection kinds.
const (
	// KindProtocol is a malformed upgrade request.
	KindProtocol Kind = iota + 1
	// KindAuthorization is a well-formed request the backend (or the room id
	// check) refused.
	KindAuthorization
	// KindBackend is a failure to obtain an answer from the backend.
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindAuthorization:
		return "authorization"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Client-facing close reasons. Authorization and backend failures share one
// reason so a client cannot tell a missing room from a forbidden one.
const (
	ReasonMissingRoom   = "missing-room"
	ReasonUnauthorized  = "unauthorized"
	ReasonInternalError = "internal-error"
)

// RejectError is returned by Gate.Authorize. CloseCode and Reason go to the
// client; Detail and Err stay in server logs.
type RejectError struct {
	Kind      Kind
	CloseCode int
	Reason    string
	// Detail is a short machine label used in logs and metrics.
	Detail string
	Err    error
}

func (e *RejectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s rejection (%s): %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s rejection (%s)", e.Kind, e.Detail)
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

func errMissingRoom() *RejectError {
	return &RejectError{
		Kind:      KindProtocol,
		CloseCode: websocket.CloseInvalidPayload,
		Reason:    ReasonMissingRoom,
		Detail:    "missing_room",
	}
}

func errInvalidRoom() *RejectError {
	return &RejectError{
		Kind:      KindAuthorization,
		CloseCode: websocket.ClosePolicyViolation,
		Reason:    ReasonUnauthorized,
		Detail:    "invalid_room",
	}
}

func errNoRetrieve() *RejectError {
	return &RejectError{
		Kind:      KindAuthorization,
		CloseCode: websocket.ClosePolicyViolation,
		Reason:    ReasonUnauthorized,
		Detail:    "no_retrieve",
	}
}

// errRefused is a 4xx from the backend: it answered, and the answer is no.
func errRefused(err error) *RejectError {
	return &RejectError{
		Kind:      KindAuthorization,
		CloseCode: websocket.ClosePolicyViolation,
		Reason:    ReasonUnauthorized,
		Detail:    "backend_refused",
		Err:       err,
	}
}

func errBackend(err error) *RejectError {
	return &RejectError{
		Kind:      KindBackend,
		CloseCode: websocket.ClosePolicyViolation,
		Reason:    ReasonUnauthorized,
		Detail:    "backend_error",
		Err:       err,
	}
}
