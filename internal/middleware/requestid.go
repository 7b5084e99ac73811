// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package middleware

import (
	"context"
	"net/http"

	"github.com/suitenumerique/docs-sub001/internal/logging"
)

type contextKey string

// RequestIDKey is the context key of the request id.
const RequestIDKey contextKey = "request_id"

// maxRequestIDLength bounds an id supplied by an upstream proxy.
const maxRequestIDLength = 128

// RequestID reuses the X-Request-ID of an upstream proxy or generates a
// UUID, echoes it in the response and puts it in the logging context.
func RequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := logging.SanitizeForLog(r.Header.Get("X-Request-ID"), maxRequestIDLength)
		if len(requestID) > maxRequestIDLength {
			requestID = ""
		}
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = logging.ContextWithRequestID(ctx, requestID)
		ctx = logging.ContextWithNewCorrelationID(ctx)

		next(w, r.WithContext(ctx))
	}
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
