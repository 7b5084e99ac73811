// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/suitenumerique/docs-sub001/internal/convert"
	"github.com/suitenumerique/docs-sub001/internal/logging"
	"github.com/suitenumerique/docs-sub001/internal/metrics"
)

// RequireAPIKey refuses conversion requests without the API key or from an
// origin outside the allow-list. Requests without Origin (server to server)
// only need the key.
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !secretMatches(bearerOrRaw(r.Header.Get("Authorization")), h.cfg.APIKey) {
			h.security.LogSharedSecretFailure(r.URL.Path, r.RemoteAddr, r.UserAgent())
			NewResponseWriter(w, r).Unauthorized("invalid API key")
			return
		}
		if origin := r.Header.Get("Origin"); origin != "" && !originAllowed(origin, h.cfg.AllowedOrigins) {
			h.security.LogOriginRejected(r.URL.Path, origin, r.RemoteAddr)
			NewResponseWriter(w, r).Forbidden("origin not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

var convertErrorCodes = map[int]string{
	http.StatusBadRequest:           ErrCodeBadRequest,
	http.StatusUnsupportedMediaType: ErrCodeUnsupportedMedia,
	http.StatusNotAcceptable:        ErrCodeNotAcceptable,
	http.StatusInternalServerError:  ErrCodeInternalError,
}

// Convert handles POST /api/convert. Content-Type selects the input format
// and Accept the output format.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	accept := r.Header.Get("Accept")
	from, to := convert.InputFormat(contentType), convert.OutputFormat(accept)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.Conversions.WithLabelValues(from, to, "413").Inc()
			NewResponseWriter(w, r).Error(http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, ErrBodyTooLarge.Error())
			return
		}
		metrics.Conversions.WithLabelValues(from, to, "400").Inc()
		NewResponseWriter(w, r).BadRequest("unreadable body")
		return
	}

	res, err := h.converter.Convert(contentType, accept, body)
	if err != nil {
		var cerr *convert.Error
		if !errors.As(err, &cerr) {
			cerr = &convert.Error{Status: http.StatusInternalServerError, Message: "conversion failed", Err: err}
		}
		metrics.Conversions.WithLabelValues(from, to, strconv.Itoa(cerr.Status)).Inc()

		ev := logging.Ctx(r.Context()).Warn()
		if cerr.Status >= http.StatusInternalServerError {
			ev = logging.Ctx(r.Context()).Error()
		}
		ev.Err(cerr.Err).
			Str("content_type", logging.SanitizeForLog(contentType, 100)).
			Str("accept", logging.SanitizeForLog(accept, 100)).
			Int("status", cerr.Status).
			Msg(cerr.Message)

		code, ok := convertErrorCodes[cerr.Status]
		if !ok {
			code = ErrCodeInternalError
		}
		NewResponseWriter(w, r).Error(cerr.Status, code, cerr.Message)
		return
	}

	metrics.Conversions.WithLabelValues(from, to, "200").Inc()
	logging.Ctx(r.Context()).Debug().Str("from", from).Str("to", to).Int("blocks", res.Blocks).Msg("document converted")

	w.Header().Set("Content-Type", res.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Body); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("conversion response not delivered")
	}
}
