// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package api

import "errors"

var (
	// ErrSecretNotConfigured is returned when a guarded route has no secret
	// to compare with; such routes refuse every request.
	ErrSecretNotConfigured = errors.New("shared secret is not configured")

	// ErrBodyTooLarge is returned for conversion bodies above the limit.
	ErrBodyTooLarge = errors.New("request body too large")
)
