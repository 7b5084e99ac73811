// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/suitenumerique/docs-sub001/internal/logging"
	"github.com/suitenumerique/docs-sub001/internal/validation"
)

var validLogFormats = map[string]bool{"json": true, "console": true}

// Validate checks struct tags first, then the cross-field rules.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}
	if err := c.validateCollaboration(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCollaboration() error {
	if err := validateHTTPURL(c.Collaboration.BackendBaseURL, "COLLABORATION_BACKEND_BASE_URL"); err != nil {
		return err
	}
	for _, origin := range c.Collaboration.AllowedOrigins {
		if origin == "*" {
			if c.IsProduction() {
				return fmt.Errorf("COLLABORATION_SERVER_ORIGIN must not be '*' in production")
			}
			continue
		}
		if err := validateOrigin(origin); err != nil {
			return fmt.Errorf("COLLABORATION_SERVER_ORIGIN: %w", err)
		}
	}
	if c.Collaboration.MessagesPerSecond > 0 && c.Collaboration.MessageBurst < 1 {
		return fmt.Errorf("COLLABORATION_MESSAGE_BURST must be at least 1 when throttling is enabled")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.IsProduction() {
		if c.Security.ServerSecret == "" {
			return fmt.Errorf("COLLABORATION_SERVER_SECRET is required in production")
		}
		if c.Security.APIKey == "" {
			return fmt.Errorf("Y_PROVIDER_API_KEY is required in production")
		}
	}
	if !c.Security.RateLimitDisabled && c.Security.RateLimitReqs > 0 && c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.Embedded {
		if c.NATS.EmbeddedPort < -1 || c.NATS.EmbeddedPort > 65535 {
			return fmt.Errorf("NATS_EMBEDDED_PORT must be between -1 and 65535")
		}
	} else {
		if c.NATS.URL == "" {
			return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true")
		}
		if err := validateNATSURL(c.NATS.URL); err != nil {
			return fmt.Errorf("NATS_URL is invalid: %w", err)
		}
	}
	if c.NATS.SubjectPrefix == "" || strings.ContainsAny(c.NATS.SubjectPrefix, " *>") {
		return fmt.Errorf("NATS_SUBJECT_PREFIX must be a non-empty literal subject")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// validateHTTPURL accepts an http(s) base URL with an optional trailing slash.
func validateHTTPURL(rawURL, fieldName string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if parsed.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters", fieldName)
	}
	return nil
}

func validateOrigin(origin string) error {
	parsed, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("failed to parse origin %q: %w", origin, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("origin %q must be scheme://host[:port]", origin)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("origin %q must not contain a path", origin)
	}
	return nil
}

func validateNATSURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	switch parsed.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
