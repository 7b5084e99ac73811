// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

// Package config loads the gateway configuration from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the complete gateway configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Collaboration CollaborationConfig `koanf:"collaboration"`
	Security      SecurityConfig      `koanf:"security"`
	Conversion    ConversionConfig    `koanf:"conversion"`
	NATS          NATSConfig          `koanf:"nats"`
	Metrics       MetricsConfig       `koanf:"metrics"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	Environment     string        `koanf:"environment" validate:"oneof=development staging production"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// CollaborationConfig holds the settings of the websocket entry point and of
// both synchronization strategies.
type CollaborationConfig struct {
	// BackendBaseURL is the document service consulted for abilities and identity.
	BackendBaseURL string        `koanf:"backend_base_url" validate:"required"`
	BackendTimeout time.Duration `koanf:"backend_timeout" validate:"gt=0"`
	// BreakerEnabled wraps backend calls in a circuit breaker.
	BreakerEnabled bool `koanf:"breaker_enabled"`

	SessionCookieName string   `koanf:"session_cookie_name" validate:"required"`
	AllowedOrigins    []string `koanf:"allowed_origins"`

	HeartbeatInterval time.Duration `koanf:"heartbeat_interval" validate:"gt=0"`
	MaxMessageSize    int64         `koanf:"max_message_size" validate:"gt=0"`
	SendBufferSize    int           `koanf:"send_buffer_size" validate:"gt=0"`
	// MessagesPerSecond throttles reads per socket; 0 disables throttling.
	MessagesPerSecond float64 `koanf:"messages_per_second" validate:"gte=0"`
	MessageBurst      int     `koanf:"message_burst" validate:"gte=0"`

	// DocumentMaxUpdates and DocumentMaxBytes bound the update log of one
	// plaintext document. Past either limit the document is reset and its
	// peers reconnect with their merged state.
	DocumentMaxUpdates int   `koanf:"document_max_updates" validate:"gt=0"`
	DocumentMaxBytes   int64 `koanf:"document_max_bytes" validate:"gt=0"`

	// KeyRotationSentinel is the relay control payload that is never forwarded.
	KeyRotationSentinel string `koanf:"key_rotation_sentinel" validate:"required"`
}

// SecurityConfig holds shared secrets, CORS and HTTP rate limits.
type SecurityConfig struct {
	// ServerSecret guards the admin reset/inspect endpoints.
	ServerSecret string `koanf:"server_secret"`
	// APIKey guards the conversion endpoint.
	APIKey            string        `koanf:"api_key"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// ConversionConfig holds the format conversion endpoint settings.
type ConversionConfig struct {
	MaxBodyBytes int64 `koanf:"max_body_bytes" validate:"gt=0"`
}

// NATSConfig holds the optional cross-replica fanout settings.
type NATSConfig struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url"`
	SubjectPrefix string        `koanf:"subject_prefix"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
	// Embedded starts an in-process NATS server and connects to it instead of URL.
	Embedded     bool   `koanf:"embedded"`
	EmbeddedHost string `koanf:"embedded_host"`
	EmbeddedPort int    `koanf:"embedded_port"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether the gateway runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Load reads the configuration. See LoadWithKoanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
