// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config files searched, first match wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/docs-collaboration/config.yaml",
	"/etc/docs-collaboration/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultKeyRotationSentinel is the relay control payload sent by clients
// while a document is being re-encrypted.
const DefaultKeyRotationSentinel = "decryption-in-progress"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            4444,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Collaboration: CollaborationConfig{
			BackendBaseURL:      "http://localhost:8071",
			BackendTimeout:      10 * time.Second,
			BreakerEnabled:      true,
			SessionCookieName:   "docs_sessionid",
			AllowedOrigins:      []string{"http://localhost:3000"},
			HeartbeatInterval:   30 * time.Second,
			MaxMessageSize:      10 << 20,
			SendBufferSize:      256,
			MessagesPerSecond:   0,
			MessageBurst:        100,
			DocumentMaxUpdates:  10000,
			DocumentMaxBytes:    64 << 20,
			KeyRotationSentinel: DefaultKeyRotationSentinel,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Conversion: ConversionConfig{
			MaxBodyBytes: 10 << 20,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "docs.collab",
			MaxReconnects: 10,
			ReconnectWait: time.Second,
			EmbeddedHost:  "127.0.0.1",
			EmbeddedPort:  4222,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration from three layers:
//  1. built-in defaults
//  2. an optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. environment variables listed in envMappings
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when they come from env.
var sliceConfigPaths = []string{
	"collaboration.allowed_origins",
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps deployment environment variables to koanf paths. Variables
// not listed here are ignored.
var envMappings = map[string]string{
	// Server
	"port":             "server.port",
	"http_host":        "server.host",
	"http_timeout":     "server.timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	// Collaboration
	"collaboration_backend_base_url":      "collaboration.backend_base_url",
	"collaboration_backend_timeout":       "collaboration.backend_timeout",
	"collaboration_backend_breaker":       "collaboration.breaker_enabled",
	"collaboration_session_cookie":        "collaboration.session_cookie_name",
	"collaboration_server_origin":         "collaboration.allowed_origins",
	"collaboration_heartbeat_interval":    "collaboration.heartbeat_interval",
	"collaboration_max_message_size":      "collaboration.max_message_size",
	"collaboration_send_buffer":           "collaboration.send_buffer_size",
	"collaboration_messages_per_second":   "collaboration.messages_per_second",
	"collaboration_message_burst":         "collaboration.message_burst",
	"collaboration_document_max_updates":  "collaboration.document_max_updates",
	"collaboration_document_max_bytes":    "collaboration.document_max_bytes",
	"collaboration_key_rotation_sentinel": "collaboration.key_rotation_sentinel",

	// Security
	"collaboration_server_secret": "security.server_secret",
	"y_provider_api_key":          "security.api_key",
	"cors_origins":                "security.cors_origins",
	"rate_limit_requests":         "security.rate_limit_reqs",
	"rate_limit_window":           "security.rate_limit_window",
	"disable_rate_limit":          "security.rate_limit_disabled",

	// Conversion
	"conversion_max_body_bytes": "conversion.max_body_bytes",

	// NATS
	"nats_enabled":        "nats.enabled",
	"nats_url":            "nats.url",
	"nats_subject_prefix": "nats.subject_prefix",
	"nats_max_reconnects": "nats.max_reconnects",
	"nats_reconnect_wait": "nats.reconnect_wait",
	"nats_embedded":       "nats.embedded",
	"nats_embedded_host":  "nats.embedded_host",
	"nats_embedded_port":  "nats.embedded_port",

	// Metrics
	"metrics_enabled": "metrics.enabled",
	"metrics_path":    "metrics.path",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to a koanf path, or ""
// to skip it.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
