// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// SecurityEvent is a security-relevant occurrence: a tampering signal, a
// denied connection or a failed shared-secret check.
type SecurityEvent struct {
	Event      string
	Room       string
	UserID     string
	SessionKey string
	RemoteAddr string
	UserAgent  string
	URL        string
	Origin     string
	Reason     string
	Details    map[string]string
}

// SecurityLogger writes SecurityEvents with sensitive fields masked.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger creates a security logger bound to the global logger.
func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{logger: With().Str("component", "security").Logger()}
}

// NewSecurityLoggerWithLogger creates a security logger on top of logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger.With().Str("component", "security").Logger()}
}

// LogEvent logs event at warn level.
func (l *SecurityLogger) LogEvent(event *SecurityEvent) {
	e := l.logger.Warn().Str("event", event.Event)

	if event.Room != "" {
		e = e.Str("room", SanitizeForLog(event.Room, 64))
	}
	if event.UserID != "" {
		e = e.Str("user_id", SanitizeUserID(event.UserID))
	}
	if event.SessionKey != "" {
		e = e.Str("session_key", SanitizeToken(event.SessionKey))
	}
	if event.RemoteAddr != "" {
		e = e.Str("ip", event.RemoteAddr)
	}
	if event.UserAgent != "" {
		e = e.Str("user_agent", SanitizeForLog(event.UserAgent, 200))
	}
	if event.URL != "" {
		e = e.Str("url", SanitizeForLog(event.URL, 300))
	}
	if event.Origin != "" {
		e = e.Str("origin", SanitizeForLog(event.Origin, 200))
	}
	if event.Reason != "" {
		e = e.Str("reason", event.Reason)
	}
	for k, v := range event.Details {
		e = e.Str(k, SanitizeValue(k, v))
	}

	e.Msg("security event")
}

// LogRoomMismatch records a client that was authorized for one room and then
// named another one in the sync protocol.
func (l *SecurityLogger) LogRoomMismatch(authorizedRoom, claimedRoom, userAgent, url, remoteAddr string) {
	l.LogEvent(&SecurityEvent{
		Event:      "room_mismatch",
		Room:       authorizedRoom,
		UserAgent:  userAgent,
		URL:        url,
		RemoteAddr: remoteAddr,
		Details:    map[string]string{"claimed_room": SanitizeForLog(claimedRoom, 64)},
	})
}

// LogSharedSecretFailure records a request to a secret-guarded endpoint that
// carried a missing or wrong secret.
func (l *SecurityLogger) LogSharedSecretFailure(endpoint, remoteAddr, userAgent string) {
	l.LogEvent(&SecurityEvent{
		Event:      "shared_secret_rejected",
		RemoteAddr: remoteAddr,
		UserAgent:  userAgent,
		Details:    map[string]string{"endpoint": endpoint},
	})
}

// LogOriginRejected records a request from an origin outside the allow-list.
func (l *SecurityLogger) LogOriginRejected(endpoint, origin, remoteAddr string) {
	l.LogEvent(&SecurityEvent{
		Event:      "origin_rejected",
		Origin:     origin,
		RemoteAddr: remoteAddr,
		Details:    map[string]string{"endpoint": endpoint},
	})
}

// SanitizeToken masks a token, keeping the first and last 4 characters.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeUserID masks a user ID.
func SanitizeUserID(userID string) string {
	if userID == "" {
		return ""
	}
	if len(userID) <= 8 {
		return "***"
	}
	return userID[:4] + "..." + userID[len(userID)-4:]
}

// SanitizeValue masks value when key names a credential.
func SanitizeValue(key, value string) string {
	switch strings.ToLower(key) {
	case "token", "password", "secret", "api_key", "apikey", "authorization",
		"bearer", "cookie", "session", "session_key", "sessionkey":
		return SanitizeToken(value)
	}
	return value
}

// SanitizeForLog drops control characters from client-supplied strings and
// truncates them to maxLen bytes.
func SanitizeForLog(s string, maxLen int) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return truncateString(s, maxLen)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
