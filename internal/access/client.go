// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

// Package access talks to the document service that owns permissions. The
// gateway asks it two questions per connection: what may this request do with
// a document, and who is making the request.
package access

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/suitenumerique/docs-sub001/internal/metrics"
)

// Endpoint labels used in metrics and logs.
const (
	EndpointDocument = "document"
	EndpointUser     = "user"
)

// ForwardedHeaders are copied from the client's upgrade request onto backend
// calls so the document service sees the same session.
var ForwardedHeaders = []string{
	"Cookie",
	"Authorization",
	"Origin",
	"User-Agent",
	"Accept-Language",
	"X-Forwarded-For",
}

// Abilities are the permission flags the gateway consumes.
type Abilities struct {
	Retrieve bool `json:"retrieve"`
	Update   bool `json:"update"`
}

// Document is the authorization snapshot of one document. It is fetched
// fresh for every connection attempt.
type Document struct {
	ID          string    `json:"id"`
	Abilities   Abilities `json:"abilities"`
	IsEncrypted bool      `json:"is_encrypted"`
}

// User is the identity of the requester.
type User struct {
	ID string `json:"id"`
}

// Client fetches authorization data from the document service.
type Client interface {
	FetchDocument(ctx context.Context, roomID string, h http.Header) (*Document, error)
	FetchCurrentUser(ctx context.Context, h http.Header) (*User, error)
}

var _ Client = (*HTTPClient)(nil)

// StatusError is returned when the document service answers with a non-2xx
// status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("access %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("access %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// ClientError reports a 4xx answer: the request was understood and refused.
func (e *StatusError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// HTTPClient implements Client over the document service REST API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the document service at baseURL.
//
// Parameters:
//   - baseURL: service root, e.g. http://backend:8000
//   - timeout: bound on each call; expiry is reported as an error
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchDocument returns the abilities and encryption flag of roomID. The
// document body is never requested.
func (c *HTTPClient) FetchDocument(ctx context.Context, roomID string, h http.Header) (*Document, error) {
	endpoint := "/api/v1.0/documents/" + url.PathEscape(roomID) + "/?without_content=true"

	var doc Document
	if err := c.getJSON(ctx, EndpointDocument, endpoint, h, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FetchCurrentUser returns the user the forwarded session belongs to.
func (c *HTTPClient) FetchCurrentUser(ctx context.Context, h http.Header) (*User, error) {
	var user User
	if err := c.getJSON(ctx, EndpointUser, "/api/v1.0/users/me/", h, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, name, endpoint string, h http.Header, out any) error {
	start := time.Now()
	err := c.doGetJSON(ctx, name, endpoint, h, out)
	metrics.RecordAccessRequest(name, resultLabel(err), time.Since(start))
	return err
}

func (c *HTTPClient) doGetJSON(ctx context.Context, name, endpoint string, h http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", name, err)
	}
	copyForwarded(req.Header, h)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("access %s request failed: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Endpoint: name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode access %s response: %w", name, err)
	}
	return nil
}

func copyForwarded(dst, src http.Header) {
	for _, name := range ForwardedHeaders {
		for _, v := range src.Values(name) {
			dst.Add(name, v)
		}
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	if se, ok := err.(*StatusError); ok {
		return fmt.Sprintf("status_%d", se.StatusCode)
	}
	return "error"
}

// IdentifyUser looks up the requester. Any failure means anonymous: the
// caller gets ok=false and carries on.
func IdentifyUser(ctx context.Context, c Client, h http.Header) (userID string, ok bool) {
	user, err := c.FetchCurrentUser(ctx, h)
	if err != nil || user == nil || user.ID == "" {
		return "", false
	}
	return user.ID, true
}
