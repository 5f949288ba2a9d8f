// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client provides a Go client library for the clauderon daemon's
// HTTP control plane (spec.md §6). It is a typed wrapper over the same
// {data,error} envelope internal/api/response.go writes, with one method
// per session, recent-repos and reconcile route internal/api/router.go
// exposes. The /api/events stream has no method here.
//
// # Getting Started
//
// Create a client pointing to a running daemon's HTTP address:
//
//	c := client.New("http://127.0.0.1:4270")
//	sessions, err := c.Sessions.List(ctx)
//
// # Error Handling
//
// API errors are returned as *APIError values carrying the daemon's
// machine-readable error code:
//
//	s, err := c.Sessions.Get(ctx, id)
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.Code == client.ErrNotFound {
//	    // session doesn't exist
//	}
//
// Grounded on teacher pkg/client/client.go's functional-options-plus-
// apiResponse-envelope shape; the sub-client split (Services/Worktrees/
// Workflows/...) collapses to a single Sessions sub-client since
// clauderon's control plane has one resource family.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CorrelationIDHeader is echoed back by the daemon on every response;
// mirrors internal/api/middleware.go's CorrelationIDHeader constant.
const CorrelationIDHeader = "X-Correlation-ID"

// Daemon error codes, mirroring internal/api/response.go's constants.
const (
	ErrNotFound      = "NOT_FOUND"
	ErrBadRequest    = "BAD_REQUEST"
	ErrInternalError = "INTERNAL_ERROR"
	ErrConflict      = "CONFLICT"
	ErrSessionError  = "SESSION_ERROR"
)

// Client is a clauderon daemon HTTP API client, safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Sessions provides access to session lifecycle operations.
	Sessions *SessionClient
}

// Option configures a [Client].
type Option func(*Client)

// New creates a client pointing at baseURL (e.g. "http://127.0.0.1:4270").
// Any trailing slash is removed. By default requests time out after 30s.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Sessions = &SessionClient{c: c}
	return c
}

// WithHTTPClient sets a custom HTTP client, e.g. for custom TLS or tracing.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the HTTP client's request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// BaseURL returns the daemon's HTTP address this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope mirrors internal/api/response.go's Response struct.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

// APIError is an error response from the daemon's control plane.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data))
}

func (c *Client) delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(CorrelationIDHeader, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

func (c *Client) parseResponse(resp *http.Response) (json.RawMessage, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
		}
		return respBody, nil
	}
	if env.Error != nil {
		return nil, env.Error
	}
	return env.Data, nil
}
