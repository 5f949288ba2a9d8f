// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/shepherdjerred/clauderon/internal/backend"
	"github.com/shepherdjerred/clauderon/internal/events"
)

// SessionClient provides access to session lifecycle operations, mirroring
// internal/api/router.go's /api/sessions routes.
type SessionClient struct {
	c *Client
}

// CreateRequest mirrors internal/api/router.go's createSessionRequest.
type CreateRequest struct {
	Name                string            `json:"name"`
	RepoPath            string            `json:"repoPath"`
	Subdirectory        string            `json:"subdirectory,omitempty"`
	Branch              string            `json:"branch,omitempty"`
	BackendKind         string            `json:"backend"`
	Agent               string            `json:"agent,omitempty"`
	InitialPrompt       string            `json:"initialPrompt,omitempty"`
	AccessMode          backend.AccessMode `json:"accessMode,omitempty"`
	DangerousSkipSafety bool              `json:"dangerousSkipSafety,omitempty"`
	AutoDestroyOnStop   bool              `json:"autoDestroyOnStop,omitempty"`
	ProxyEnabled        bool              `json:"proxyEnabled,omitempty"`
	ImageOverrides      map[string]string `json:"imageOverrides,omitempty"`
	ResourceLimits      map[string]string `json:"resourceLimits,omitempty"`
}

// List returns every materialized session.
func (s *SessionClient) List(ctx context.Context) ([]*events.Session, error) {
	raw, err := s.c.get(ctx, "/api/sessions")
	if err != nil {
		return nil, err
	}
	var sessions []*events.Session
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, nil
}

// Get fetches a single session by id.
func (s *SessionClient) Get(ctx context.Context, id uuid.UUID) (*events.Session, error) {
	raw, err := s.c.get(ctx, "/api/sessions/"+id.String())
	if err != nil {
		return nil, err
	}
	return decodeSession(raw)
}

// Create starts a new session.
func (s *SessionClient) Create(ctx context.Context, req CreateRequest) (*events.Session, error) {
	raw, err := s.c.postJSON(ctx, "/api/sessions", req)
	if err != nil {
		return nil, err
	}
	return decodeSession(raw)
}

// Delete permanently removes a session and its backend resource.
func (s *SessionClient) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.c.delete(ctx, "/api/sessions/"+id.String())
	return err
}

// Archive moves a running session to the Archived state.
func (s *SessionClient) Archive(ctx context.Context, id uuid.UUID) (*events.Session, error) {
	raw, err := s.c.post(ctx, "/api/sessions/"+id.String()+"/archive")
	if err != nil {
		return nil, err
	}
	return decodeSession(raw)
}

// Restore brings an archived session back to Idle.
func (s *SessionClient) Restore(ctx context.Context, id uuid.UUID) (*events.Session, error) {
	raw, err := s.c.post(ctx, "/api/sessions/"+id.String()+"/restore")
	if err != nil {
		return nil, err
	}
	return decodeSession(raw)
}

// UpdateAccessMode changes a session's proxy access mode.
func (s *SessionClient) UpdateAccessMode(ctx context.Context, id uuid.UUID, mode backend.AccessMode) (*events.Session, error) {
	raw, err := s.c.postJSON(ctx, "/api/sessions/"+id.String()+"/access-mode", map[string]string{"accessMode": string(mode)})
	if err != nil {
		return nil, err
	}
	return decodeSession(raw)
}

func decodeSession(raw json.RawMessage) (*events.Session, error) {
	var sess events.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// RecentRepo mirrors internal/api/router.go's RecentRepo JSON shape.
type RecentRepo struct {
	Path     string `json:"path"`
	LastUsed string `json:"lastUsed"`
}

// ListRecentRepos returns the most recently used repo paths.
func (c *Client) ListRecentRepos(ctx context.Context) ([]RecentRepo, error) {
	raw, err := c.get(ctx, "/api/recent-repos")
	if err != nil {
		return nil, err
	}
	var repos []RecentRepo
	if err := json.Unmarshal(raw, &repos); err != nil {
		return nil, fmt.Errorf("decode recent repos: %w", err)
	}
	return repos, nil
}

// ReconcileReport mirrors internal/api/router.go's ReconcileReport.
type ReconcileReport struct {
	ObservationCount int    `json:"observationCount"`
	OrphanCount      int    `json:"orphanCount"`
	StartedAt        string `json:"startedAt"`
	FinishedAt       string `json:"finishedAt"`
}

// TriggerReconcile asks the daemon to run an on-demand reconciliation pass.
func (c *Client) TriggerReconcile(ctx context.Context) (*ReconcileReport, error) {
	raw, err := c.post(ctx, "/api/reconcile")
	if err != nil {
		return nil, err
	}
	var report ReconcileReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode reconcile report: %w", err)
	}
	return &report, nil
}
