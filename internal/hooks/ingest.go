// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package hooks serves the daemon's hook-ingest HTTP endpoint (spec.md
// §4.10): an unauthenticated loopback POST target that coding-agent
// lifecycle hooks call directly, mapping each hook kind to a
// ClaudeWorkingStatus transition and pinging the reconciler so the status
// change is visible without waiting for the next poll tick. Grounded on
// teacher internal/api/handlers' JSON-body-decode-then-dispatch shape,
// adapted from a gorilla/mux-routed handler to a standalone bare
// net/http.Server since this endpoint intentionally has no auth
// middleware, no CORS, and no version negotiation.
package hooks

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shepherdjerred/clauderon/internal/events"
)

// Kind is the hook lifecycle event name the agent runtime reports.
type Kind string

const (
	UserPromptSubmit  Kind = "UserPromptSubmit"
	PreToolUse        Kind = "PreToolUse"
	PermissionRequest Kind = "PermissionRequest"
	Stop              Kind = "Stop"
	IdlePrompt        Kind = "IdlePrompt"
)

var statusForKind = map[Kind]events.ClaudeWorkingStatus{
	UserPromptSubmit:  events.ClaudeWorking,
	PreToolUse:        events.ClaudeWorking,
	PermissionRequest: events.ClaudeWaitingApproval,
	Stop:              events.ClaudeWaitingInput,
	IdlePrompt:        events.ClaudeIdle,
}

// SessionStatusUpdater is satisfied by *session.Manager.
type SessionStatusUpdater interface {
	UpdateClaudeStatus(ctx context.Context, id uuid.UUID, status events.ClaudeWorkingStatus) error
}

// Pinger is satisfied by *reconcile.Reconciler.
type Pinger interface {
	Ping(id uuid.UUID)
}

// Handler serves POST requests from coding-agent hooks.
type Handler struct {
	Sessions SessionStatusUpdater
	Pinger   Pinger
	Log      zerolog.Logger
}

// NewHandler builds a Handler that logs through log as given; the daemon
// passes a logger already tagged component=hooks.
func NewHandler(sessions SessionStatusUpdater, pinger Pinger, log zerolog.Logger) *Handler {
	return &Handler{Sessions: sessions, Pinger: pinger, Log: log}
}

// request is the JSON body a hook call sends.
type request struct {
	SessionID string `json:"session_id"`
	Kind      Kind   `json:"kind"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		h.Log.Debug().Str("session_id", req.SessionID).Msg("hooks: malformed session id, dropped")
		w.WriteHeader(http.StatusOK)
		return
	}

	status, ok := statusForKind[req.Kind]
	if !ok {
		h.Log.Debug().Str("kind", string(req.Kind)).Msg("hooks: unknown hook kind, dropped")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.Sessions.UpdateClaudeStatus(r.Context(), id, status); err != nil {
		h.Log.Debug().Err(err).Str("session_id", req.SessionID).Msg("hooks: unknown session, dropped")
		w.WriteHeader(http.StatusOK)
		return
	}

	h.Pinger.Ping(id)
	w.WriteHeader(http.StatusOK)
}
