// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package console implements the daemon's PTY console layer: one console
// handle per session resource, wrapping that session's backend attach
// command in a local PTY so any number of clients can watch and, subject
// to the active-client policy, drive it. It is grounded on
// raphaeltm-simple-agent-manager's internal/pty package (Manager/Session/
// RingBuffer shape) and on the original Rust implementation's
// terminal_queries.rs for the query-answering behavior neither Go source
// repo has any analog for.
package console

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shepherdjerred/clauderon/internal/backend"
)

// Manager owns every live console session, keyed by the clauderon session
// ID it's attached to, adapted from raphaeltm…/internal/pty/manager.go's
// Manager but keyed by session UUID instead of a user-scoped session
// registry, since clauderon has exactly one console per coding-agent
// session rather than many ad hoc shells per user.
type Manager struct {
	mu       sync.Mutex
	consoles map[uuid.UUID]*handle
	backends map[string]backend.Backend
}

// handle wraps a session plus its attached-client bookkeeping.
type handle struct {
	mu       sync.Mutex
	console  *session
	clients  []uuid.UUID // FIFO order; clients[0] is the active client
	cancel   context.CancelFunc
}

// NewManager builds a console manager over the given backend registry.
func NewManager(backends map[string]backend.Backend) *Manager {
	return &Manager{consoles: map[uuid.UUID]*handle{}, backends: backends}
}

// AttachResult is returned to a newly attached client: the rendered
// current screen for immediate display, and a live feed of subsequent
// output chunks.
type AttachResult struct {
	Replay []byte
	Feed   <-chan []byte
	Active bool
}

// Attach registers clientID against sessionID's console, spawning the
// console (running backend's attach command) on first attach. The first
// client to attach becomes the active client; later clients are queued
// FIFO and become active when they send input, or in queue order when the
// active client detaches (spec §4.8).
func (m *Manager) Attach(ctx context.Context, sessionID uuid.UUID, backendKind, resourceID string, clientID uuid.UUID, rows, cols int) (*AttachResult, func(), error) {
	h, err := m.getOrCreate(ctx, sessionID, backendKind, resourceID, rows, cols)
	if err != nil {
		return nil, nil, err
	}

	h.mu.Lock()
	h.clients = append(h.clients, clientID)
	isActive := h.clients[0] == clientID
	h.mu.Unlock()

	feed, unsubscribe := h.console.broadcast.Subscribe()
	replay := h.console.Render()

	detach := func() {
		h.mu.Lock()
		h.clients = removeClient(h.clients, clientID)
		h.mu.Unlock()
		unsubscribe()
	}

	return &AttachResult{Replay: replay, Feed: feed, Active: isActive}, detach, nil
}

func (m *Manager) getOrCreate(ctx context.Context, sessionID uuid.UUID, backendKind, resourceID string, rows, cols int) (*handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.consoles[sessionID]; ok && h.console.IsRunning() {
		return h, nil
	}

	be, ok := m.backends[backendKind]
	if !ok {
		return nil, fmt.Errorf("console: unknown backend %q", backendKind)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s, err := newSession(ctx, be, resourceID, sessionConfig{
		SessionID: sessionID,
		Rows:      rows,
		Cols:      cols,
		OnClose: func() {
			log.Info().Str("session_id", sessionID.String()).Msg("console: backend process exited")
		},
	})
	if err != nil {
		cancel()
		return nil, err
	}
	s.startReader(readCtx)

	h := &handle{console: s, cancel: cancel}
	m.consoles[sessionID] = h
	return h, nil
}

// Input writes client input to the session's console. If the sender isn't
// the current active client, it is promoted to active immediately — the
// spec's "input from a non-active client promotes it" rule, with FIFO
// ordering broken only by recency of the promoting write.
func (m *Manager) Input(sessionID uuid.UUID, clientID uuid.UUID, data []byte) error {
	h, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if len(h.clients) > 0 && h.clients[0] != clientID {
		h.clients = promote(h.clients, clientID)
	}
	h.mu.Unlock()

	_, werr := h.console.Write(data)
	return werr
}

// Resize updates the console's PTY window size.
func (m *Manager) Resize(sessionID uuid.UUID, rows, cols int) error {
	h, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	return h.console.Resize(rows, cols)
}

// Signal delivers a signal to the console's attach process.
func (m *Manager) Signal(sessionID uuid.UUID, sig os.Signal) error {
	h, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	return h.console.Signal(sig)
}

// Close tears down sessionID's console entirely, for use when the owning
// session is archived or deleted.
func (m *Manager) Close(sessionID uuid.UUID) error {
	m.mu.Lock()
	h, ok := m.consoles[sessionID]
	if ok {
		delete(m.consoles, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	h.cancel()
	return h.console.Close()
}

// ActiveClient returns the currently active client for sessionID, if any.
func (m *Manager) ActiveClient(sessionID uuid.UUID) (uuid.UUID, bool) {
	h, err := m.lookup(sessionID)
	if err != nil || len(h.clients) == 0 {
		return uuid.Nil, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients[0], true
}

func (m *Manager) lookup(sessionID uuid.UUID) (*handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.consoles[sessionID]
	if !ok {
		return nil, fmt.Errorf("console: no active console for session %s", sessionID)
	}
	return h, nil
}

func removeClient(clients []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := clients[:0]
	for _, c := range clients {
		if c != id {
			out = append(out, c)
		}
	}
	return out
}

// promote moves id to the front of clients, preserving the relative FIFO
// order of everyone else.
func promote(clients []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(clients))
	out = append(out, id)
	for _, c := range clients {
		if c != id {
			out = append(out, c)
		}
	}
	return out
}
