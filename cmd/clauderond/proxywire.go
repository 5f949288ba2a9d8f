// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shepherdjerred/clauderon/internal/backend"
	"github.com/shepherdjerred/clauderon/internal/bus"
	"github.com/shepherdjerred/clauderon/internal/config"
	"github.com/shepherdjerred/clauderon/internal/events"
	"github.com/shepherdjerred/clauderon/internal/proxy"
	"github.com/shepherdjerred/clauderon/internal/proxyca"
	"github.com/shepherdjerred/clauderon/internal/store"
)

const defaultShutdownTimeout = 5 * time.Second

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// proxyRegistry starts and stops one interception proxy listener per live
// session with a proxy port, reacting to the session lifecycle over the
// event bus rather than being driven directly by session.Manager — this
// keeps internal/session free of an import on internal/proxy (spec.md
// §4.9's own note on avoiding that import cycle).
type proxyRegistry struct {
	mu        sync.Mutex
	listeners map[string]*proxy.Listener

	ca    *proxyca.CA
	creds proxy.CredentialSource
	audit proxy.AuditWriter
	st    *store.Store
}

func newProxyRegistry(ca *proxyca.CA, cfg config.ProxyConfig, st *store.Store) (*proxyRegistry, error) {
	var auditWriter proxy.AuditWriter = proxy.NopWriter{}
	if cfg.AuditLogPath != "" {
		fileLogger, err := proxy.NewFileAuditLogger(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("proxy audit log: %w", err)
		}
		auditWriter = fileLogger
	}

	return &proxyRegistry{
		listeners: map[string]*proxy.Listener{},
		ca:        ca,
		creds:     proxy.NewChain(cfg.SecretManagerCLI, cfg.SecretsDir),
		audit:     auditWriter,
		st:        st,
	}, nil
}

// subscribe wires the registry to the session lifecycle bus.
func (p *proxyRegistry) subscribe(ctx context.Context, b bus.Bus) error {
	_, err := b.SubscribeAsync("session.*", func(_ context.Context, ev bus.Event) error {
		switch ev.Topic {
		case "session.created", "session.updated":
			p.ensure(ctx, ev.SessionID)
		case "session.deleted":
			p.stop(ev.SessionID)
		}
		return nil
	}, 64)
	return err
}

func (p *proxyRegistry) ensure(ctx context.Context, sessionID string) {
	p.mu.Lock()
	existing, running := p.listeners[sessionID]
	p.mu.Unlock()

	id, err := parseUUID(sessionID)
	if err != nil {
		return
	}
	session, err := p.st.GetSession(id)
	if err != nil || session == nil || session.ProxyPort == 0 {
		return
	}

	if running {
		// A session.updated event can report an access-mode change for a
		// proxy that's already up; reload its filter table in place rather
		// than waiting for a daemon restart (spec §4.5).
		existing.SetAccessMode(backend.AccessMode(session.AccessMode))
		return
	}
	if session.Status != events.StatusRunning && session.Status != events.StatusIdle {
		return
	}

	ln, err := proxy.NewListener(
		fmt.Sprintf("127.0.0.1:%d", session.ProxyPort),
		sessionID,
		backend.AccessMode(session.AccessMode),
		p.ca,
		p.creds,
		p.audit,
	)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("proxy: failed to start session listener")
		return
	}

	p.mu.Lock()
	p.listeners[sessionID] = ln
	p.mu.Unlock()

	go func() {
		if err := ln.Serve(ctx); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("proxy: listener exited")
		}
	}()
}

func (p *proxyRegistry) stop(sessionID string) {
	p.mu.Lock()
	ln, ok := p.listeners[sessionID]
	delete(p.listeners, sessionID)
	p.mu.Unlock()
	if !ok {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	_ = ln.Shutdown(shutdownCtx)
}
