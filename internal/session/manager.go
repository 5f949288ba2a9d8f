// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session implements the lifecycle state machine (spec §4.5): the
// create_session compensating-action protocol and the other session
// operations (archive/restore/delete/update_*). Grounded on teacher
// internal/service/manager.go's lock-then-release-before-I/O discipline
// and internal/worktree/manager.go's error-wrapping style, generalized
// from service start/stop to session creation's multi-resource rollback.
package session

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shepherdjerred/clauderon/internal/backend"
	"github.com/shepherdjerred/clauderon/internal/bus"
	"github.com/shepherdjerred/clauderon/internal/events"
	"github.com/shepherdjerred/clauderon/internal/portalloc"
	"github.com/shepherdjerred/clauderon/internal/worktree"
)

// MaxNameCollisionRetries bounds how many randomized-suffix retries
// create_session attempts before giving up (spec §4.5 step 1).
const MaxNameCollisionRetries = 8

// Errors returned by create_session's named failure modes (spec §4.5).
var (
	ErrNameGenerationFailed    = fmt.Errorf("session: could not generate a unique name")
	ErrWorktreeCreationFailed  = fmt.Errorf("session: worktree creation failed")
	ErrBackendStartFailed      = fmt.Errorf("session: backend create failed")
	ErrRepoPathInvalid         = fmt.Errorf("session: repo_path does not exist or is not a git repository")
	ErrSessionNotFound         = fmt.Errorf("session: not found")
	ErrPortAllocationFailed    = fmt.Errorf("session: no proxy port available")
)

// Store is the subset of *store.Store the manager depends on, so tests can
// substitute a fake.
type Store interface {
	AppendEvents(sessionID uuid.UUID, evs []events.Event) ([]events.Event, error)
	GetSession(id uuid.UUID) (*events.Session, error)
	GetSessionByName(name string) (*events.Session, error)
	ListSessions() ([]*events.Session, error)
	RecordRecentRepo(repoPath string) error
	SetAccessMode(id uuid.UUID, mode events.AccessMode) error
}

// RepoValidator checks that a path exists and is a git repository. A
// dedicated interface keeps manager.go testable without touching the
// filesystem.
type RepoValidator interface {
	IsGitRepo(path string) bool
}

// CreateRequest is create_session's request struct (spec §6): every field
// enumerated, defaults applied by the caller, no positional args.
type CreateRequest struct {
	Name                string
	RepoPath            string
	Subdirectory        string
	Branch              string
	BackendKind         string
	Agent               string
	InitialPrompt       string
	AccessMode          backend.AccessMode
	DangerousSkipSafety bool
	AutoDestroyOnStop   bool
	ProxyEnabled        bool
	ImageOverrides      map[string]string
	ResourceLimits      map[string]string
}

// Manager implements the session lifecycle operations.
type Manager struct {
	store     Store
	bus       bus.Bus
	worktrees *worktree.Driver
	ports     *portalloc.Allocator
	backends  map[string]backend.Backend
	repos     RepoValidator
	worktreeRoot string
}

// NewManager builds a Manager. backends maps a backend kind name ("tmux",
// "container", "pod", "sprite") to its Backend implementation.
func NewManager(st Store, eventBus bus.Bus, worktrees *worktree.Driver, ports *portalloc.Allocator, backends map[string]backend.Backend, repos RepoValidator, worktreeRoot string) *Manager {
	return &Manager{
		store:        st,
		bus:          eventBus,
		worktrees:    worktrees,
		ports:        ports,
		backends:     backends,
		repos:        repos,
		worktreeRoot: worktreeRoot,
	}
}

// CreateSession runs the create_session protocol of spec §4.5: validate,
// allocate a name and (if networked) a port, append SessionCreated, create
// the worktree, start the backend, and append BackendIdSet +
// StatusChanged{Creating→Running}. A failure from encoding SessionCreated
// through backend creation releases the port and, once SessionCreated is
// appended, rolls the session back with SessionDeleted; a failure of the
// final append or re-read is returned without rollback.
func (m *Manager) CreateSession(ctx context.Context, req CreateRequest) (*events.Session, error) {
	if req.RepoPath == "" || !m.repos.IsGitRepo(req.RepoPath) {
		return nil, ErrRepoPathInvalid
	}

	be, ok := m.backends[req.BackendKind]
	if !ok {
		return nil, fmt.Errorf("session: unknown backend kind %q", req.BackendKind)
	}

	name, err := m.claimName(req.Name)
	if err != nil {
		return nil, err
	}

	var port int
	sessionID := uuid.New()
	if req.ProxyEnabled && !be.IsRemote() {
		port, err = m.ports.Allocate(sessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPortAllocationFailed, err)
		}
	}

	branch := req.Branch
	if branch == "" {
		branch = name
	}

	created, err := events.New(sessionID, events.KindSessionCreated, events.SessionCreatedPayload{
		Name:                name,
		RepoPath:            req.RepoPath,
		Subdirectory:        req.Subdirectory,
		Branch:              branch,
		Backend:             req.BackendKind,
		Agent:               req.Agent,
		InitialPrompt:       req.InitialPrompt,
		AccessMode:          events.AccessMode(req.AccessMode),
		DangerousSkipSafety: req.DangerousSkipSafety,
		AutoDestroyOnStop:   req.AutoDestroyOnStop,
	})
	if err != nil {
		m.releasePort(port)
		return nil, fmt.Errorf("session: encode SessionCreated: %w", err)
	}
	if _, err := m.store.AppendEvents(sessionID, []events.Event{created}); err != nil {
		m.releasePort(port)
		return nil, fmt.Errorf("session: append SessionCreated: %w", err)
	}

	worktreePath := filepath.Join(m.worktreeRoot, name)
	if err := m.worktrees.CreateWorktree(ctx, req.RepoPath, worktreePath, branch); err != nil {
		m.compensate(sessionID, port, fmt.Sprintf("worktree creation failed: %v", err))
		return nil, fmt.Errorf("%w: %w", ErrWorktreeCreationFailed, err)
	}

	resourceID, err := be.Create(ctx, name, worktreePath, req.InitialPrompt, backend.CreateOptions{
		SessionID:           sessionID.String(),
		ProxyPort:           port,
		GitIdentity:         req.Agent,
		ImageOverrides:      req.ImageOverrides,
		ResourceLimits:      req.ResourceLimits,
		DangerousSkipSafety: req.DangerousSkipSafety,
		AccessMode:          req.AccessMode,
	})
	if err != nil {
		if derr := m.worktrees.DeleteWorktree(ctx, req.RepoPath, worktreePath); derr != nil {
			log.Warn().Err(derr).Str("session", name).Msg("compensating worktree delete failed")
		}
		m.compensate(sessionID, port, fmt.Sprintf("backend create failed: %v", err))
		return nil, fmt.Errorf("%w: %w", ErrBackendStartFailed, err)
	}

	backendSet, _ := events.New(sessionID, events.KindBackendIDSet, events.BackendIDSetPayload{ID: resourceID})
	statusChanged, _ := events.New(sessionID, events.KindStatusChanged, events.StatusChangedPayload{
		Old: string(events.StatusCreating), New: string(events.StatusRunning),
	})
	if _, err := m.store.AppendEvents(sessionID, []events.Event{backendSet, statusChanged}); err != nil {
		return nil, fmt.Errorf("session: append BackendIdSet/StatusChanged: %w", err)
	}

	if err := m.store.RecordRecentRepo(req.RepoPath); err != nil {
		log.Warn().Err(err).Str("repo", req.RepoPath).Msg("failed to record recent repo")
	}

	session, err := m.store.GetSession(sessionID)
	if err != nil || session == nil {
		return nil, fmt.Errorf("session: re-read after create: %w", err)
	}

	m.publish(ctx, "session.created", session)
	return session, nil
}

// claimName sanitizes/generates the session's name, retrying with a
// randomized suffix on collision up to MaxNameCollisionRetries times (spec
// §4.5: "the unsuffixed name wins for the first claimant").
func (m *Manager) claimName(requested string) (string, error) {
	candidate := Sanitize(requested)
	if existing, _ := m.store.GetSessionByName(candidate); existing == nil {
		return candidate, nil
	}

	for i := 0; i < MaxNameCollisionRetries; i++ {
		suggestion, err := Suggest(candidate)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrNameGenerationFailed, err)
		}
		if existing, _ := m.store.GetSessionByName(suggestion); existing == nil {
			return suggestion, nil
		}
	}
	return "", ErrNameGenerationFailed
}

// compensate appends SessionDeleted and releases port, per the rollback
// steps of spec §4.5 steps 4 and 5.
func (m *Manager) compensate(sessionID uuid.UUID, port int, reason string) {
	deleted, err := events.New(sessionID, events.KindSessionDeleted, events.SessionDeletedPayload{Reason: reason})
	if err == nil {
		if _, err := m.store.AppendEvents(sessionID, []events.Event{deleted}); err != nil {
			log.Error().Err(err).Str("session", sessionID.String()).Msg("failed to append compensating SessionDeleted")
		}
	}
	m.releasePort(port)
}

func (m *Manager) releasePort(port int) {
	if port != 0 {
		m.ports.Release(port)
	}
}

// ArchiveSession transitions status → Archived, keeping all resources.
func (m *Manager) ArchiveSession(ctx context.Context, id uuid.UUID) (*events.Session, error) {
	session, err := m.requireSession(id)
	if err != nil {
		return nil, err
	}
	archived, _ := events.New(id, events.KindSessionArchived, nil)
	if _, err := m.store.AppendEvents(id, []events.Event{archived}); err != nil {
		return nil, fmt.Errorf("session: append SessionArchived: %w", err)
	}
	session, err = m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	m.publish(ctx, "session.updated", session)
	return session, nil
}

// RestoreSession transitions status Archived → Idle and checks whether the
// backend resource still exists. A missing resource is only logged as a
// warning: the session is not marked Missing here and its status stays Idle.
func (m *Manager) RestoreSession(ctx context.Context, id uuid.UUID) (*events.Session, error) {
	session, err := m.requireSession(id)
	if err != nil {
		return nil, err
	}

	restored, _ := events.New(id, events.KindSessionRestored, nil)
	if _, err := m.store.AppendEvents(id, []events.Event{restored}); err != nil {
		return nil, fmt.Errorf("session: append SessionRestored: %w", err)
	}

	if be, ok := m.backends[session.Backend]; ok {
		exists, _ := be.Exists(ctx, session.BackendResourceID)
		if !exists {
			log.Warn().Str("session", session.Name).Msg("restored session's backend resource is missing")
		}
	}

	session, err = m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	m.publish(ctx, "session.updated", session)
	return session, nil
}

// DeleteSession deletes the backend resource (best effort), deletes the
// worktree (best effort), releases the port, appends SessionDeleted, and
// removes the materialized row — per spec §4.5's delete_session contract.
func (m *Manager) DeleteSession(ctx context.Context, id uuid.UUID) error {
	session, err := m.requireSession(id)
	if err != nil {
		return err
	}

	if be, ok := m.backends[session.Backend]; ok && session.BackendResourceID != "" {
		if err := be.Delete(ctx, session.BackendResourceID); err != nil {
			log.Warn().Err(err).Str("session", session.Name).Msg("best-effort backend delete failed")
		}
	}
	if err := m.worktrees.DeleteWorktree(ctx, session.RepoPath, session.WorktreePath); err != nil {
		log.Warn().Err(err).Str("session", session.Name).Msg("best-effort worktree delete failed")
	}
	if session.ProxyPort != 0 {
		m.ports.Release(session.ProxyPort)
	}

	deleted, _ := events.New(id, events.KindSessionDeleted, events.SessionDeletedPayload{Reason: "deleted by request"})
	if _, err := m.store.AppendEvents(id, []events.Event{deleted}); err != nil {
		return fmt.Errorf("session: append SessionDeleted: %w", err)
	}

	m.publish(ctx, "session.deleted", session)
	return nil
}

// UpdateAccessMode rewrites the session's access-mode policy directly on
// the materialized row (spec §3's event kinds don't cover access mode — it
// is an operator-set policy field, not an agent-observed state change, so
// it follows ReconcileAttempts's direct-write precedent rather than going
// through the event log). If the session has a running proxy, the caller
// is responsible for signaling it to reload its filter table (spec §4.5) —
// that wiring lives in the proxy package, not here, to avoid an import
// cycle.
func (m *Manager) UpdateAccessMode(ctx context.Context, id uuid.UUID, mode backend.AccessMode) (*events.Session, error) {
	session, err := m.requireSession(id)
	if err != nil {
		return nil, err
	}
	if session.AccessMode == events.AccessMode(mode) {
		return session, nil
	}
	if err := m.store.SetAccessMode(id, events.AccessMode(mode)); err != nil {
		return nil, fmt.Errorf("session: update access mode: %w", err)
	}
	session, err = m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	m.publish(ctx, "session.updated", session)
	return session, nil
}

// UpdateClaudeStatus emits ClaudeStatusChanged only if the value changed,
// called from hook ingest (spec §4.10).
func (m *Manager) UpdateClaudeStatus(ctx context.Context, id uuid.UUID, status events.ClaudeWorkingStatus) error {
	session, err := m.requireSession(id)
	if err != nil {
		return err
	}
	if session.ClaudeStatus == status {
		return nil
	}
	ev, _ := events.New(id, events.KindClaudeStatusChanged, events.ClaudeStatusChangedPayload{
		Old: string(session.ClaudeStatus), New: string(status),
	})
	_, err = m.store.AppendEvents(id, []events.Event{ev})
	return err
}

// UpdatePRCheckStatus emits CheckStatusChanged only if the value changed,
// driven by the reconciler's forge-CLI collaborator (spec §4.7).
func (m *Manager) UpdatePRCheckStatus(ctx context.Context, id uuid.UUID, status events.CheckStatus) error {
	session, err := m.requireSession(id)
	if err != nil {
		return err
	}
	if session.CheckStatus == status {
		return nil
	}
	ev, _ := events.New(id, events.KindCheckStatusChanged, events.CheckStatusChangedPayload{
		Old: string(session.CheckStatus), New: string(status),
	})
	_, err = m.store.AppendEvents(id, []events.Event{ev})
	return err
}

// UpdateConflictStatus emits ConflictStatusChanged only if the value changed.
func (m *Manager) UpdateConflictStatus(ctx context.Context, id uuid.UUID, isConflict bool) error {
	session, err := m.requireSession(id)
	if err != nil {
		return err
	}
	if session.IsConflict == isConflict {
		return nil
	}
	ev, _ := events.New(id, events.KindConflictChanged, events.ConflictChangedPayload{IsConflict: isConflict})
	_, err = m.store.AppendEvents(id, []events.Event{ev})
	return err
}

// UpdateWorktreeDirty emits WorktreeStatusChanged only if the value changed.
func (m *Manager) UpdateWorktreeDirty(ctx context.Context, id uuid.UUID, isDirty bool) error {
	session, err := m.requireSession(id)
	if err != nil {
		return err
	}
	if session.IsWorktreeDirty == isDirty {
		return nil
	}
	ev, _ := events.New(id, events.KindWorktreeDirtyChanged, events.WorktreeDirtyChangedPayload{IsDirty: isDirty})
	_, err = m.store.AppendEvents(id, []events.Event{ev})
	return err
}

// GetSession looks up a session by id, for the control plane's read path.
func (m *Manager) GetSession(id uuid.UUID) (*events.Session, error) {
	return m.requireSession(id)
}

// ListSessions returns every materialized session, for the control plane's
// list path.
func (m *Manager) ListSessions() ([]*events.Session, error) {
	return m.store.ListSessions()
}

// GetSessionByName looks up a session by its unique display name, for the
// control plane's GetSessionIdByName operation.
func (m *Manager) GetSessionByName(name string) (*events.Session, error) {
	return m.store.GetSessionByName(name)
}

func (m *Manager) requireSession(id uuid.UUID) (*events.Session, error) {
	session, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (m *Manager) publish(ctx context.Context, topic string, session *events.Session) {
	if m.bus == nil || session == nil {
		return
	}
	if err := m.bus.Publish(ctx, bus.Event{
		Topic:     topic,
		SessionID: session.ID.String(),
		Payload: map[string]any{
			"name":   session.Name,
			"status": string(session.Status),
		},
	}); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to publish session event")
	}
}
