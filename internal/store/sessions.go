// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shepherdjerred/clauderon/internal/events"
)

// GetSession returns the materialized row for id, or (nil, nil) if absent
// (deleted or never created).
func (s *Store) GetSession(id uuid.UUID) (*events.Session, error) {
	row := s.db.QueryRow(sessionSelectQuery+" WHERE id = ?", id.String())
	session, err := scanSessionRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapBusy(err)
	}
	return session, nil
}

// GetSessionByName returns the materialized row with the given name, or
// (nil, nil) if absent. Names are unique among non-deleted sessions.
func (s *Store) GetSessionByName(name string) (*events.Session, error) {
	row := s.db.QueryRow(sessionSelectQuery+" WHERE name = ?", name)
	session, err := scanSessionRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapBusy(err)
	}
	return session, nil
}

// ListSessions returns every materialized session row, most recently
// created first.
func (s *Store) ListSessions() ([]*events.Session, error) {
	rows, err := s.db.Query(sessionSelectQuery + " ORDER BY created_at DESC")
	if err != nil {
		return nil, wrapBusy(fmt.Errorf("query sessions: %w", err))
	}
	defer rows.Close()

	var out []*events.Session
	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// SetAccessMode updates the access-mode policy column directly on the
// materialized row. Access mode is an operator-set policy, not an
// agent-observed state transition, so (like ReconcileAttempts) it bypasses
// the event log rather than being folded from one.
func (s *Store) SetAccessMode(id uuid.UUID, mode events.AccessMode) error {
	_, err := s.db.Exec(
		"UPDATE sessions SET access_mode = ?, updated_at = ? WHERE id = ?",
		string(mode), nowUTC(), id.String(),
	)
	return wrapBusy(err)
}

// UpdateReconcileState updates the reconciler-owned columns directly on the
// materialized row, since they are not event-derived (spec §4.7: the
// reconciler tracks attempt counts and last-error outside the event log).
func (s *Store) UpdateReconcileState(id uuid.UUID, attempts int, lastErr string) error {
	_, err := s.db.Exec(
		"UPDATE sessions SET reconcile_attempts = ?, last_reconcile_error = ?, last_reconcile_at = ? WHERE id = ?",
		attempts, lastErr, nowUTC(), id.String(),
	)
	return wrapBusy(err)
}

const sessionSelectQuery = `
	SELECT id, name, repo_path, subdirectory, branch, initial_prompt, agent, backend,
	       worktree_path, backend_resource_id, proxy_port, status, claude_status,
	       check_status, pr_url, is_conflict, is_worktree_dirty, access_mode,
	       dangerous_skip_safety, auto_destroy_on_stop, reconcile_attempts,
	       last_reconcile_error, last_reconcile_at, created_at, updated_at, archived_at
	FROM sessions`

// rowScanner abstracts over *sql.Row and *sql.Rows so scanSessionRow works
// for both GetSession's single-row path and ListSessions's iteration.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSessionRow(row rowScanner) (*events.Session, error) {
	var (
		id                string
		name              string
		repoPath          string
		subdirectory      string
		branch            string
		initialPrompt     string
		agent             string
		backend           string
		worktreePath      string
		backendResourceID string
		proxyPort         int
		status            string
		claudeStatus      string
		checkStatus       string
		prURL             string
		isConflict        bool
		isWorktreeDirty   bool
		accessMode        string
		dangerousSkip     bool
		autoDestroy       bool
		reconcileAttempts int
		lastReconcileErr  string
		lastReconcileAt   string
		createdAt         string
		updatedAt         string
		archivedAt        sql.NullString
	)

	if err := row.Scan(
		&id, &name, &repoPath, &subdirectory, &branch, &initialPrompt, &agent, &backend,
		&worktreePath, &backendResourceID, &proxyPort, &status, &claudeStatus,
		&checkStatus, &prURL, &isConflict, &isWorktreeDirty, &accessMode,
		&dangerousSkip, &autoDestroy, &reconcileAttempts,
		&lastReconcileErr, &lastReconcileAt, &createdAt, &updatedAt, &archivedAt,
	); err != nil {
		return nil, err
	}

	sid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	createdTime, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedTime, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	session := &events.Session{
		ID:                  sid,
		Name:                name,
		RepoPath:            repoPath,
		Subdirectory:        subdirectory,
		Branch:              branch,
		InitialPrompt:       initialPrompt,
		Agent:               agent,
		Backend:             backend,
		WorktreePath:        worktreePath,
		BackendResourceID:   backendResourceID,
		ProxyPort:           proxyPort,
		Status:              events.Status(status),
		ClaudeStatus:        events.ClaudeWorkingStatus(claudeStatus),
		CheckStatus:         events.CheckStatus(checkStatus),
		PRUrl:               prURL,
		IsConflict:          isConflict,
		IsWorktreeDirty:     isWorktreeDirty,
		AccessMode:          events.AccessMode(accessMode),
		DangerousSkipSafety: dangerousSkip,
		AutoDestroyOnStop:   autoDestroy,
		ReconcileAttempts:   reconcileAttempts,
		LastReconcileError:  lastReconcileErr,
		CreatedAt:           createdTime,
		UpdatedAt:           updatedTime,
	}

	if lastReconcileAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, lastReconcileAt); err == nil {
			session.LastReconcileAt = t
		}
	}
	if archivedAt.Valid && archivedAt.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, archivedAt.String); err == nil {
			session.ArchivedAt = &t
		}
	}

	return session, nil
}

func upsertSession(tx *sql.Tx, session *events.Session) error {
	var archivedAt any
	if session.ArchivedAt != nil {
		archivedAt = session.ArchivedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := tx.Exec(`
		INSERT INTO sessions (
			id, name, repo_path, subdirectory, branch, initial_prompt, agent, backend,
			worktree_path, backend_resource_id, proxy_port, status, claude_status,
			check_status, pr_url, is_conflict, is_worktree_dirty, access_mode,
			dangerous_skip_safety, auto_destroy_on_stop, reconcile_attempts,
			last_reconcile_error, last_reconcile_at, created_at, updated_at, archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			repo_path = excluded.repo_path,
			subdirectory = excluded.subdirectory,
			branch = excluded.branch,
			initial_prompt = excluded.initial_prompt,
			agent = excluded.agent,
			backend = excluded.backend,
			worktree_path = excluded.worktree_path,
			backend_resource_id = excluded.backend_resource_id,
			proxy_port = excluded.proxy_port,
			status = excluded.status,
			claude_status = excluded.claude_status,
			check_status = excluded.check_status,
			pr_url = excluded.pr_url,
			is_conflict = excluded.is_conflict,
			is_worktree_dirty = excluded.is_worktree_dirty,
			updated_at = excluded.updated_at,
			archived_at = excluded.archived_at
	`,
		session.ID.String(), session.Name, session.RepoPath, session.Subdirectory, session.Branch,
		session.InitialPrompt, session.Agent, session.Backend, session.WorktreePath,
		session.BackendResourceID, session.ProxyPort, string(session.Status), string(session.ClaudeStatus),
		string(session.CheckStatus), session.PRUrl, session.IsConflict, session.IsWorktreeDirty,
		string(session.AccessMode), session.DangerousSkipSafety, session.AutoDestroyOnStop,
		session.ReconcileAttempts, session.LastReconcileError, "",
		session.CreatedAt.UTC().Format(timeLayout), session.UpdatedAt.UTC().Format(timeLayout),
		archivedAt,
	)
	return err
}
