// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import "database/sql"

// migrate applies pending schema migrations in order, recording each one's
// version in schema_version so restarts don't reapply them. Structure and
// naming follow raphaeltm-simple-agent-manager's
// internal/persistence/store.go migrate()/migrateVN() pattern.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return err
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return err
	}

	migrations := []func(*sql.DB) error{
		migrateV1,
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](s.db); err != nil {
			return err
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return err
		}
	}

	return nil
}

// migrateV1 creates the event log, the materialized sessions table, and the
// recent-repos table used by the session-creation prompt's repo picker.
func migrateV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			kind       TEXT NOT NULL,
			payload    TEXT NOT NULL,
			timestamp  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, id);

		CREATE TABLE IF NOT EXISTS sessions (
			id                    TEXT PRIMARY KEY,
			name                  TEXT NOT NULL UNIQUE,
			repo_path             TEXT NOT NULL,
			subdirectory          TEXT NOT NULL DEFAULT '',
			branch                TEXT NOT NULL DEFAULT '',
			initial_prompt        TEXT NOT NULL DEFAULT '',
			agent                 TEXT NOT NULL DEFAULT '',
			backend               TEXT NOT NULL DEFAULT '',
			worktree_path         TEXT NOT NULL DEFAULT '',
			backend_resource_id   TEXT NOT NULL DEFAULT '',
			proxy_port            INTEGER NOT NULL DEFAULT 0,
			status                TEXT NOT NULL,
			claude_status         TEXT NOT NULL DEFAULT '',
			check_status          TEXT NOT NULL DEFAULT '',
			pr_url                TEXT NOT NULL DEFAULT '',
			is_conflict           INTEGER NOT NULL DEFAULT 0,
			is_worktree_dirty     INTEGER NOT NULL DEFAULT 0,
			access_mode           TEXT NOT NULL DEFAULT 'ReadWrite',
			dangerous_skip_safety INTEGER NOT NULL DEFAULT 0,
			auto_destroy_on_stop  INTEGER NOT NULL DEFAULT 0,
			reconcile_attempts    INTEGER NOT NULL DEFAULT 0,
			last_reconcile_error  TEXT NOT NULL DEFAULT '',
			last_reconcile_at     TEXT NOT NULL DEFAULT '',
			created_at            TEXT NOT NULL,
			updated_at            TEXT NOT NULL,
			archived_at           TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

		CREATE TABLE IF NOT EXISTS recent_repos (
			repo_path    TEXT PRIMARY KEY,
			last_used_at TEXT NOT NULL
		);
	`)
	return err
}
