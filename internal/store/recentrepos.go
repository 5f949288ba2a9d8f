// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"time"
)

// RecentRepo is a repo path the daemon has created at least one session
// against, most recently used first.
type RecentRepo struct {
	RepoPath   string
	LastUsedAt time.Time
}

// RecordRecentRepo upserts repoPath's last-used timestamp to now. Called by
// the session manager whenever create_session succeeds, so the client's
// repo picker can default to recently used paths.
func (s *Store) RecordRecentRepo(repoPath string) error {
	_, err := s.db.Exec(`
		INSERT INTO recent_repos (repo_path, last_used_at) VALUES (?, ?)
		ON CONFLICT(repo_path) DO UPDATE SET last_used_at = excluded.last_used_at
	`, repoPath, nowUTC())
	return wrapBusy(err)
}

// ListRecentRepos returns up to limit repo paths, most recently used first.
// limit <= 0 means no limit.
func (s *Store) ListRecentRepos(limit int) ([]RecentRepo, error) {
	query := "SELECT repo_path, last_used_at FROM recent_repos ORDER BY last_used_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapBusy(fmt.Errorf("query recent repos: %w", err))
	}
	defer rows.Close()

	var out []RecentRepo
	for rows.Next() {
		var repoPath, lastUsedAt string
		if err := rows.Scan(&repoPath, &lastUsedAt); err != nil {
			return nil, fmt.Errorf("scan recent repo: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, lastUsedAt)
		if err != nil {
			return nil, fmt.Errorf("parse last_used_at: %w", err)
		}
		out = append(out, RecentRepo{RepoPath: repoPath, LastUsedAt: t})
	}
	return out, rows.Err()
}
