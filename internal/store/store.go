// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package store is the durable, sqlite-backed event log and materialized
// session index (spec §4.1). Grounded on
// raphaeltm-simple-agent-manager/packages/vm-agent/internal/persistence/store.go:
// modernc.org/sqlite (pure Go, no cgo), WAL mode, versioned migrations. The
// writer is serialized to a single connection (SetMaxOpenConns(1)) so
// append-then-fold-then-upsert happens as one logical unit without relying
// on cross-process sqlite locking beyond WAL's own guarantees, matching the
// row-mapping idiom of the teacher's internal/cases/store.go and
// internal/claude/store.go.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrBusy is returned when the database is locked past the configured busy
// timeout. Callers receive it like any other store error; nothing in the
// daemon retries on it.
var ErrBusy = errors.New("store: database busy")

// Store is the durable event log plus its materialized session index.
type Store struct {
	db           *sql.DB
	worktreeRoot string
}

// Open creates or opens the sqlite database at dbPath and applies pending
// migrations. worktreeRoot is used to derive Session.WorktreePath from
// Session.Name after each fold, since that field isn't carried in any event
// payload (spec §3).
func Open(dbPath, worktreeRoot string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Serialize writers on a single connection: a WAL-mode sqlite file
	// supports one writer at a time, and append-then-upsert must observe
	// its own write before the next caller's read.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db, worktreeRoot: worktreeRoot}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// isBusyErr reports whether err is sqlite's "database is locked"/"busy"
// condition, surfaced as ErrBusy to callers.
func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func wrapBusy(err error) error {
	if isBusyErr(err) {
		return ErrBusy
	}
	return err
}

// timeLayout is RFC 3339 with a fixed nine-digit fraction, so stored
// timestamps sort by time when ordered as text (time.RFC3339Nano drops
// trailing zeros and does not).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func nowUTC() string {
	return time.Now().UTC().Format(timeLayout)
}
