// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/shepherdjerred/clauderon/internal/events"
)

// AppendEvents persists evs for sessionID in order, assigning each a
// MonotonicID and (if zero) a Timestamp, then replays the session's full
// event history and upserts the materialized sessions row in the same
// transaction — so a reader never observes an event without its
// corresponding materialized-row update, or vice versa. Returns the
// persisted events (with MonotonicID/Timestamp filled in).
//
// If the session's event log now contains SessionDeleted, the materialized
// row is removed instead of upserted, mirroring events.Fold's (nil, false)
// result for a deleted session.
func (s *Store) AppendEvents(sessionID uuid.UUID, evs []events.Event) ([]events.Event, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, wrapBusy(err)
	}
	defer tx.Rollback()

	persisted := make([]events.Event, 0, len(evs))
	for _, ev := range evs {
		ev.SessionID = sessionID
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now()
		}

		res, err := tx.Exec(
			"INSERT INTO events (session_id, kind, payload, timestamp) VALUES (?, ?, ?, ?)",
			sessionID.String(), string(ev.Kind), string(ev.Payload), ev.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return nil, wrapBusy(fmt.Errorf("insert event: %w", err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read event id: %w", err)
		}
		ev.MonotonicID = id
		persisted = append(persisted, ev)
	}

	all, err := replayEventsTx(tx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("replay after append: %w", err)
	}

	session, ok := events.Fold(all)
	if !ok {
		if _, err := tx.Exec("DELETE FROM sessions WHERE id = ?", sessionID.String()); err != nil {
			return nil, fmt.Errorf("remove deleted session row: %w", err)
		}
	} else {
		if s.worktreeRoot != "" {
			session.WorktreePath = filepath.Join(s.worktreeRoot, session.Name)
		}
		if err := upsertSession(tx, session); err != nil {
			return nil, fmt.Errorf("upsert session row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapBusy(fmt.Errorf("commit: %w", err))
	}

	return persisted, nil
}

// ReplayEvents returns sessionID's full event history in monotonic order.
func (s *Store) ReplayEvents(sessionID uuid.UUID) ([]events.Event, error) {
	rows, err := s.db.Query(
		"SELECT id, session_id, kind, payload, timestamp FROM events WHERE session_id = ? ORDER BY id ASC",
		sessionID.String(),
	)
	if err != nil {
		return nil, wrapBusy(fmt.Errorf("query events: %w", err))
	}
	defer rows.Close()
	return scanEvents(rows)
}

func replayEventsTx(tx *sql.Tx, sessionID uuid.UUID) ([]events.Event, error) {
	rows, err := tx.Query(
		"SELECT id, session_id, kind, payload, timestamp FROM events WHERE session_id = ? ORDER BY id ASC",
		sessionID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]events.Event, error) {
	var out []events.Event
	for rows.Next() {
		var (
			id        int64
			sessionID string
			kind      string
			payload   string
			timestamp string
		)
		if err := rows.Scan(&id, &sessionID, &kind, &payload, &timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		sid, err := uuid.Parse(sessionID)
		if err != nil {
			return nil, fmt.Errorf("parse session id: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		out = append(out, events.Event{
			MonotonicID: id,
			SessionID:   sid,
			Kind:        events.Kind(kind),
			Payload:     json.RawMessage(payload),
			Timestamp:   ts,
		})
	}
	return out, rows.Err()
}
