// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store_test

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/events"
	"github.com/shepherdjerred/clauderon/internal/store"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "clauderon.sqlite")
}

func TestOpenAndClose(t *testing.T) {
	s, err := store.Open(tempDBPath(t), "")
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestAppendEventsMaterializesSession(t *testing.T) {
	s, err := store.Open(tempDBPath(t), "/worktrees")
	require.NoError(t, err)
	defer s.Close()

	sid := uuid.New()
	created, err := events.New(sid, events.KindSessionCreated, events.SessionCreatedPayload{
		Name:     "feat-x",
		RepoPath: "/repos/demo",
		Branch:   "feat-x",
		Backend:  "tmux",
		Agent:    "claude",
	})
	require.NoError(t, err)

	persisted, err := s.AppendEvents(sid, []events.Event{created})
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, int64(1), persisted[0].MonotonicID)

	session, err := s.GetSession(sid)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "feat-x", session.Name)
	assert.Equal(t, events.StatusCreating, session.Status)
	assert.Equal(t, filepath.Join("/worktrees", "feat-x"), session.WorktreePath)
}

func TestAppendEventsUpdatesMaterializedStatus(t *testing.T) {
	s, err := store.Open(tempDBPath(t), "")
	require.NoError(t, err)
	defer s.Close()

	sid := uuid.New()
	created, _ := events.New(sid, events.KindSessionCreated, events.SessionCreatedPayload{Name: "feat-x", RepoPath: "/r"})
	_, err = s.AppendEvents(sid, []events.Event{created})
	require.NoError(t, err)

	statusChanged, _ := events.New(sid, events.KindStatusChanged, events.StatusChangedPayload{Old: "Creating", New: "Running"})
	_, err = s.AppendEvents(sid, []events.Event{statusChanged})
	require.NoError(t, err)

	session, err := s.GetSession(sid)
	require.NoError(t, err)
	assert.Equal(t, events.StatusRunning, session.Status)
}

func TestAppendEventsRemovesRowOnDelete(t *testing.T) {
	s, err := store.Open(tempDBPath(t), "")
	require.NoError(t, err)
	defer s.Close()

	sid := uuid.New()
	created, _ := events.New(sid, events.KindSessionCreated, events.SessionCreatedPayload{Name: "feat-x", RepoPath: "/r"})
	_, err = s.AppendEvents(sid, []events.Event{created})
	require.NoError(t, err)

	deleted, _ := events.New(sid, events.KindSessionDeleted, events.SessionDeletedPayload{Reason: "user requested"})
	_, err = s.AppendEvents(sid, []events.Event{deleted})
	require.NoError(t, err)

	session, err := s.GetSession(sid)
	require.NoError(t, err)
	assert.Nil(t, session)

	// But the event log itself is retained (append-only).
	all, err := s.ReplayEvents(sid)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListSessionsOrdersByCreatedAtDesc(t *testing.T) {
	s, err := store.Open(tempDBPath(t), "")
	require.NoError(t, err)
	defer s.Close()

	for _, name := range []string{"one", "two", "three"} {
		sid := uuid.New()
		created, _ := events.New(sid, events.KindSessionCreated, events.SessionCreatedPayload{Name: name, RepoPath: "/r"})
		_, err := s.AppendEvents(sid, []events.Event{created})
		require.NoError(t, err)
	}

	sessions, err := s.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "three", sessions[0].Name)
	assert.Equal(t, "two", sessions[1].Name)
	assert.Equal(t, "one", sessions[2].Name)
}

func TestUpdateReconcileStateIsPreservedAcrossAppend(t *testing.T) {
	s, err := store.Open(tempDBPath(t), "")
	require.NoError(t, err)
	defer s.Close()

	sid := uuid.New()
	created, _ := events.New(sid, events.KindSessionCreated, events.SessionCreatedPayload{Name: "feat-x", RepoPath: "/r"})
	_, err = s.AppendEvents(sid, []events.Event{created})
	require.NoError(t, err)

	require.NoError(t, s.UpdateReconcileState(sid, 3, "backend unreachable"))

	statusChanged, _ := events.New(sid, events.KindStatusChanged, events.StatusChangedPayload{Old: "Creating", New: "Running"})
	_, err = s.AppendEvents(sid, []events.Event{statusChanged})
	require.NoError(t, err)

	session, err := s.GetSession(sid)
	require.NoError(t, err)
	assert.Equal(t, 3, session.ReconcileAttempts)
	assert.Equal(t, "backend unreachable", session.LastReconcileError)
}

func TestRecentReposOrdersByLastUsedDesc(t *testing.T) {
	s, err := store.Open(tempDBPath(t), "")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.RecordRecentRepo("/repos/a"))
	require.NoError(t, s.RecordRecentRepo("/repos/b"))
	require.NoError(t, s.RecordRecentRepo("/repos/a")) // bump a back to most-recent

	repos, err := s.ListRecentRepos(0)
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "/repos/a", repos[0].RepoPath)
}

func TestGetSessionReturnsNilForUnknownID(t *testing.T) {
	s, err := store.Open(tempDBPath(t), "")
	require.NoError(t, err)
	defer s.Close()

	session, err := s.GetSession(uuid.New())
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestGetSessionByName(t *testing.T) {
	s, err := store.Open(tempDBPath(t), "")
	require.NoError(t, err)
	defer s.Close()

	sid := uuid.New()
	created, _ := events.New(sid, events.KindSessionCreated, events.SessionCreatedPayload{Name: "feat-y", RepoPath: "/r"})
	_, err = s.AppendEvents(sid, []events.Event{created})
	require.NoError(t, err)

	session, err := s.GetSessionByName("feat-y")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, sid, session.ID)

	missing, err := s.GetSessionByName("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReplayEventsPreservesOrderAndMonotonicIDs(t *testing.T) {
	s, err := store.Open(tempDBPath(t), "")
	require.NoError(t, err)
	defer s.Close()

	sid := uuid.New()
	created, _ := events.New(sid, events.KindSessionCreated, events.SessionCreatedPayload{Name: "feat-z", RepoPath: "/r"})
	_, err = s.AppendEvents(sid, []events.Event{created})
	require.NoError(t, err)

	statusChanged, _ := events.New(sid, events.KindStatusChanged, events.StatusChangedPayload{Old: "Creating", New: "Running"})
	_, err = s.AppendEvents(sid, []events.Event{statusChanged})
	require.NoError(t, err)

	replayed, err := s.ReplayEvents(sid)
	require.NoError(t, err)
	require.Len(t, replayed, 2)
	assert.Equal(t, events.KindSessionCreated, replayed[0].Kind)
	assert.Equal(t, events.KindStatusChanged, replayed[1].Kind)
	assert.Less(t, replayed[0].MonotonicID, replayed[1].MonotonicID)
}

func TestReplayEventsUnknownSessionReturnsEmpty(t *testing.T) {
	s, err := store.Open(tempDBPath(t), "")
	require.NoError(t, err)
	defer s.Close()

	replayed, err := s.ReplayEvents(uuid.New())
	require.NoError(t, err)
	assert.Empty(t, replayed)
}
