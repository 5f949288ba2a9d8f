// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/events"
)

func mustEvent(t *testing.T, sid uuid.UUID, kind events.Kind, payload any) events.Event {
	t.Helper()
	ev, err := events.New(sid, kind, payload)
	require.NoError(t, err)
	return ev
}

func TestFoldEmptyReturnsFalse(t *testing.T) {
	_, ok := events.Fold(nil)
	require.False(t, ok)
}

func TestFoldRequiresSessionCreatedFirst(t *testing.T) {
	sid := uuid.New()
	evs := []events.Event{mustEvent(t, sid, events.KindStatusChanged, events.StatusChangedPayload{Old: "Creating", New: "Running"})}
	_, ok := events.Fold(evs)
	require.False(t, ok)
}

func TestFoldReconstructsSession(t *testing.T) {
	sid := uuid.New()
	evs := []events.Event{
		mustEvent(t, sid, events.KindSessionCreated, events.SessionCreatedPayload{
			Name: "feat-x", RepoPath: "/tmp/repo", Branch: "feat-x", Backend: "container", Agent: "claude-code", InitialPrompt: "hello",
		}),
		mustEvent(t, sid, events.KindBackendIDSet, events.BackendIDSetPayload{ID: "abc123"}),
		mustEvent(t, sid, events.KindStatusChanged, events.StatusChangedPayload{Old: "Creating", New: "Running"}),
		mustEvent(t, sid, events.KindWorktreeDirtyChanged, events.WorktreeDirtyChangedPayload{IsDirty: true}),
	}

	s, ok := events.Fold(evs)
	require.True(t, ok)
	require.Equal(t, "feat-x", s.Name)
	require.Equal(t, events.StatusRunning, s.Status)
	require.Equal(t, "abc123", s.BackendResourceID)
	require.True(t, s.IsWorktreeDirty)
}

func TestFoldArchiveThenRestoreReturnsIdle(t *testing.T) {
	sid := uuid.New()
	evs := []events.Event{
		mustEvent(t, sid, events.KindSessionCreated, events.SessionCreatedPayload{Name: "x", Branch: "x"}),
		mustEvent(t, sid, events.KindStatusChanged, events.StatusChangedPayload{Old: "Creating", New: "Running"}),
		mustEvent(t, sid, events.KindSessionArchived, struct{}{}),
		mustEvent(t, sid, events.KindSessionRestored, struct{}{}),
	}

	s, ok := events.Fold(evs)
	require.True(t, ok)
	require.Equal(t, events.StatusIdle, s.Status)
	require.Nil(t, s.ArchivedAt)
}

func TestFoldRestoreIsNoOpWhenNotArchived(t *testing.T) {
	sid := uuid.New()
	evs := []events.Event{
		mustEvent(t, sid, events.KindSessionCreated, events.SessionCreatedPayload{Name: "x", Branch: "x"}),
		mustEvent(t, sid, events.KindStatusChanged, events.StatusChangedPayload{Old: "Creating", New: "Running"}),
		mustEvent(t, sid, events.KindSessionRestored, struct{}{}),
	}

	s, ok := events.Fold(evs)
	require.True(t, ok)
	require.Equal(t, events.StatusRunning, s.Status)
}

func TestFoldDeletedReturnsFalse(t *testing.T) {
	sid := uuid.New()
	evs := []events.Event{
		mustEvent(t, sid, events.KindSessionCreated, events.SessionCreatedPayload{Name: "x", Branch: "x"}),
		mustEvent(t, sid, events.KindSessionDeleted, events.SessionDeletedPayload{Reason: "user requested"}),
	}

	_, ok := events.Fold(evs)
	require.False(t, ok)
}

func TestFoldIgnoresEventsFromOtherSessions(t *testing.T) {
	sid := uuid.New()
	other := uuid.New()
	evs := []events.Event{
		mustEvent(t, sid, events.KindSessionCreated, events.SessionCreatedPayload{Name: "x", Branch: "x"}),
		mustEvent(t, other, events.KindStatusChanged, events.StatusChangedPayload{Old: "Creating", New: "Running"}),
	}

	s, ok := events.Fold(evs)
	require.True(t, ok)
	require.Equal(t, events.StatusCreating, s.Status)
}
