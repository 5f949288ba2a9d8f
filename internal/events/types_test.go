// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/events"
)

func TestEventRoundTrip(t *testing.T) {
	sid := uuid.New()

	cases := []struct {
		kind    events.Kind
		payload any
	}{
		{events.KindSessionCreated, events.SessionCreatedPayload{Name: "feat-x", RepoPath: "/tmp/repo", Branch: "feat-x", Backend: "container", Agent: "claude-code", InitialPrompt: "hello"}},
		{events.KindStatusChanged, events.StatusChangedPayload{Old: "Creating", New: "Running"}},
		{events.KindBackendIDSet, events.BackendIDSetPayload{ID: "abc123"}},
		{events.KindPrLinked, events.PrLinkedPayload{URL: "https://example.com/pr/1"}},
		{events.KindCheckStatusChanged, events.CheckStatusChangedPayload{Old: "", New: "passing"}},
		{events.KindClaudeStatusChanged, events.ClaudeStatusChangedPayload{Old: "Idle", New: "Working"}},
		{events.KindConflictChanged, events.ConflictChangedPayload{IsConflict: true}},
		{events.KindWorktreeDirtyChanged, events.WorktreeDirtyChangedPayload{IsDirty: true}},
		{events.KindSessionArchived, struct{}{}},
		{events.KindSessionRestored, struct{}{}},
		{events.KindSessionDeleted, events.SessionDeletedPayload{Reason: "user requested"}},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			ev, err := events.New(sid, tc.kind, tc.payload)
			require.NoError(t, err)
			require.Equal(t, sid, ev.SessionID)
			require.Equal(t, tc.kind, ev.Kind)

			// Decode back into a map to confirm the payload is a JSON object.
			var decoded map[string]any
			require.NoError(t, ev.Decode(&decoded))
		})
	}
}

func TestEventDecodeEmptyPayload(t *testing.T) {
	ev := events.Event{Kind: events.KindSessionArchived}
	var v struct{}
	require.NoError(t, ev.Decode(&v))
}
