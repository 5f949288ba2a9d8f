// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/backend"
)

func TestManagerAttachFirstClientBecomesActive(t *testing.T) {
	m := NewManager(map[string]backend.Backend{"tmux": catBackend{}})
	sessionID := uuid.New()
	clientA := uuid.New()

	result, detach, err := m.Attach(context.Background(), sessionID, "tmux", "ignored", clientA, 24, 80)
	require.NoError(t, err)
	defer detach()

	assert.True(t, result.Active)
	active, ok := m.ActiveClient(sessionID)
	require.True(t, ok)
	assert.Equal(t, clientA, active)
}

func TestManagerSecondClientIsNotInitiallyActive(t *testing.T) {
	m := NewManager(map[string]backend.Backend{"tmux": catBackend{}})
	sessionID := uuid.New()
	clientA, clientB := uuid.New(), uuid.New()

	_, detachA, err := m.Attach(context.Background(), sessionID, "tmux", "ignored", clientA, 24, 80)
	require.NoError(t, err)
	defer detachA()

	resultB, detachB, err := m.Attach(context.Background(), sessionID, "tmux", "ignored", clientB, 24, 80)
	require.NoError(t, err)
	defer detachB()

	assert.False(t, resultB.Active)
}

func TestManagerInputFromNonActiveClientPromotesIt(t *testing.T) {
	m := NewManager(map[string]backend.Backend{"tmux": catBackend{}})
	sessionID := uuid.New()
	clientA, clientB := uuid.New(), uuid.New()

	_, detachA, err := m.Attach(context.Background(), sessionID, "tmux", "ignored", clientA, 24, 80)
	require.NoError(t, err)
	defer detachA()
	_, detachB, err := m.Attach(context.Background(), sessionID, "tmux", "ignored", clientB, 24, 80)
	require.NoError(t, err)
	defer detachB()

	require.NoError(t, m.Input(sessionID, clientB, []byte("hello\n")))

	active, ok := m.ActiveClient(sessionID)
	require.True(t, ok)
	assert.Equal(t, clientB, active)
}

func TestManagerCloseTearsDownConsole(t *testing.T) {
	m := NewManager(map[string]backend.Backend{"tmux": catBackend{}})
	sessionID := uuid.New()
	clientA := uuid.New()

	_, detach, err := m.Attach(context.Background(), sessionID, "tmux", "ignored", clientA, 24, 80)
	require.NoError(t, err)
	defer detach()

	require.NoError(t, m.Close(sessionID))

	_, ok := m.ActiveClient(sessionID)
	assert.False(t, ok)
}

func TestManagerAttachUnknownBackendFails(t *testing.T) {
	m := NewManager(map[string]backend.Backend{})
	_, _, err := m.Attach(context.Background(), uuid.New(), "tmux", "ignored", uuid.New(), 24, 80)
	require.Error(t, err)
}

func TestManagerDetachRemovesClientFromQueue(t *testing.T) {
	m := NewManager(map[string]backend.Backend{"tmux": catBackend{}})
	sessionID := uuid.New()
	clientA, clientB := uuid.New(), uuid.New()

	_, detachA, err := m.Attach(context.Background(), sessionID, "tmux", "ignored", clientA, 24, 80)
	require.NoError(t, err)
	_, detachB, err := m.Attach(context.Background(), sessionID, "tmux", "ignored", clientB, 24, 80)
	require.NoError(t, err)
	defer detachB()

	detachA()
	time.Sleep(10 * time.Millisecond)

	active, ok := m.ActiveClient(sessionID)
	require.True(t, ok)
	assert.Equal(t, clientB, active)
}
