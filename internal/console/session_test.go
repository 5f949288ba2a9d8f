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
	"github.com/shepherdjerred/clauderon/internal/health"
)

// catBackend attaches via `cat`, a real local process that echoes
// whatever it's sent back out — enough to exercise the PTY read/write
// loop without depending on tmux, docker, or any other external tool
// being installed in the test environment.
type catBackend struct{}

func (catBackend) Create(ctx context.Context, name, workdir, initialPrompt string, opts backend.CreateOptions) (string, error) {
	return "", nil
}
func (catBackend) Exists(ctx context.Context, resourceID string) (bool, error) { return true, nil }
func (catBackend) Delete(ctx context.Context, resourceID string) error         { return nil }
func (catBackend) Observe(ctx context.Context, resourceID string) (health.BackendState, string, error) {
	return health.BackendHealthy, "", nil
}
func (catBackend) GetOutput(ctx context.Context, resourceID string, lines int) ([]byte, error) {
	return nil, nil
}
func (catBackend) AttachCommand(ctx context.Context, resourceID string) ([]string, error) {
	return []string{"cat"}, nil
}
func (catBackend) SendInput(ctx context.Context, resourceID string, data []byte) error { return nil }
func (catBackend) Resize(ctx context.Context, resourceID string, rows, cols int) error { return nil }
func (catBackend) Signal(ctx context.Context, resourceID string, signal string) error  { return nil }
func (catBackend) IsRemote() bool                                                      { return false }
func (catBackend) SafetyClassification() backend.Safety                               { return backend.Safety{Rebuildable: true} }
func (catBackend) Kind() string                                                        { return "tmux" }

func TestSessionEchoesWrittenInputThroughBroadcast(t *testing.T) {
	s, err := newSession(context.Background(), catBackend{}, "ignored", sessionConfig{
		SessionID: uuid.New(),
		Rows:      24,
		Cols:      80,
	})
	require.NoError(t, err)
	defer s.Close()

	feed, unsubscribe := s.broadcast.Subscribe()
	defer unsubscribe()

	s.startReader(context.Background())

	_, werr := s.Write([]byte("hi\n"))
	require.NoError(t, werr)

	select {
	case chunk := <-feed:
		assert.Contains(t, string(chunk), "hi")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed output")
	}
}

func TestSessionCloseStopsBroadcast(t *testing.T) {
	s, err := newSession(context.Background(), catBackend{}, "ignored", sessionConfig{
		SessionID: uuid.New(),
		Rows:      24,
		Cols:      80,
	})
	require.NoError(t, err)

	feed, unsubscribe := s.broadcast.Subscribe()
	defer unsubscribe()

	require.NoError(t, s.Close())

	select {
	case _, ok := <-feed:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast channel close")
	}
}
