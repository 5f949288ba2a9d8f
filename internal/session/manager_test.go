// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/backend"
	"github.com/shepherdjerred/clauderon/internal/bus"
	"github.com/shepherdjerred/clauderon/internal/events"
	"github.com/shepherdjerred/clauderon/internal/health"
	"github.com/shepherdjerred/clauderon/internal/portalloc"
	"github.com/shepherdjerred/clauderon/internal/worktree"
)

// fakeStore is an in-memory Store used to test the manager's protocol
// without a real sqlite file, keyed and folded the same way *store.Store
// would be.
type fakeStore struct {
	bySession map[uuid.UUID][]events.Event
	repos     []string
	accessMode map[uuid.UUID]events.AccessMode
}

func newFakeStore() *fakeStore {
	return &fakeStore{bySession: make(map[uuid.UUID][]events.Event), accessMode: make(map[uuid.UUID]events.AccessMode)}
}

func (f *fakeStore) AppendEvents(sessionID uuid.UUID, evs []events.Event) ([]events.Event, error) {
	f.bySession[sessionID] = append(f.bySession[sessionID], evs...)
	return evs, nil
}

func (f *fakeStore) GetSession(id uuid.UUID) (*events.Session, error) {
	session, ok := events.Fold(f.bySession[id])
	if !ok {
		return nil, nil
	}
	if mode, ok := f.accessMode[id]; ok {
		session.AccessMode = mode
	}
	return session, nil
}

func (f *fakeStore) GetSessionByName(name string) (*events.Session, error) {
	for id := range f.bySession {
		session, ok := events.Fold(f.bySession[id])
		if ok && session.Name == name {
			return session, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListSessions() ([]*events.Session, error) {
	var out []*events.Session
	for id := range f.bySession {
		if session, err := f.GetSession(id); err == nil && session != nil {
			out = append(out, session)
		}
	}
	return out, nil
}

func (f *fakeStore) RecordRecentRepo(repoPath string) error {
	f.repos = append(f.repos, repoPath)
	return nil
}

func (f *fakeStore) SetAccessMode(id uuid.UUID, mode events.AccessMode) error {
	f.accessMode[id] = mode
	return nil
}

type alwaysGitRepo struct{}

func (alwaysGitRepo) IsGitRepo(path string) bool { return path != "" }

type fakeBackend struct {
	createErr  error
	resourceID string
	existsVal  bool
	deleted    []string
	kind       string
	remote     bool
	safety     backend.Safety
}

func (b *fakeBackend) Create(ctx context.Context, name, workdir, initialPrompt string, opts backend.CreateOptions) (string, error) {
	if b.createErr != nil {
		return "", b.createErr
	}
	if b.resourceID == "" {
		return "resource-" + name, nil
	}
	return b.resourceID, nil
}
func (b *fakeBackend) Exists(ctx context.Context, resourceID string) (bool, error) { return b.existsVal, nil }
func (b *fakeBackend) Delete(ctx context.Context, resourceID string) error {
	b.deleted = append(b.deleted, resourceID)
	return nil
}
func (b *fakeBackend) Observe(ctx context.Context, resourceID string) (health.BackendState, string, error) {
	return health.BackendHealthy, "", nil
}
func (b *fakeBackend) GetOutput(ctx context.Context, resourceID string, lines int) ([]byte, error) {
	return nil, nil
}
func (b *fakeBackend) AttachCommand(ctx context.Context, resourceID string) ([]string, error) {
	return []string{"true"}, nil
}
func (b *fakeBackend) SendInput(ctx context.Context, resourceID string, data []byte) error { return nil }
func (b *fakeBackend) Resize(ctx context.Context, resourceID string, rows, cols int) error { return nil }
func (b *fakeBackend) Signal(ctx context.Context, resourceID string, signal string) error  { return nil }
func (b *fakeBackend) IsRemote() bool                                                      { return b.remote }
func (b *fakeBackend) SafetyClassification() backend.Safety                                { return b.safety }
func (b *fakeBackend) Kind() string {
	if b.kind == "" {
		return "tmux"
	}
	return b.kind
}

type fakeGitExecutor struct{}

func (fakeGitExecutor) WorktreeList(ctx context.Context, dir string) ([]worktree.WorktreeInfo, error) {
	return nil, nil
}
func (fakeGitExecutor) Status(ctx context.Context, path string) (worktree.GitStatus, error) {
	return worktree.GitStatus{Clean: true}, nil
}
func (fakeGitExecutor) BranchInfo(ctx context.Context, path string) (worktree.BranchInfo, error) {
	return worktree.BranchInfo{Name: "main"}, nil
}
func (fakeGitExecutor) WorktreeAdd(ctx context.Context, repo, path, branch string) error { return nil }
func (fakeGitExecutor) WorktreeRemove(ctx context.Context, repo, path string) error      { return nil }
func (fakeGitExecutor) BranchExists(ctx context.Context, repo, branch string) bool       { return false }

func newTestManager(t *testing.T, be backend.Backend) (*Manager, *fakeStore) {
	t.Helper()
	st := newFakeStore()
	eventBus := bus.New(bus.MemoryBusConfig{})
	driver := worktree.NewDriver(fakeGitExecutor{})
	ports := portalloc.New(19100, 10)
	backends := map[string]backend.Backend{"tmux": be}
	mgr := NewManager(st, eventBus, driver, ports, backends, alwaysGitRepo{}, t.TempDir())
	return mgr, st
}

func TestCreateSessionHappyPath(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeBackend{})

	session, err := mgr.CreateSession(context.Background(), CreateRequest{
		Name:         "feat x",
		RepoPath:     "/repo",
		BackendKind:  "tmux",
		Agent:        "claude",
		ProxyEnabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "feat-x", session.Name)
	assert.Equal(t, events.StatusRunning, session.Status)
	assert.NotEmpty(t, session.BackendResourceID)
	assert.NotZero(t, session.ProxyPort)
}

func TestCreateSessionRejectsInvalidRepo(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeBackend{})
	_, err := mgr.CreateSession(context.Background(), CreateRequest{Name: "x", RepoPath: "", BackendKind: "tmux"})
	assert.ErrorIs(t, err, ErrRepoPathInvalid)
}

func TestCreateSessionCompensatesOnBackendFailure(t *testing.T) {
	mgr, st := newTestManager(t, &fakeBackend{createErr: assertError("boom")})

	_, err := mgr.CreateSession(context.Background(), CreateRequest{
		Name:        "feat-y",
		RepoPath:    "/repo",
		BackendKind: "tmux",
	})
	require.ErrorIs(t, err, ErrBackendStartFailed)

	// The session must not be discoverable afterward — Fold returns
	// (nil, false) once SessionDeleted is the last event.
	sessions, err := st.ListSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestCreateSessionNameCollisionGetsSuffix(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeBackend{})

	first, err := mgr.CreateSession(context.Background(), CreateRequest{Name: "dup", RepoPath: "/repo", BackendKind: "tmux"})
	require.NoError(t, err)
	assert.Equal(t, "dup", first.Name)

	second, err := mgr.CreateSession(context.Background(), CreateRequest{Name: "dup", RepoPath: "/repo", BackendKind: "tmux"})
	require.NoError(t, err)
	assert.NotEqual(t, "dup", second.Name)
	assert.Contains(t, second.Name, "dup-")
}

func TestArchiveAndRestoreSession(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeBackend{existsVal: true})

	session, err := mgr.CreateSession(context.Background(), CreateRequest{Name: "feat-z", RepoPath: "/repo", BackendKind: "tmux"})
	require.NoError(t, err)

	archived, err := mgr.ArchiveSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, events.StatusArchived, archived.Status)

	restored, err := mgr.RestoreSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, events.StatusIdle, restored.Status)
}

func TestDeleteSessionRemovesRow(t *testing.T) {
	be := &fakeBackend{}
	mgr, st := newTestManager(t, be)

	session, err := mgr.CreateSession(context.Background(), CreateRequest{Name: "feat-del", RepoPath: "/repo", BackendKind: "tmux"})
	require.NoError(t, err)

	require.NoError(t, mgr.DeleteSession(context.Background(), session.ID))
	assert.Len(t, be.deleted, 1)

	got, err := st.GetSession(session.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateClaudeStatusOnlyEmitsOnChange(t *testing.T) {
	mgr, st := newTestManager(t, &fakeBackend{})
	session, err := mgr.CreateSession(context.Background(), CreateRequest{Name: "feat-s", RepoPath: "/repo", BackendKind: "tmux"})
	require.NoError(t, err)

	before := len(st.bySession[session.ID])
	require.NoError(t, mgr.UpdateClaudeStatus(context.Background(), session.ID, events.ClaudeIdle))
	assert.Len(t, st.bySession[session.ID], before, "no-op change should not append an event")

	require.NoError(t, mgr.UpdateClaudeStatus(context.Background(), session.ID, events.ClaudeWorking))
	assert.Len(t, st.bySession[session.ID], before+1)
}

// assertError is a tiny helper that builds an error from a string without
// pulling in "errors" just for one test fixture.
type assertError string

func (e assertError) Error() string { return string(e) }
