// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package worktree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGitExecutor struct {
	addCalls    []string
	removeCalls []string
	addErr      error
	removeErr   error
	branches    map[string]bool
	status      GitStatus
	branchInfo  BranchInfo
	branchErr   error
}

func (f *fakeGitExecutor) WorktreeList(ctx context.Context, dir string) ([]WorktreeInfo, error) {
	return nil, nil
}

func (f *fakeGitExecutor) Status(ctx context.Context, path string) (GitStatus, error) {
	return f.status, nil
}

func (f *fakeGitExecutor) BranchInfo(ctx context.Context, path string) (BranchInfo, error) {
	return f.branchInfo, f.branchErr
}

func (f *fakeGitExecutor) WorktreeAdd(ctx context.Context, repo, path, branch string) error {
	f.addCalls = append(f.addCalls, path)
	return f.addErr
}

func (f *fakeGitExecutor) WorktreeRemove(ctx context.Context, repo, path string) error {
	f.removeCalls = append(f.removeCalls, path)
	return f.removeErr
}

func (f *fakeGitExecutor) BranchExists(ctx context.Context, repo, branch string) bool {
	return f.branches[branch]
}

func TestDriverCreateWorktree(t *testing.T) {
	fake := &fakeGitExecutor{}
	d := NewDriver(fake)

	err := d.CreateWorktree(context.Background(), "/repo", "/work/sess", "feat-x")
	require.NoError(t, err)
	assert.Equal(t, []string{"/work/sess"}, fake.addCalls)
}

func TestDriverCreateWorktreeRejectsEmptyPaths(t *testing.T) {
	fake := &fakeGitExecutor{}
	d := NewDriver(fake)

	require.Error(t, d.CreateWorktree(context.Background(), "", "/work/sess", "b"))
	require.Error(t, d.CreateWorktree(context.Background(), "/repo", "", "b"))
}

func TestDriverDeleteWorktreeIdempotent(t *testing.T) {
	fake := &fakeGitExecutor{}
	d := NewDriver(fake)

	require.NoError(t, d.DeleteWorktree(context.Background(), "/repo", "/work/sess"))
	require.NoError(t, d.DeleteWorktree(context.Background(), "/repo", "/work/sess"))
	assert.Len(t, fake.removeCalls, 2)
}

func TestDriverWorktreeDirty(t *testing.T) {
	fake := &fakeGitExecutor{status: GitStatus{Modified: []string{"a.go"}}}
	d := NewDriver(fake)
	assert.True(t, d.WorktreeDirty(context.Background(), "/work/sess"))

	fake.status = GitStatus{Clean: true}
	assert.False(t, d.WorktreeDirty(context.Background(), "/work/sess"))
}

func TestDriverCurrentBranch(t *testing.T) {
	fake := &fakeGitExecutor{branchInfo: BranchInfo{Name: "feat-x"}}
	d := NewDriver(fake)
	assert.Equal(t, "feat-x", d.CurrentBranch(context.Background(), "/work/sess"))

	fake.branchInfo = BranchInfo{Detached: true, Commit: "abc123"}
	assert.Equal(t, "", d.CurrentBranch(context.Background(), "/work/sess"))
}

func TestDriverExists(t *testing.T) {
	d := NewDriver(&fakeGitExecutor{})
	assert.True(t, d.Exists(t.TempDir()))
	assert.False(t, d.Exists("/nonexistent/path/does/not/exist"))
}
