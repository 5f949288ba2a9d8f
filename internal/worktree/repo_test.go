// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package worktree

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsGitRepoRecognizesRealRepo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, exec.Command("git", "-C", dir, "init", "-q").Run())

	require.True(t, RealValidator{}.IsGitRepo(dir))
}

func TestIsGitRepoRejectsNonRepoDir(t *testing.T) {
	dir := t.TempDir()
	require.False(t, RealValidator{}.IsGitRepo(dir))
}

func TestIsGitRepoRejectsMissingPath(t *testing.T) {
	require.False(t, RealValidator{}.IsGitRepo("/nonexistent/path/does/not/exist"))
}
