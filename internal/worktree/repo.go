// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package worktree

import (
	"context"
	"os/exec"
	"time"
)

// RealValidator implements session.RepoValidator by shelling out to git.
type RealValidator struct{}

// IsGitRepo reports whether path exists and is inside a git working tree.
// It shells out to `git rev-parse --is-inside-work-tree` rather than
// checking for a ".git" directory directly, since that also correctly
// recognizes worktrees and submodules, whose ".git" is a file pointing
// elsewhere.
func (RealValidator) IsGitRepo(path string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "-C", path, "rev-parse", "--is-inside-work-tree")
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	return string(out) == "true\n"
}
