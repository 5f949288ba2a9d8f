// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package worktree creates and removes the per-session git worktrees that
// back every clauderon session's isolated workspace.
package worktree

import (
	"context"
	"fmt"
	"os"
)

// Driver is the git worktree contract §4.2 of the spec requires: create,
// delete, existence, branch, and dirtiness checks. Every operation is
// idempotent where the spec calls for it so the reconciler can retry
// freely without double-booking state.
type Driver struct {
	git GitExecutor
}

// NewDriver builds a Driver over the given GitExecutor. Pass
// NewRealGitExecutor() in production.
func NewDriver(git GitExecutor) *Driver {
	return &Driver{git: git}
}

// CreateWorktree creates branch (if it doesn't already exist) and checks it
// out into a new worktree at targetPath. Ensures parent directories exist.
func (d *Driver) CreateWorktree(ctx context.Context, repo, targetPath, branch string) error {
	if repo == "" {
		return fmt.Errorf("worktree: repo path is empty")
	}
	if targetPath == "" {
		return fmt.Errorf("worktree: target path is empty")
	}
	return d.git.WorktreeAdd(ctx, repo, targetPath, branch)
}

// DeleteWorktree removes the worktree at targetPath. Idempotent: a
// already-removed worktree is treated as success.
func (d *Driver) DeleteWorktree(ctx context.Context, repo, targetPath string) error {
	return d.git.WorktreeRemove(ctx, repo, targetPath)
}

// Exists reports whether path is present on disk.
func (d *Driver) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CurrentBranch returns the checked-out branch name at path, or the empty
// string if it cannot be determined (e.g. the path is gone).
func (d *Driver) CurrentBranch(ctx context.Context, path string) string {
	info, err := d.git.BranchInfo(ctx, path)
	if err != nil {
		return ""
	}
	if info.Detached {
		return ""
	}
	return info.Name
}

// WorktreeDirty reports whether path has modified or untracked tracked
// files. A missing path or a git error is treated as "not dirty" — absence
// is surfaced separately by Exists and reconciliation, not by this check.
func (d *Driver) WorktreeDirty(ctx context.Context, path string) bool {
	status, err := d.git.Status(ctx, path)
	if err != nil {
		return false
	}
	return status.HasChanges()
}
