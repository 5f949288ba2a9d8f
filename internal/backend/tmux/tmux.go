// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tmux implements backend.Backend over a local tmux server. It is
// adapted near-verbatim from the teacher's internal/terminal/tmux.go
// executor primitives (NewSession, SendKeys, CapturePane, pipe-pane),
// retargeted from a dev-workflow terminal multiplexer to a clauderon
// session backend.
package tmux

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	ps "github.com/mitchellh/go-ps"

	"github.com/shepherdjerred/clauderon/internal/backend"
	"github.com/shepherdjerred/clauderon/internal/health"
)

// Backend runs each session as its own tmux session on the local host.
type Backend struct {
	sessionPrefix string
}

// New builds a tmux backend. sessionPrefix namespaces tmux session names so
// orphan detection (spec §4.7) can recognize clauderon-owned sessions.
func New(sessionPrefix string) *Backend {
	if sessionPrefix == "" {
		sessionPrefix = "clauderon-"
	}
	return &Backend{sessionPrefix: sessionPrefix}
}

func (b *Backend) tmuxName(name string) string {
	return b.sessionPrefix + name
}

// resourceID packs the tmux session name and the pane's host PID, so
// Observe can distinguish "tmux session present, shell dead" (the pane
// process exited but tmux kept the pane per remain-on-exit) from a truly
// healthy pane.
func packResourceID(tmuxSession string, panePID int) string {
	return fmt.Sprintf("%s@%d", tmuxSession, panePID)
}

func unpackResourceID(resourceID string) (tmuxSession string, panePID int) {
	idx := strings.LastIndex(resourceID, "@")
	if idx < 0 {
		return resourceID, 0
	}
	pid, _ := strconv.Atoi(resourceID[idx+1:])
	return resourceID[:idx], pid
}

// Create starts a new tmux session running the agent command in workdir.
// opts.ImageOverrides["command"], if set, picks the agent invocation;
// otherwise the bare shell is used (tmux has no "image" concept, but the
// override slot is still honored for test/dev harnesses that inject one).
func (b *Backend) Create(ctx context.Context, name, workdir, initialPrompt string, opts backend.CreateOptions) (string, error) {
	tmuxSession := b.tmuxName(name)

	args := []string{"new-session", "-d", "-s", tmuxSession}
	if workdir != "" {
		args = append(args, "-c", workdir)
	}
	if command := opts.ImageOverrides["command"]; command != "" {
		args = append(args, command)
	}
	cmd := exec.CommandContext(ctx, "tmux", args...)
	cmd.Env = filterTMUXEnv(os.Environ())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tmux new-session: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	if initialPrompt != "" {
		if err := b.sendText(ctx, tmuxSession, initialPrompt); err != nil {
			return "", fmt.Errorf("tmux seed initial prompt: %w", err)
		}
	}

	pid, err := b.panePID(ctx, tmuxSession)
	if err != nil {
		return "", fmt.Errorf("tmux read pane pid: %w", err)
	}

	return packResourceID(tmuxSession, pid), nil
}

func (b *Backend) panePID(ctx context.Context, tmuxSession string) (int, error) {
	cmd := exec.CommandContext(ctx, "tmux", "display-message", "-t", tmuxSession, "-p", "#{pane_pid}")
	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(out)))
}

func (b *Backend) sendText(ctx context.Context, tmuxSession, text string) error {
	loadCmd := exec.CommandContext(ctx, "tmux", "load-buffer", "-")
	loadCmd.Stdin = strings.NewReader(text)
	if err := loadCmd.Run(); err != nil {
		return err
	}
	return exec.CommandContext(ctx, "tmux", "paste-buffer", "-d", "-t", tmuxSession).Run()
}

// Exists reports whether the tmux session is still present.
func (b *Backend) Exists(ctx context.Context, resourceID string) (bool, error) {
	tmuxSession, _ := unpackResourceID(resourceID)
	return exec.CommandContext(ctx, "tmux", "has-session", "-t", tmuxSession).Run() == nil, nil
}

// Delete kills the tmux session. Idempotent: killing an absent session is
// treated as success.
func (b *Backend) Delete(ctx context.Context, resourceID string) error {
	tmuxSession, _ := unpackResourceID(resourceID)
	if err := exec.CommandContext(ctx, "tmux", "kill-session", "-t", tmuxSession).Run(); err != nil {
		if exists, _ := b.Exists(ctx, resourceID); !exists {
			return nil
		}
		return fmt.Errorf("tmux kill-session: %w", err)
	}
	return nil
}

// Observe classifies the tmux session's sub-state: absent if the tmux
// session is gone, errored if the pane's host process has died while the
// pane itself still exists (remain-on-exit), healthy otherwise.
func (b *Backend) Observe(ctx context.Context, resourceID string) (health.BackendState, string, error) {
	tmuxSession, panePID := unpackResourceID(resourceID)

	exists, _ := b.Exists(ctx, resourceID)
	if !exists {
		return health.BackendAbsent, "", nil
	}

	if panePID > 0 && !pidAlive(panePID) {
		return health.BackendErrored, "pane process exited", nil
	}

	return health.BackendHealthy, "", nil
}

func pidAlive(pid int) bool {
	proc, err := ps.FindProcess(pid)
	return err == nil && proc != nil
}

// GetOutput returns the tail of the pane's scrollback via capture-pane.
func (b *Backend) GetOutput(ctx context.Context, resourceID string, lines int) ([]byte, error) {
	tmuxSession, _ := unpackResourceID(resourceID)
	args := []string{"capture-pane", "-t", tmuxSession, "-p", "-e"}
	if lines > 0 {
		args = append(args, "-S", fmt.Sprintf("-%d", lines))
	}
	return exec.CommandContext(ctx, "tmux", args...).Output()
}

// AttachCommand returns the local argv that attaches a terminal to the
// session's tmux pane.
func (b *Backend) AttachCommand(ctx context.Context, resourceID string) ([]string, error) {
	tmuxSession, _ := unpackResourceID(resourceID)
	return []string{"tmux", "attach-session", "-t", tmuxSession}, nil
}

// SendInput writes literal bytes into the pane via send-keys -l.
func (b *Backend) SendInput(ctx context.Context, resourceID string, data []byte) error {
	tmuxSession, _ := unpackResourceID(resourceID)
	return exec.CommandContext(ctx, "tmux", "send-keys", "-t", tmuxSession, "-l", string(data)).Run()
}

// Resize resizes the underlying tmux window.
func (b *Backend) Resize(ctx context.Context, resourceID string, rows, cols int) error {
	tmuxSession, _ := unpackResourceID(resourceID)
	return exec.CommandContext(ctx, "tmux", "resize-window", "-t", tmuxSession,
		"-x", strconv.Itoa(cols), "-y", strconv.Itoa(rows)).Run()
}

// Signal delivers signal to the pane's host process directly, since tmux
// has no built-in signal-forwarding primitive.
func (b *Backend) Signal(ctx context.Context, resourceID string, sig string) error {
	_, panePID := unpackResourceID(resourceID)
	if panePID == 0 {
		return fmt.Errorf("tmux backend: no pane pid recorded for signal delivery")
	}
	return exec.CommandContext(ctx, "kill", "-s", sig, strconv.Itoa(panePID)).Run()
}

// IsRemote is always false: tmux sessions run on the local host.
func (b *Backend) IsRemote() bool { return false }

// SafetyClassification: tmux sessions are durable and rebuildable — a
// fresh session against the same worktree preserves user work.
func (b *Backend) SafetyClassification() backend.Safety {
	return backend.Safety{DestructiveOnStop: false, Rebuildable: true}
}

// Kind identifies this backend variant.
func (b *Backend) Kind() string { return "tmux" }

// ListResources returns the names of every tmux session matching this
// backend's name prefix, for orphan detection.
func (b *Backend) ListResources(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "tmux", "list-sessions", "-F", "#{session_name}").Output()
	if err != nil {
		// tmux exits non-zero with "no server running" when no sessions
		// exist at all; that's zero orphans, not an error.
		return nil, nil
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		name := strings.TrimSpace(line)
		if name != "" && strings.HasPrefix(name, b.sessionPrefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func filterTMUXEnv(env []string) []string {
	result := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, "TMUX=") {
			result = append(result, e)
		}
	}
	return result
}

var (
	_ backend.Backend = (*Backend)(nil)
	_ backend.Lister  = (*Backend)(nil)
)
