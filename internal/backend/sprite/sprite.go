// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sprite implements backend.Backend by shelling out to an opaque
// `sprite` CLI that provisions remote, ephemeral development machines.
// Grounded on the teacher's SSH-based log source (internal/logs/source_ssh.go)
// for the local-process-drives-a-remote-resource shape, generalized from
// tailing a file to a full resource lifecycle.
package sprite

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shepherdjerred/clauderon/internal/backend"
	"github.com/shepherdjerred/clauderon/internal/health"
)

// Backend runs each session on its own remote sprite instance. Sprites are
// destroyed on stop by default (auto-destroy), so SafetyClassification
// reports DestructiveOnStop unless the caller constructs with Persistent.
type Backend struct {
	namePrefix  string
	spriteBin   string
	persistent  bool
	defaultSize string
}

// New builds a sprite backend. persistent, when true, indicates sprites are
// provisioned with disk snapshotting enabled rather than auto-destroy.
func New(namePrefix string, persistent bool) *Backend {
	if namePrefix == "" {
		namePrefix = "clauderon-"
	}
	return &Backend{namePrefix: namePrefix, spriteBin: "sprite", persistent: persistent}
}

func (b *Backend) spriteName(name string) string {
	return b.namePrefix + name
}

func (b *Backend) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, b.spriteBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.Bytes(), fmt.Errorf("sprite %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Create provisions a new remote sprite, seeds it with workdir's contents
// (the sprite CLI is assumed to handle the upload/sync internally given a
// local path), and returns the sprite's opaque instance id.
func (b *Backend) Create(ctx context.Context, name, workdir, initialPrompt string, opts backend.CreateOptions) (string, error) {
	spriteName := b.spriteName(name)

	args := []string{"create", "--name", spriteName}
	if workdir != "" {
		args = append(args, "--upload", workdir)
	}
	if size, ok := opts.ImageOverrides["size"]; ok && size != "" {
		args = append(args, "--size", size)
	} else if b.defaultSize != "" {
		args = append(args, "--size", b.defaultSize)
	}
	if b.persistent {
		args = append(args, "--persist")
	}

	out, err := b.run(ctx, args...)
	if err != nil {
		return "", err
	}
	instanceID := strings.TrimSpace(string(out))
	if instanceID == "" {
		return "", fmt.Errorf("sprite backend: empty instance id from create")
	}

	if initialPrompt != "" {
		if err := b.sendText(ctx, instanceID, initialPrompt); err != nil {
			return instanceID, fmt.Errorf("sprite seed initial prompt: %w", err)
		}
	}

	return instanceID, nil
}

func (b *Backend) sendText(ctx context.Context, instanceID, text string) error {
	cmd := exec.CommandContext(ctx, b.spriteBin, "exec", instanceID, "--stdin")
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}

// Exists reports whether the sprite instance is still provisioned.
func (b *Backend) Exists(ctx context.Context, resourceID string) (bool, error) {
	_, err := b.run(ctx, "status", resourceID)
	return err == nil, nil
}

// Delete destroys the sprite instance. Idempotent. Per SafetyClassification,
// this is destructive unless the backend was constructed as persistent.
func (b *Backend) Delete(ctx context.Context, resourceID string) error {
	if _, err := b.run(ctx, "destroy", resourceID, "--force"); err != nil {
		if exists, _ := b.Exists(ctx, resourceID); !exists {
			return nil
		}
		return err
	}
	return nil
}

// Observe classifies sprite sub-state from `sprite status`'s machine-readable
// state field.
func (b *Backend) Observe(ctx context.Context, resourceID string) (health.BackendState, string, error) {
	out, err := b.run(ctx, "status", resourceID, "--format", "state")
	if err != nil {
		return health.BackendAbsent, "", nil
	}

	switch strings.TrimSpace(string(out)) {
	case "running":
		return health.BackendHealthy, "", nil
	case "starting":
		return health.BackendHealthy, "", nil
	case "stopped":
		return health.BackendErrored, "sprite stopped", nil
	case "unreachable":
		return health.BackendErrored, "sprite unreachable", nil
	default:
		return health.BackendErrored, "sprite in unknown state", nil
	}
}

// GetOutput returns the tail of the sprite's session log.
func (b *Backend) GetOutput(ctx context.Context, resourceID string, lines int) ([]byte, error) {
	args := []string{"logs", resourceID}
	if lines > 0 {
		args = append(args, "--tail", strconv.Itoa(lines))
	}
	return b.run(ctx, args...)
}

// AttachCommand returns the local argv that opens an interactive remote
// shell to the sprite.
func (b *Backend) AttachCommand(ctx context.Context, resourceID string) ([]string, error) {
	return []string{"sprite", "ssh", resourceID}, nil
}

// SendInput writes bytes to the sprite's primary session via `sprite exec
// --stdin`.
func (b *Backend) SendInput(ctx context.Context, resourceID string, data []byte) error {
	cmd := exec.CommandContext(ctx, b.spriteBin, "exec", resourceID, "--stdin")
	cmd.Stdin = bytes.NewReader(data)
	return cmd.Run()
}

// Resize forwards PTY dimensions to the remote session.
func (b *Backend) Resize(ctx context.Context, resourceID string, rows, cols int) error {
	_, err := b.run(ctx, "resize", resourceID, "--rows", strconv.Itoa(rows), "--cols", strconv.Itoa(cols))
	return err
}

// Signal delivers signal to the sprite's primary process.
func (b *Backend) Signal(ctx context.Context, resourceID string, sig string) error {
	_, err := b.run(ctx, "signal", resourceID, "--signal", sig)
	return err
}

// IsRemote is always true: sprites run on remote infrastructure.
func (b *Backend) IsRemote() bool { return true }

// SafetyClassification: by default sprites auto-destroy their disk on stop,
// and cannot be rebuilt without re-uploading the workdir from scratch;
// persistent sprites keep durable disk across restarts.
func (b *Backend) SafetyClassification() backend.Safety {
	if b.persistent {
		return backend.Safety{DestructiveOnStop: false, Rebuildable: true}
	}
	return backend.Safety{DestructiveOnStop: true, Rebuildable: false}
}

// Kind identifies this backend variant.
func (b *Backend) Kind() string { return "sprite" }

// ListResources returns the names of every sprite instance matching this
// backend's name prefix, for orphan detection.
func (b *Backend) ListResources(ctx context.Context) ([]string, error) {
	out, err := b.run(ctx, "list", "--format", "name")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		name := strings.TrimSpace(line)
		if name != "" && strings.HasPrefix(name, b.namePrefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

var (
	_ backend.Backend = (*Backend)(nil)
	_ backend.Lister  = (*Backend)(nil)
)
