// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package container implements backend.Backend by shelling out to the
// docker CLI, following the same exec.CommandContext-and-pipe-output shape
// the teacher uses in internal/logs/source_docker.go.
package container

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

// Backend runs each session in its own docker container.
type Backend struct {
	image        string
	namePrefix   string
	extraBinds   []string
	extraEnv     []string
	dockerBinary string
}

// New builds a container backend. image is the default image used when
// opts.ImageOverrides["image"] is unset.
func New(image, namePrefix string) *Backend {
	if namePrefix == "" {
		namePrefix = "clauderon-"
	}
	return &Backend{image: image, namePrefix: namePrefix, dockerBinary: "docker"}
}

func (b *Backend) containerName(name string) string {
	return b.namePrefix + name
}

func (b *Backend) docker(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, b.dockerBinary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.Bytes(), fmt.Errorf("docker %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Create runs the container image detached, bind-mounting workdir as the
// container's working directory, and returns the container name as the
// resource id.
func (b *Backend) Create(ctx context.Context, name, workdir, initialPrompt string, opts backend.CreateOptions) (string, error) {
	containerName := b.containerName(name)

	image := b.image
	if override, ok := opts.ImageOverrides["image"]; ok && override != "" {
		image = override
	}
	if image == "" {
		return "", fmt.Errorf("container backend: no image configured for session %s", name)
	}

	args := []string{"run", "-d", "--name", containerName}
	if workdir != "" {
		args = append(args, "-v", fmt.Sprintf("%s:/workspace", workdir), "-w", "/workspace")
	}
	for _, env := range b.extraEnv {
		args = append(args, "-e", env)
	}
	for _, bind := range b.extraBinds {
		args = append(args, "-v", bind)
	}
	for k, v := range opts.ResourceLimits {
		args = append(args, dockerResourceFlag(k, v)...)
	}
	args = append(args, image)

	if _, err := b.docker(ctx, args...); err != nil {
		return "", err
	}

	if initialPrompt != "" {
		if err := b.sendText(ctx, containerName, initialPrompt); err != nil {
			return containerName, fmt.Errorf("container seed initial prompt: %w", err)
		}
	}

	return containerName, nil
}

func dockerResourceFlag(key, value string) []string {
	switch key {
	case "memory":
		return []string{"--memory", value}
	case "cpus":
		return []string{"--cpus", value}
	default:
		return nil
	}
}

func (b *Backend) sendText(ctx context.Context, containerName, text string) error {
	cmd := exec.CommandContext(ctx, b.dockerBinary, "exec", "-i", containerName, "sh", "-c", "cat > /proc/1/fd/0")
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}

// Exists reports whether the container is present (running or stopped).
func (b *Backend) Exists(ctx context.Context, resourceID string) (bool, error) {
	out, err := b.docker(ctx, "inspect", "-f", "{{.Id}}", resourceID)
	if err != nil {
		return false, nil
	}
	return len(bytes.TrimSpace(out)) > 0, nil
}

// Delete force-removes the container. Idempotent.
func (b *Backend) Delete(ctx context.Context, resourceID string) error {
	if _, err := b.docker(ctx, "rm", "-f", resourceID); err != nil {
		if exists, _ := b.Exists(ctx, resourceID); !exists {
			return nil
		}
		return err
	}
	return nil
}

// Observe classifies container sub-state from `docker inspect`'s status and
// exit code.
func (b *Backend) Observe(ctx context.Context, resourceID string) (health.BackendState, string, error) {
	out, err := b.docker(ctx, "inspect", "-f", "{{.State.Status}}|{{.State.ExitCode}}|{{.State.OOMKilled}}", resourceID)
	if err != nil {
		return health.BackendAbsent, "", nil
	}

	fields := strings.SplitN(strings.TrimSpace(string(out)), "|", 3)
	if len(fields) < 3 {
		return health.BackendErrored, "unexpected docker inspect output", nil
	}
	status, exitCodeStr, oomKilled := fields[0], fields[1], fields[2]

	switch status {
	case "running":
		return health.BackendHealthy, "", nil
	case "exited":
		if oomKilled == "true" {
			return health.BackendErrored, "container OOM-killed", nil
		}
		exitCode, _ := strconv.Atoi(exitCodeStr)
		if exitCode != 0 {
			return health.BackendErrored, fmt.Sprintf("container exited with code %d", exitCode), nil
		}
		return health.BackendErrored, "container exited", nil
	case "restarting":
		return health.BackendErrored, "container restarting", nil
	default:
		return health.BackendErrored, fmt.Sprintf("container status %q", status), nil
	}
}

// GetOutput returns the tail of the container's stdout/stderr via `docker
// logs --tail`.
func (b *Backend) GetOutput(ctx context.Context, resourceID string, lines int) ([]byte, error) {
	args := []string{"logs"}
	if lines > 0 {
		args = append(args, "--tail", strconv.Itoa(lines))
	}
	args = append(args, resourceID)
	return b.docker(ctx, args...)
}

// AttachCommand returns the local argv that attaches a terminal to the
// container's primary process.
func (b *Backend) AttachCommand(ctx context.Context, resourceID string) ([]string, error) {
	return []string{"docker", "attach", resourceID}, nil
}

// SendInput writes bytes to the container's stdin via `docker exec`.
func (b *Backend) SendInput(ctx context.Context, resourceID string, data []byte) error {
	cmd := exec.CommandContext(ctx, b.dockerBinary, "exec", "-i", resourceID, "sh", "-c", "cat > /proc/1/fd/0")
	cmd.Stdin = bytes.NewReader(data)
	return cmd.Run()
}

// Resize is a no-op: docker containers don't expose a PTY resize primitive
// without an attached docker-exec session already holding the tty.
func (b *Backend) Resize(ctx context.Context, resourceID string, rows, cols int) error {
	return nil
}

// Signal delivers signal to the container's PID 1 via `docker kill -s`.
func (b *Backend) Signal(ctx context.Context, resourceID string, sig string) error {
	_, err := b.docker(ctx, "kill", "-s", sig, resourceID)
	return err
}

// IsRemote is always false: containers run on the local docker host.
func (b *Backend) IsRemote() bool { return false }

// SafetyClassification: containers are rebuildable — a fresh container from
// the same image, bind-mounted to the same worktree, preserves user work —
// and stopping one doesn't by itself destroy the bind-mounted worktree.
func (b *Backend) SafetyClassification() backend.Safety {
	return backend.Safety{DestructiveOnStop: false, Rebuildable: true}
}

// Kind identifies this backend variant.
func (b *Backend) Kind() string { return "container" }

// ListResources returns the names of every container matching this
// backend's name prefix, for orphan detection.
func (b *Backend) ListResources(ctx context.Context) ([]string, error) {
	out, err := b.docker(ctx, "ps", "-a", "--filter", "name=^"+b.namePrefix, "--format", "{{.Names}}")
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(string(out)), nil
}

func splitNonEmptyLines(s string) []string {
	var names []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

var (
	_ backend.Backend = (*Backend)(nil)
	_ backend.Lister  = (*Backend)(nil)
)
