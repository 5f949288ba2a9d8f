// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pod implements backend.Backend by shelling out to the kubectl
// CLI, following the same exec.CommandContext invocation shape the teacher
// uses for Kubernetes in internal/logs/source_k8s.go, applied to pod
// lifecycle rather than log tailing.
package pod

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

// Backend runs each session as its own pod in a Kubernetes namespace.
type Backend struct {
	namespace    string
	image        string
	namePrefix   string
	kubectlBin   string
	podSpecExtra map[string]string
}

// New builds a pod backend targeting namespace, defaulting to image when
// opts.ImageOverrides["image"] is unset.
func New(namespace, image, namePrefix string) *Backend {
	if namespace == "" {
		namespace = "default"
	}
	if namePrefix == "" {
		namePrefix = "clauderon-"
	}
	return &Backend{namespace: namespace, image: image, namePrefix: namePrefix, kubectlBin: "kubectl"}
}

func (b *Backend) podName(name string) string {
	return b.namePrefix + name
}

func (b *Backend) kubectl(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"-n", b.namespace}, args...)
	cmd := exec.CommandContext(ctx, b.kubectlBin, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.Bytes(), fmt.Errorf("kubectl %s: %w: %s", strings.Join(full, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Create runs `kubectl run` for a long-lived pod whose primary container
// sleeps until attached; the agent command is sent afterward via exec, the
// same shape tmux.Backend uses for seeding the initial prompt after
// new-session.
func (b *Backend) Create(ctx context.Context, name, workdir, initialPrompt string, opts backend.CreateOptions) (string, error) {
	podName := b.podName(name)

	image := b.image
	if override, ok := opts.ImageOverrides["image"]; ok && override != "" {
		image = override
	}
	if image == "" {
		return "", fmt.Errorf("pod backend: no image configured for session %s", name)
	}

	args := []string{
		"run", podName,
		"--image", image,
		"--restart=Never",
		"--command", "--", "sleep", "infinity",
	}
	for k, v := range opts.ResourceLimits {
		args = append(args, "--overrides", podResourceOverride(k, v))
	}

	if _, err := b.kubectl(ctx, args...); err != nil {
		return "", err
	}

	if initialPrompt != "" {
		if err := b.sendText(ctx, podName, initialPrompt); err != nil {
			return podName, fmt.Errorf("pod seed initial prompt: %w", err)
		}
	}

	return podName, nil
}

func podResourceOverride(key, value string) string {
	return fmt.Sprintf(`{"spec":{"containers":[{"resources":{"limits":{%q:%q}}}]}}`, key, value)
}

func (b *Backend) sendText(ctx context.Context, podName, text string) error {
	cmd := exec.CommandContext(ctx, b.kubectlBin, "-n", b.namespace, "exec", "-i", podName, "--", "sh", "-c", "cat")
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}

// Exists reports whether the pod object is still present.
func (b *Backend) Exists(ctx context.Context, resourceID string) (bool, error) {
	_, err := b.kubectl(ctx, "get", "pod", resourceID)
	return err == nil, nil
}

// Delete deletes the pod object. Idempotent.
func (b *Backend) Delete(ctx context.Context, resourceID string) error {
	if _, err := b.kubectl(ctx, "delete", "pod", resourceID, "--ignore-not-found", "--wait=false"); err != nil {
		if exists, _ := b.Exists(ctx, resourceID); !exists {
			return nil
		}
		return err
	}
	return nil
}

// Observe classifies pod sub-state from `kubectl get pod -o jsonpath`.
func (b *Backend) Observe(ctx context.Context, resourceID string) (health.BackendState, string, error) {
	out, err := b.kubectl(ctx, "get", "pod", resourceID,
		"-o", "jsonpath={.status.phase}|{.status.containerStatuses[0].restartCount}")
	if err != nil {
		return health.BackendAbsent, "", nil
	}

	fields := strings.SplitN(string(out), "|", 2)
	phase := fields[0]
	restarts := 0
	if len(fields) > 1 {
		restarts, _ = strconv.Atoi(fields[1])
	}

	switch phase {
	case "Running":
		if restarts > 0 {
			return health.BackendErrored, fmt.Sprintf("pod restarted %d times", restarts), nil
		}
		return health.BackendHealthy, "", nil
	case "Pending":
		return health.BackendHealthy, "", nil
	case "Succeeded":
		return health.BackendErrored, "pod completed unexpectedly", nil
	case "Failed":
		return health.BackendErrored, "pod failed", nil
	default:
		return health.BackendErrored, fmt.Sprintf("pod phase %q", phase), nil
	}
}

// GetOutput returns the tail of the pod's container logs.
func (b *Backend) GetOutput(ctx context.Context, resourceID string, lines int) ([]byte, error) {
	args := []string{"logs"}
	if lines > 0 {
		args = append(args, "--tail", strconv.Itoa(lines))
	}
	args = append(args, resourceID)
	return b.kubectl(ctx, args...)
}

// AttachCommand returns the local argv that attaches a terminal to the
// pod's primary container.
func (b *Backend) AttachCommand(ctx context.Context, resourceID string) ([]string, error) {
	return []string{"kubectl", "-n", b.namespace, "attach", "-it", resourceID}, nil
}

// SendInput writes bytes to the pod via `kubectl exec -i`.
func (b *Backend) SendInput(ctx context.Context, resourceID string, data []byte) error {
	cmd := exec.CommandContext(ctx, b.kubectlBin, "-n", b.namespace, "exec", "-i", resourceID, "--", "sh", "-c", "cat")
	cmd.Stdin = bytes.NewReader(data)
	return cmd.Run()
}

// Resize is a no-op: kubectl exec's tty resize requires an already-attached
// session and isn't addressable out-of-band.
func (b *Backend) Resize(ctx context.Context, resourceID string, rows, cols int) error {
	return nil
}

// Signal delivers signal to the pod's primary container process via
// `kubectl exec -- kill`.
func (b *Backend) Signal(ctx context.Context, resourceID string, sig string) error {
	_, err := b.kubectl(ctx, "exec", resourceID, "--", "kill", "-s", sig, "1")
	return err
}

// IsRemote is always true: pods run on a cluster node, never on the
// daemon's host.
func (b *Backend) IsRemote() bool { return true }

// SafetyClassification: a pod is rebuilt trivially from its spec, and
// deleting it doesn't lose anything beyond ephemeral container state.
func (b *Backend) SafetyClassification() backend.Safety {
	return backend.Safety{DestructiveOnStop: false, Rebuildable: true}
}

// Kind identifies this backend variant.
func (b *Backend) Kind() string { return "pod" }

// ListResources returns the names of every pod in the namespace matching
// this backend's name prefix, for orphan detection.
func (b *Backend) ListResources(ctx context.Context) ([]string, error) {
	out, err := b.kubectl(ctx, "get", "pods", "-o", "jsonpath={range .items[*]}{.metadata.name}{\"\\n\"}{end}")
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
