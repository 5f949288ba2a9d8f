// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package backend defines the polymorphic contract every execution backend
// (container engine, pod engine, remote sprite, terminal multiplexer) must
// satisfy, per spec §4.3. Concrete variants live in sibling packages
// (tmux, container, pod, sprite); the core only ever depends on this
// interface, never on a concrete variant. Capability detection (IsRemote,
// SafetyClassification) goes through interface methods whose concrete
// implementations return constants or a field-derived struct.
package backend

import (
	"context"

	"github.com/shepherdjerred/clauderon/internal/health"
)

// AccessMode mirrors events.AccessMode without importing it, keeping this
// package's dependency surface minimal (it's imported by every backend
// variant and by the reconciler).
type AccessMode string

const (
	AccessReadOnly  AccessMode = "ReadOnly"
	AccessReadWrite AccessMode = "ReadWrite"
	AccessAdmin     AccessMode = "Admin"
)

// CreateOptions is the structured options record passed to Create. Unknown
// fields are ignored by every variant; missing optionals take backend
// defaults — callers build it with named fields, never positional args, so
// the enumerated set in spec §4.3 stays the single source of truth.
type CreateOptions struct {
	SessionID           string
	ProxyPort           int
	HTTPCallbackPort    int
	GitIdentity         string
	ImageOverrides      map[string]string
	ResourceLimits      map[string]string
	PlanMode            bool
	DangerousSkipSafety bool
	AccessMode          AccessMode
}

// Safety is the per-backend-variant classification consumed by the health
// policy (spec §4.6).
type Safety struct {
	// DestructiveOnStop is true when deleting the resource loses
	// uncommitted work (remote sprites in auto-destroy mode).
	DestructiveOnStop bool
	// Rebuildable is true when a fresh resource reattached to the same
	// worktree preserves user work.
	Rebuildable bool
}

// ToHealthSafety adapts Safety to health.Safety for Classify calls.
func (s Safety) ToHealthSafety(remote bool) health.Safety {
	return health.Safety{DestructiveOnStop: s.DestructiveOnStop, Rebuildable: s.Rebuildable, Remote: remote}
}

// Backend is the capability set every execution backend variant
// implements: create resource, observe existence/state, delete, fetch
// output tail, build an attach command, and report its safety
// classification.
type Backend interface {
	// Create starts a new resource for name, rooted at workdir, and
	// returns an opaque resource id the core treats as a black box.
	Create(ctx context.Context, name, workdir, initialPrompt string, opts CreateOptions) (resourceID string, err error)
	// Exists reports whether resourceID is still present in the backend.
	Exists(ctx context.Context, resourceID string) (bool, error)
	// Delete removes resourceID. Idempotent: deleting an already-gone
	// resource is success, not an error.
	Delete(ctx context.Context, resourceID string) error
	// Observe reports the backend's sub-state for health classification.
	Observe(ctx context.Context, resourceID string) (health.BackendState, string, error)
	// GetOutput returns the last n lines of the resource's stdout/PTY
	// tail, for non-interactive inspection.
	GetOutput(ctx context.Context, resourceID string, lines int) ([]byte, error)
	// AttachCommand returns a local argv that, when executed, streams the
	// resource's TTY (e.g. `docker attach <id>`, `tmux attach -t <name>`).
	AttachCommand(ctx context.Context, resourceID string) ([]string, error)
	// SendInput writes bytes to the resource's PTY input.
	SendInput(ctx context.Context, resourceID string, data []byte) error
	// Resize adjusts the resource's PTY dimensions.
	Resize(ctx context.Context, resourceID string, rows, cols int) error
	// Signal delivers a signal (by name, e.g. "SIGINT") to the resource's
	// primary process.
	Signal(ctx context.Context, resourceID string, signal string) error

	// IsRemote reports whether the resource runs off-host (every concrete
	// variant answers it with a constant).
	IsRemote() bool
	// SafetyClassification returns this variant's recovery-policy
	// classification.
	SafetyClassification() Safety
	// Kind names the backend variant ("container", "pod", "sprite", "tmux").
	Kind() string
}

// Lister is an optional capability a Backend variant implements when it can
// enumerate every resource it manages by naming convention. The reconciler
// type-asserts for it to find orphans (spec §4.7 step 5): resources that
// follow the daemon's naming convention but aren't claimed by any session.
type Lister interface {
	ListResources(ctx context.Context) ([]string, error)
}
