// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package portalloc reserves unique, OS-available TCP ports for per-session
// interception proxies from a fixed range. Grounded directly on
// original_source's proxy/port_allocator.rs: same constants, same
// rolling-cursor bind-probe scan, same restore-from-snapshot semantics.
package portalloc

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
)

const (
	// DefaultBasePort is the low end of the per-session proxy port range.
	DefaultBasePort = 18100
	// MaxSessions bounds the range and the number of probe attempts per
	// allocation.
	MaxSessions = 500
)

// ErrNoPortsAvailable is returned when every port in the range is either
// already allocated or unbindable on the host.
var ErrNoPortsAvailable = errors.New("portalloc: no available proxy ports")

// Snapshot is a persisted (port, session) pair, as restored at daemon
// startup from the store.
type Snapshot struct {
	Port      int
	SessionID uuid.UUID
}

// Allocator hands out unique ports in [base, base+max) to sessions. All
// state is guarded by a single mutex. Allocate holds it for its whole scan,
// bind probes included, so concurrent allocations run one at a time; the
// lock is not released around the OS bind probe.
type Allocator struct {
	mu        sync.Mutex
	base      int
	max       int
	next      int
	allocated map[int]uuid.UUID
	probe     func(port int) bool
}

// New builds an Allocator over [base, base+max). Pass 0 for base to use
// DefaultBasePort and 0 for max to use MaxSessions.
func New(base, max int) *Allocator {
	if base == 0 {
		base = DefaultBasePort
	}
	if max == 0 {
		max = MaxSessions
	}
	return &Allocator{
		base:      base,
		max:       max,
		allocated: make(map[int]uuid.UUID),
		probe:     isPortBindable,
	}
}

func isPortBindable(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// Allocate scans forward from the rolling cursor, skipping ports already
// held internally or unbindable on the host, for up to max tries.
func (a *Allocator) Allocate(sessionID uuid.UUID) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; i < a.max; i++ {
		port := a.base + (a.next % a.max)
		a.next = (a.next + 1) % a.max

		if _, taken := a.allocated[port]; taken {
			continue
		}
		if !a.probe(port) {
			continue
		}
		a.allocated[port] = sessionID
		return port, nil
	}

	return 0, ErrNoPortsAvailable
}

// Release frees port. Idempotent: releasing an unallocated or
// already-released port is a no-op.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocated, port)
}

// OwnerOf returns the session owning port, if any.
func (a *Allocator) OwnerOf(port int) (uuid.UUID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.allocated[port]
	return id, ok
}

// Restore re-hydrates the live mapping from persisted snapshots at daemon
// startup. Ports outside [base, base+max) are dropped (caller should log a
// warning per entry dropped). The rolling cursor is advanced past the
// highest restored port so the next Allocate doesn't immediately collide.
func (a *Allocator) Restore(snapshots []Snapshot) (dropped []Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	maxOffset := -1
	for _, snap := range snapshots {
		offset := snap.Port - a.base
		if offset < 0 || offset >= a.max {
			dropped = append(dropped, snap)
			continue
		}
		a.allocated[snap.Port] = snap.SessionID
		if offset > maxOffset {
			maxOffset = offset
		}
	}

	if maxOffset >= 0 {
		a.next = (maxOffset + 1) % a.max
	}
	return dropped
}
