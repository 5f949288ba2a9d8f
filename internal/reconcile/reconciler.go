// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package reconcile implements the periodic + on-demand + hook-triggered
// reconciliation loop (spec §4.7): for every live session it observes
// worktree and backend reality, classifies health via internal/health,
// emits change-only events for drifted fields, tracks a per-session
// attempt counter, and surfaces backend resources that aren't
// claimed by any session as orphans. Grounded on teacher
// internal/crashes/manager.go's periodic-classification-plus-counters shape
// and internal/events/pattern.go's name-pattern matching, generalized from
// log-pattern matching to backend-resource-name matching. Session fan-out
// uses golang.org/x/sync/errgroup bounded by a semaphore, since the teacher
// only ever reconciles one worktree's services at a time and clauderon
// reconciles N sessions concurrently.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/shepherdjerred/clauderon/internal/backend"
	"github.com/shepherdjerred/clauderon/internal/events"
	"github.com/shepherdjerred/clauderon/internal/health"
	"github.com/shepherdjerred/clauderon/internal/worktree"
)

// MaxReconcileAttempts is the attempt count past which a failing session is
// logged as requiring manual intervention (spec §4.7). Later passes still
// observe the session.
const MaxReconcileAttempts = 5

// DefaultInterval is the periodic reconcile cadence (spec §4.7: "default
// 30s").
const DefaultInterval = 30 * time.Second

// maxConcurrentObservations bounds how many sessions are observed in
// parallel during a single pass.
const maxConcurrentObservations = 8

// Store is the subset of *store.Store the reconciler depends on.
type Store interface {
	ListSessions() ([]*events.Session, error)
	GetSession(id uuid.UUID) (*events.Session, error)
	UpdateReconcileState(id uuid.UUID, attempts int, lastErr string) error
}

// SessionUpdater is the subset of *session.Manager the reconciler uses to
// emit change-only status updates, kept as an interface so tests can
// substitute a fake without constructing a full Manager.
type SessionUpdater interface {
	UpdateWorktreeDirty(ctx context.Context, id uuid.UUID, isDirty bool) error
	UpdatePRCheckStatus(ctx context.Context, id uuid.UUID, status events.CheckStatus) error
	UpdateConflictStatus(ctx context.Context, id uuid.UUID, isConflict bool) error
}

// ForgeClient is the external git-forge CLI collaborator that supplies PR
// check status and merge-conflict state for sessions with a linked PR.
// Spec §8 policy: forge CLI transients (network, auth expiry) are logged
// but never degrade session state — only a clear, successful read changes
// CheckStatus or IsConflict.
type ForgeClient interface {
	CheckPR(ctx context.Context, prURL string) (status events.CheckStatus, isConflict bool, err error)
}

// Observation is what one reconcile pass learned about one session.
type Observation struct {
	SessionID uuid.UUID
	Verdict   health.Verdict
	Actions   []health.Action
	Err       error
}

// Report summarizes one full reconcile pass (spec §4.7 / §8's
// ReconcileReport response).
type Report struct {
	Observations []Observation
	Orphans      []OrphanResource
	StartedAt    time.Time
	FinishedAt   time.Time
}

// OrphanResource is a backend resource whose name follows the daemon's
// naming convention but whose id is claimed by no session. Never
// auto-deleted (spec §4.7 step 5).
type OrphanResource struct {
	Backend    string
	ResourceID string
}

// Reconciler runs reconcile passes across every live session.
type Reconciler struct {
	store     Store
	sessions  SessionUpdater
	worktrees *worktree.Driver
	backends  map[string]backend.Backend
	forge     ForgeClient

	pingCh chan uuid.UUID
}

// New builds a Reconciler. forge may be nil, in which case PR check/conflict
// observation is skipped entirely.
func New(st Store, sessions SessionUpdater, worktrees *worktree.Driver, backends map[string]backend.Backend, forge ForgeClient) *Reconciler {
	return &Reconciler{
		store:     st,
		sessions:  sessions,
		worktrees: worktrees,
		backends:  backends,
		forge:     forge,
		pingCh:    make(chan uuid.UUID, 64),
	}
}

// Run drives the periodic + hook-triggered reconcile loop until ctx is
// canceled. Hook pings (spec §4.10) trigger a targeted single-session pass
// via Ping; the ticker drives a full pass.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReconcileAll(ctx); err != nil {
				log.Error().Err(err).Msg("reconcile pass failed")
			}
		case id := <-r.pingCh:
			if err := r.reconcileOne(ctx, id); err != nil {
				log.Warn().Err(err).Str("session", id.String()).Msg("targeted reconcile failed")
			}
		}
	}
}

// Ping requests a targeted reconcile pass on one session, from a hook
// arrival (spec §4.10). Non-blocking: a full queue drops the ping, since the
// next periodic pass will cover it anyway.
func (r *Reconciler) Ping(id uuid.UUID) {
	select {
	case r.pingCh <- id:
	default:
		log.Warn().Str("session", id.String()).Msg("reconcile ping queue full, dropped")
	}
}

// ReconcileAll runs one full pass over every live session (spec §4.7),
// fanning out observation concurrently bounded by maxConcurrentObservations,
// and reports orphaned backend resources.
func (r *Reconciler) ReconcileAll(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: reconcileNow()}

	sessions, err := r.store.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("reconcile: list sessions: %w", err)
	}
	live := filterLive(sessions)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentObservations)

	results := make([]Observation, len(live))
	for i, session := range live {
		i, session := i, session
		group.Go(func() error {
			results[i] = r.observeSession(gctx, session)
			return nil
		})
	}
	_ = group.Wait() // observeSession never returns an error itself; per-session failures live in Observation.Err

	report.Observations = results
	report.Orphans = r.findOrphans(ctx, sessions)
	report.FinishedAt = reconcileNow()
	return report, nil
}

// reconcileOne runs a single-session pass triggered by a hook ping.
func (r *Reconciler) reconcileOne(ctx context.Context, id uuid.UUID) error {
	session, err := r.store.GetSession(id)
	if err != nil {
		return err
	}
	if session == nil || !isLive(session) {
		return nil
	}
	obs := r.observeSession(ctx, session)
	return obs.Err
}

// observeSession implements spec §4.7 steps 1-4 for one session: observe,
// classify, emit change-only events, and maintain the attempt counter.
func (r *Reconciler) observeSession(ctx context.Context, session *events.Session) Observation {
	be, ok := r.backends[session.Backend]
	if !ok {
		err := fmt.Errorf("reconcile: unknown backend kind %q", session.Backend)
		r.recordAttempt(session, err)
		return Observation{SessionID: session.ID, Err: err}
	}

	worktreePresent := r.worktrees.Exists(session.WorktreePath)
	if worktreePresent {
		dirty := r.worktrees.WorktreeDirty(ctx, session.WorktreePath)
		if dirty != session.IsWorktreeDirty {
			if err := r.sessions.UpdateWorktreeDirty(ctx, session.ID, dirty); err != nil {
				log.Warn().Err(err).Str("session", session.Name).Msg("failed to emit worktree-dirty change")
			}
		}
	}

	backendState, reason, err := be.Observe(ctx, session.BackendResourceID)
	if err != nil {
		r.recordAttempt(session, err)
		return Observation{SessionID: session.ID, Err: err}
	}

	verdict := health.Classify(health.Observation{
		WorktreePresent: worktreePresent,
		Backend:         backendState,
		ErrorReason:     reason,
		Safety:          be.SafetyClassification().ToHealthSafety(be.IsRemote()),
	})
	actions := health.AllowedActions(verdict.State, be.SafetyClassification().ToHealthSafety(be.IsRemote()))

	if session.PRUrl != "" && r.forge != nil {
		r.observeForge(ctx, session)
	}

	r.recordAttempt(session, nil)
	return Observation{SessionID: session.ID, Verdict: verdict, Actions: actions}
}

// observeForge updates PR check status / conflict flag from the forge CLI.
// Per spec §8, transient forge errors (network, auth expiry) are logged and
// otherwise ignored — they never degrade session state.
func (r *Reconciler) observeForge(ctx context.Context, session *events.Session) {
	status, isConflict, err := r.forge.CheckPR(ctx, session.PRUrl)
	if err != nil {
		log.Debug().Err(err).Str("session", session.Name).Msg("forge CLI check failed, treating as transient")
		return
	}
	if status != "" && status != session.CheckStatus {
		if err := r.sessions.UpdatePRCheckStatus(ctx, session.ID, status); err != nil {
			log.Warn().Err(err).Str("session", session.Name).Msg("failed to emit PR check status change")
		}
	}
	if isConflict != session.IsConflict {
		if err := r.sessions.UpdateConflictStatus(ctx, session.ID, isConflict); err != nil {
			log.Warn().Err(err).Str("session", session.Name).Msg("failed to emit conflict status change")
		}
	}
}

// recordAttempt maintains the reconcile attempt counter and last-error
// string (spec §4.7 step 4), resetting the counter to zero on success and
// logging a warning once it exceeds MaxReconcileAttempts. Retries are not
// capped and there is no back-off between passes.
func (r *Reconciler) recordAttempt(session *events.Session, obsErr error) {
	if obsErr == nil {
		if session.ReconcileAttempts != 0 || session.LastReconcileError != "" {
			if err := r.store.UpdateReconcileState(session.ID, 0, ""); err != nil {
				log.Warn().Err(err).Str("session", session.Name).Msg("failed to clear reconcile state")
			}
		}
		return
	}

	attempts := session.ReconcileAttempts + 1
	if attempts > MaxReconcileAttempts {
		log.Warn().Str("session", session.Name).Int("attempts", attempts).
			Msg("session exceeded max reconcile attempts, requires manual intervention")
	}
	if err := r.store.UpdateReconcileState(session.ID, attempts, obsErr.Error()); err != nil {
		log.Warn().Err(err).Str("session", session.Name).Msg("failed to record reconcile attempt")
	}
}

// findOrphans detects backend resources that follow the daemon's naming
// convention but are claimed by no session, live or archived (spec §4.7
// step 5). Never
// auto-deleted — purely informational.
func (r *Reconciler) findOrphans(ctx context.Context, sessions []*events.Session) []OrphanResource {
	claimed := make(map[string][]string) // backend kind -> claimed resource ids
	for _, session := range sessions {
		claimed[session.Backend] = append(claimed[session.Backend], session.BackendResourceID)
	}

	var orphans []OrphanResource
	for kind, be := range r.backends {
		lister, ok := be.(backend.Lister)
		if !ok {
			continue
		}
		names, err := lister.ListResources(ctx)
		if err != nil {
			log.Warn().Err(err).Str("backend", kind).Msg("failed to list backend resources for orphan detection")
			continue
		}
		for _, name := range names {
			if !isClaimed(name, claimed[kind]) {
				orphans = append(orphans, OrphanResource{Backend: kind, ResourceID: name})
			}
		}
	}
	return orphans
}

// isClaimed reports whether name matches one of claimedIDs, either exactly
// or as a prefix — resourceIDs packed with extra suffix data (e.g. tmux's
// "name@pid") still match on the name portion.
func isClaimed(name string, claimedIDs []string) bool {
	for _, id := range claimedIDs {
		if id == name || (len(id) > len(name) && id[:len(name)+1] == name+"@") {
			return true
		}
	}
	return false
}

func filterLive(sessions []*events.Session) []*events.Session {
	var live []*events.Session
	for _, s := range sessions {
		if isLive(s) {
			live = append(live, s)
		}
	}
	return live
}

// isLive reports whether a session should be reconciled: archived sessions
// keep no backend resource reserved, so they're skipped until restored.
func isLive(s *events.Session) bool {
	return s.Status != events.StatusArchived
}

// reconcileNow is a seam so tests can deterministically control timestamps;
// production code always observes the wall clock.
var reconcileNow = func() time.Time { return time.Now().UTC() }
