// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"time"

	"github.com/google/uuid"
)

// Status is the primary lifecycle state machine (spec §4.5).
type Status string

const (
	StatusCreating  Status = "Creating"
	StatusRunning   Status = "Running"
	StatusIdle      Status = "Idle"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusArchived  Status = "Archived"
)

// AccessMode gates which proxy rules a session's outbound traffic may use.
type AccessMode string

const (
	AccessReadOnly  AccessMode = "ReadOnly"
	AccessReadWrite AccessMode = "ReadWrite"
	AccessAdmin     AccessMode = "Admin"
)

// ClaudeWorkingStatus is the agent's derived working state, driven by hook
// ingest (spec §4.10).
type ClaudeWorkingStatus string

const (
	ClaudeIdle            ClaudeWorkingStatus = "Idle"
	ClaudeWorking         ClaudeWorkingStatus = "Working"
	ClaudeWaitingApproval ClaudeWorkingStatus = "WaitingApproval"
	ClaudeWaitingInput    ClaudeWorkingStatus = "WaitingInput"
)

// CheckStatus is the derived PR check state, driven by the reconciler's
// forge-CLI collaborator.
type CheckStatus string

const (
	CheckUnknown CheckStatus = ""
	CheckPending CheckStatus = "Pending"
	CheckPassing CheckStatus = "Passing"
	CheckFailing CheckStatus = "Failing"
)

// Session is the materialized row a Store keeps in sync with its event log.
// Folding a session's events in id order must reproduce this struct exactly
// (up to the non-event-derived cached columns noted per field).
type Session struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`

	RepoPath      string `json:"repoPath"`
	Subdirectory  string `json:"subdirectory,omitempty"`
	Branch        string `json:"branch"`
	InitialPrompt string `json:"initialPrompt"`
	Agent         string `json:"agent"`
	Backend       string `json:"backend"`

	// WorktreePath is derived from Name, not carried in any event payload;
	// the store fills it in after Fold using its configured worktree root.
	WorktreePath      string `json:"worktreePath"`
	BackendResourceID string `json:"backendResourceId,omitempty"`
	ProxyPort         int    `json:"proxyPort,omitempty"`

	Status              Status              `json:"status"`
	ClaudeStatus        ClaudeWorkingStatus `json:"claudeStatus"`
	CheckStatus         CheckStatus         `json:"checkStatus"`
	PRUrl               string              `json:"prUrl,omitempty"`
	IsConflict          bool                `json:"isConflict"`
	IsWorktreeDirty     bool                `json:"isWorktreeDirty"`

	AccessMode          AccessMode `json:"accessMode"`
	DangerousSkipSafety bool       `json:"dangerousSkipSafety"`
	AutoDestroyOnStop   bool       `json:"autoDestroyOnStop"`

	// ReconcileAttempts and LastReconcileError are not event-derived: the
	// reconciler updates them directly on the materialized row (spec §4.7).
	ReconcileAttempts  int       `json:"reconcileAttempts"`
	LastReconcileError string    `json:"lastReconcileError,omitempty"`
	LastReconcileAt    time.Time `json:"lastReconcileAt,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
}

// Fold reconstructs a Session by replaying events in MonotonicID order. It
// returns (nil, false) if events is empty, doesn't start with
// SessionCreated, or contains SessionDeleted. Fold is a pure function over
// its input — no I/O, no clock reads besides what's embedded in the events
// themselves — so it is independently testable from the store.
func Fold(evs []Event) (*Session, bool) {
	if len(evs) == 0 {
		return nil, false
	}

	first := evs[0]
	if first.Kind != KindSessionCreated {
		return nil, false
	}
	var created SessionCreatedPayload
	if err := first.Decode(&created); err != nil {
		return nil, false
	}

	accessMode := created.AccessMode
	if accessMode == "" {
		accessMode = AccessReadWrite
	}

	s := &Session{
		ID:                  first.SessionID,
		Name:                created.Name,
		RepoPath:            created.RepoPath,
		Subdirectory:        created.Subdirectory,
		Branch:              created.Branch,
		Backend:             created.Backend,
		Agent:               created.Agent,
		InitialPrompt:       created.InitialPrompt,
		Status:              StatusCreating,
		ClaudeStatus:        ClaudeIdle,
		AccessMode:          accessMode,
		DangerousSkipSafety: created.DangerousSkipSafety,
		AutoDestroyOnStop:   created.AutoDestroyOnStop,
		CreatedAt:           first.Timestamp,
		UpdatedAt:           first.Timestamp,
	}

	for _, ev := range evs[1:] {
		if ev.SessionID != first.SessionID {
			continue
		}
		s.UpdatedAt = ev.Timestamp

		switch ev.Kind {
		case KindStatusChanged:
			var p StatusChangedPayload
			if ev.Decode(&p) == nil {
				s.Status = Status(p.New)
			}
		case KindBackendIDSet:
			var p BackendIDSetPayload
			if ev.Decode(&p) == nil {
				s.BackendResourceID = p.ID
			}
		case KindPrLinked:
			var p PrLinkedPayload
			if ev.Decode(&p) == nil {
				s.PRUrl = p.URL
			}
		case KindCheckStatusChanged:
			var p CheckStatusChangedPayload
			if ev.Decode(&p) == nil {
				s.CheckStatus = CheckStatus(p.New)
			}
		case KindClaudeStatusChanged:
			var p ClaudeStatusChangedPayload
			if ev.Decode(&p) == nil {
				s.ClaudeStatus = ClaudeWorkingStatus(p.New)
			}
		case KindConflictChanged:
			var p ConflictChangedPayload
			if ev.Decode(&p) == nil {
				s.IsConflict = p.IsConflict
			}
		case KindWorktreeDirtyChanged:
			var p WorktreeDirtyChangedPayload
			if ev.Decode(&p) == nil {
				s.IsWorktreeDirty = p.IsDirty
			}
		case KindSessionArchived:
			s.Status = StatusArchived
			t := ev.Timestamp
			s.ArchivedAt = &t
		case KindSessionRestored:
			if s.Status == StatusArchived {
				s.Status = StatusIdle
			}
			s.ArchivedAt = nil
		case KindSessionDeleted:
			return nil, false
		}
	}

	return s, true
}
