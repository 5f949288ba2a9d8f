// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events defines the durable, append-only event model for
// sessions. An Event is the unit the store persists; folding a session's
// events in id order reconstructs its materialized row.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the shape of an Event's Payload.
type Kind string

const (
	KindSessionCreated       Kind = "SessionCreated"
	KindStatusChanged        Kind = "StatusChanged"
	KindBackendIDSet         Kind = "BackendIdSet"
	KindPrLinked             Kind = "PrLinked"
	KindCheckStatusChanged   Kind = "CheckStatusChanged"
	KindClaudeStatusChanged  Kind = "ClaudeStatusChanged"
	KindConflictChanged      Kind = "ConflictStatusChanged"
	KindWorktreeDirtyChanged Kind = "WorktreeStatusChanged"
	KindSessionArchived      Kind = "SessionArchived"
	KindSessionRestored      Kind = "SessionRestored"
	KindSessionDeleted       Kind = "SessionDeleted"
)

// Event is an immutable, append-only record. MonotonicID is strictly
// increasing within a session's event stream; the store assigns it.
type Event struct {
	MonotonicID int64           `json:"monotonicId"`
	SessionID   uuid.UUID       `json:"sessionId"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
}

// New builds an Event with the payload marshaled to JSON and Timestamp set
// to the current time. MonotonicID is filled in by the store on append.
func New(sessionID uuid.UUID, kind Kind, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{SessionID: sessionID, Kind: kind, Payload: raw, Timestamp: time.Now()}, nil
}

// Decode unmarshals the event's payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Payload shapes, one per Kind. Field names match spec.md §3's Event
// kinds and original_source/.../core/events.rs's EventType variants.

type SessionCreatedPayload struct {
	Name          string `json:"name"`
	RepoPath      string `json:"repoPath"`
	Subdirectory  string `json:"subdirectory,omitempty"`
	Branch        string `json:"branch"`
	Backend       string `json:"backend"`
	Agent         string `json:"agent"`
	InitialPrompt string `json:"initialPrompt"`

	// AccessMode, DangerousSkipSafety, and AutoDestroyOnStop record the
	// policy the session was requested with. Fold only reads these to seed
	// the initial row; the store never lets a later fold overwrite them —
	// SetAccessMode is the sole post-creation writer.
	AccessMode          AccessMode `json:"accessMode,omitempty"`
	DangerousSkipSafety bool       `json:"dangerousSkipSafety,omitempty"`
	AutoDestroyOnStop   bool       `json:"autoDestroyOnStop,omitempty"`
}

type StatusChangedPayload struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type BackendIDSetPayload struct {
	ID string `json:"id"`
}

type PrLinkedPayload struct {
	URL string `json:"url"`
}

type CheckStatusChangedPayload struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type ClaudeStatusChangedPayload struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type ConflictChangedPayload struct {
	IsConflict bool `json:"isConflict"`
}

type WorktreeDirtyChangedPayload struct {
	IsDirty bool `json:"isDirty"`
}

type SessionDeletedPayload struct {
	Reason string `json:"reason,omitempty"`
}
