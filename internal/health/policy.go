// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package health classifies a session's observed state into a health
// verdict and the set of recovery actions that verdict permits (spec
// §4.6). Classification and the allowed-action table are both pure
// functions, table-driven and unit-tested, in the style of the
// teacher's periodic-classification components.
package health

import "fmt"

// State is the per-reconcile-pass health verdict for a session.
type State string

const (
	Healthy           State = "Healthy"
	Stopped           State = "Stopped"
	Hibernated        State = "Hibernated"
	Pending           State = "Pending"
	Missing           State = "Missing"
	Error             State = "Error"
	CrashLoop         State = "CrashLoop"
	DeletedExternally State = "DeletedExternally"
	DataLost          State = "DataLost"
	WorktreeMissing   State = "WorktreeMissing"
)

// Action is a recovery operation the UI may offer for a given State.
type Action string

const (
	ActionStart         Action = "Start"
	ActionWake          Action = "Wake"
	ActionRecreate      Action = "Recreate"
	ActionRecreateFresh Action = "RecreateFresh"
	ActionUpdateImage   Action = "UpdateImage"
	ActionCleanup       Action = "Cleanup"
)

// BackendState is what the reconciler observed about the backend resource.
type BackendState string

const (
	BackendAbsent       BackendState = "absent"
	BackendStoppedState BackendState = "stopped"
	BackendStarting     BackendState = "starting"
	BackendHealthy      BackendState = "healthy"
	BackendErrored      BackendState = "errored"
	BackendCrashLooping BackendState = "crash_looping"
	BackendGoneExternal BackendState = "deleted_externally"
)

// Safety is the per-backend-variant policy consumed by classification; see
// backend.Safety for the source of truth, duplicated here as plain fields
// so this package has no import-cycle dependency on internal/backend.
type Safety struct {
	DestructiveOnStop bool
	Rebuildable       bool
	Remote            bool
}

// Observation is everything Classify needs about one session's reality.
type Observation struct {
	WorktreePresent bool
	Backend         BackendState
	ErrorReason     string
	Safety          Safety
}

// Verdict is a classification result: a State, and — for Error, DataLost
// and WorktreeMissing — an explanatory reason string.
type Verdict struct {
	State  State
	Reason string
}

// Classify implements the table in spec §4.6. It is a total function over
// (state, safety): every BackendState/WorktreePresent/Safety combination
// maps to exactly one Verdict.
func Classify(obs Observation) Verdict {
	switch {
	case !obs.WorktreePresent && obs.Backend == BackendAbsent:
		return Verdict{State: WorktreeMissing, Reason: "worktree and backend both absent — data possibly already gone"}
	case !obs.WorktreePresent:
		return Verdict{State: WorktreeMissing, Reason: "backend orphaned on disk, worktree missing"}
	case obs.Backend == BackendAbsent:
		return Verdict{State: Missing}
	case obs.Backend == BackendGoneExternal:
		return Verdict{State: DeletedExternally}
	case obs.Backend == BackendCrashLooping:
		return Verdict{State: CrashLoop}
	case obs.Backend == BackendErrored:
		return Verdict{State: Error, Reason: obs.ErrorReason}
	case obs.Backend == BackendStarting:
		return Verdict{State: Pending}
	case obs.Backend == BackendHealthy:
		return Verdict{State: Healthy}
	case obs.Backend == BackendStoppedState && obs.Safety.DestructiveOnStop:
		return Verdict{State: DataLost, Reason: "backend was auto-destroyed"}
	case obs.Backend == BackendStoppedState && obs.Safety.Remote:
		return Verdict{State: Hibernated}
	case obs.Backend == BackendStoppedState:
		return Verdict{State: Stopped}
	default:
		return Verdict{State: Error, Reason: fmt.Sprintf("unrecognized backend state %q", obs.Backend)}
	}
}

// AllowedActions is the pure function from (health, safety) to the set of
// recovery actions the UI may offer. DataLost never offers Recreate — doing
// so would silently confirm the loss.
func AllowedActions(state State, safety Safety) []Action {
	switch state {
	case Healthy, Pending:
		return nil
	case Stopped:
		return []Action{ActionStart, ActionRecreate, ActionCleanup}
	case Hibernated:
		return []Action{ActionWake, ActionRecreate, ActionCleanup}
	case Missing:
		if safety.Rebuildable {
			return []Action{ActionRecreate, ActionCleanup}
		}
		return []Action{ActionCleanup}
	case Error:
		return []Action{ActionRecreate, ActionRecreateFresh, ActionCleanup}
	case CrashLoop:
		return []Action{ActionRecreateFresh, ActionCleanup}
	case DeletedExternally:
		return []Action{ActionRecreate, ActionCleanup}
	case DataLost:
		return []Action{ActionRecreateFresh, ActionCleanup}
	case WorktreeMissing:
		return []Action{ActionCleanup}
	default:
		return []Action{ActionCleanup}
	}
}

// HasAction reports whether actions contains a.
func HasAction(actions []Action, a Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}
