// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package proxy

import "github.com/shepherdjerred/clauderon/internal/backend"

// Allowed reports whether a session in the given access mode may use rule
// at all (spec.md §4.9: "ReadOnly sessions have mutating rules pruned;
// Admin sessions see the full rule set"). A rule that is not allowed is
// denied with 403 without contacting the upstream host or the credential
// chain — the request never leaves the proxy.
func Allowed(mode backend.AccessMode, r Rule) bool {
	switch mode {
	case backend.AccessReadOnly:
		return !r.Mutating()
	case backend.AccessReadWrite, backend.AccessAdmin:
		return true
	default:
		return false
	}
}
