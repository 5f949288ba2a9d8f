// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package proxy implements the per-session MITM interception proxy
// (spec.md §4.9): a session's HTTP(S) traffic for a fixed list of known
// hosts is intercepted, credentials the session was never given are
// injected into the outbound request, and the result is audited. Grounded
// on original_source/.../proxy/{rules,audit,ca}.rs for the rule table and
// audit format, and on teacher internal/proxy.go's hijack-based
// bidirectional-copy loop for the CONNECT tunnel (listener.go).
package proxy

import (
	"encoding/base64"
	"strings"
)

// AuthEncoding selects how a credential is rendered into the injected
// header, matching original_source/.../proxy/rules.rs's AuthEncoding enum.
type AuthEncoding int

const (
	// Simple substitutes the token into Format wherever "{}" appears.
	Simple AuthEncoding = iota
	// BasicAuthWithToken renders "Basic base64(x-access-token:<token>)",
	// the scheme GitHub's HTTP Basic git-over-https endpoint expects.
	BasicAuthWithToken
)

// Rule maps one known host (or wildcard host pattern) to the header and
// credential it should receive.
type Rule struct {
	HostPattern   string
	HeaderName    string
	Format        string
	CredentialKey string
	Encoding      AuthEncoding

	// readOnly marks rules whose injected credential only ever grants read
	// access to the upstream API, so a ReadOnly session may still use them.
	// No entry in Rules sets this today (see note below); it exists so a
	// future read-scoped credential can flip it without restructuring Rule.
	readOnly bool
}

// matches reports whether host satisfies r.HostPattern. A pattern of the
// form "*.example.com" matches any subdomain of example.com but not the
// apex itself, matching original_source/.../proxy/rules.rs's matches().
func (r Rule) matches(host string) bool {
	if strings.HasPrefix(r.HostPattern, "*.") {
		suffix := r.HostPattern[1:] // ".example.com"
		return strings.HasSuffix(host, suffix) && host != r.HostPattern[2:]
	}
	return host == r.HostPattern
}

// FormatHeader renders this rule's header value for the given credential
// token.
func (r Rule) FormatHeader(token string) string {
	switch r.Encoding {
	case BasicAuthWithToken:
		raw := "x-access-token:" + token
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
	default:
		return strings.ReplaceAll(r.Format, "{}", token)
	}
}

// Mutating reports whether this rule injects write-capable credentials —
// used by the access-mode filter (spec.md §4.9's ReadOnly/ReadWrite/Admin
// pruning) to decide whether a ReadOnly session may use it.
//
// Every rule in Rules currently injects a single bearer-style credential
// with no distinct read/write scoping in this daemon, so the decision is a
// static per-rule flag rather than derived from the credential itself.
func (r Rule) Mutating() bool {
	return !r.readOnly
}

// Rules is the static table of known hosts this proxy intercepts,
// transcribed from original_source/.../proxy/rules.rs's RULES constant.
// The grafana.tailnet-*.ts.net entry is kept verbatim: it names a host
// pattern only, and defining a static rule for it requires no dependency
// on the tailscale/tscert library that was otherwise dropped (see
// DESIGN.md).
var Rules = []Rule{
	{HostPattern: "api.github.com", HeaderName: "Authorization", Format: "Bearer {}", CredentialKey: "github", Encoding: Simple},
	{HostPattern: "github.com", HeaderName: "Authorization", CredentialKey: "github", Encoding: BasicAuthWithToken},
	{HostPattern: "api.anthropic.com", HeaderName: "Authorization", Format: "Bearer {}", CredentialKey: "anthropic", Encoding: Simple},
	{HostPattern: "api.pagerduty.com", HeaderName: "Authorization", Format: "Token token={}", CredentialKey: "pagerduty", Encoding: Simple},
	{HostPattern: "sentry.io", HeaderName: "Authorization", Format: "Bearer {}", CredentialKey: "sentry", Encoding: Simple},
	{HostPattern: "registry.npmjs.org", HeaderName: "Authorization", Format: "Bearer {}", CredentialKey: "npm", Encoding: Simple},
	{HostPattern: "*.docker.io", HeaderName: "Authorization", Format: "Bearer {}", CredentialKey: "docker", Encoding: Simple},
	{HostPattern: "grafana.tailnet-1a49.ts.net", HeaderName: "Authorization", Format: "Bearer {}", CredentialKey: "grafana", Encoding: Simple},
}

// FindMatchingRule returns the first rule whose pattern matches host, if
// any.
func FindMatchingRule(host string) (Rule, bool) {
	for _, r := range Rules {
		if r.matches(host) {
			return r, true
		}
	}
	return Rule{}, false
}
