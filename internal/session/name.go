// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"crypto/rand"
	"strings"
)

const (
	suffixCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffixLength  = 4
	maxNameLength = 200
)

// Sanitize converts name into a valid git branch name / session name,
// translated line-for-line from original_source's sanitize_branch_name:
// length-capped, disallowed characters replaced with '-', runs of 2+ dots
// collapsed to a single '-', leading/trailing '-'/'.'/'/' trimmed, a
// trailing ".lock" (reserved by git) stripped repeatedly, and an
// all-special-chars input falling back to "session".
func Sanitize(name string) string {
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, c := range name {
		switch {
		case c == ' ' || c == '~' || c == '^' || c == ':' || c == '?' || c == '*' ||
			c == '[' || c == '\\' || c == '@' || c == '{' || c == '}':
			b.WriteByte('-')
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '_' || c == '/' || c == '.':
			b.WriteRune(c)
		default:
			b.WriteByte('-')
		}
	}

	collapsed := collapseDotRuns(b.String())
	trimmed := strings.Trim(collapsed, "-./")

	for strings.HasSuffix(trimmed, ".lock") {
		trimmed = strings.TrimSuffix(trimmed, ".lock")
	}
	trimmed = strings.Trim(trimmed, "-./")

	if trimmed == "" {
		return "session"
	}
	return trimmed
}

// collapseDotRuns replaces every run of 2+ '.' characters with a single
// '-', leaving single dots untouched.
func collapseDotRuns(s string) string {
	var b strings.Builder
	dotCount := 0
	flush := func() {
		switch dotCount {
		case 0:
		case 1:
			b.WriteByte('.')
		default:
			b.WriteByte('-')
		}
		dotCount = 0
	}
	for _, c := range s {
		if c == '.' {
			dotCount++
			continue
		}
		flush()
		b.WriteRune(c)
	}
	flush()
	return b.String()
}

// Suggest returns a sanitized name with a random 4-character lowercase
// alnum suffix appended, for new sessions and for collision retries (spec
// §4.5: "later requests for that base name receive a randomized suffix").
func Suggest(baseName string) (string, error) {
	sanitized := Sanitize(baseName)
	suffix, err := randomSuffix(suffixLength)
	if err != nil {
		return "", err
	}
	return sanitized + "-" + suffix, nil
}

func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = suffixCharset[int(b)%len(suffixCharset)]
	}
	return string(out), nil
}
