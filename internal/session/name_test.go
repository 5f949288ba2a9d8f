// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeSpaces(t *testing.T) {
	assert.Equal(t, "my-feature", Sanitize("my feature"))
	assert.Equal(t, "clauderon-automatic-daemon", Sanitize("clauderon automatic daemon"))
}

func TestSanitizeSpecialChars(t *testing.T) {
	cases := []string{"~", "^", ":", "?", "*", "[", "\\", "@"}
	for _, c := range cases {
		assert.Equal(t, "test-branch", Sanitize("test"+c+"branch"), "char %q", c)
	}
}

func TestSanitizeConsecutiveDots(t *testing.T) {
	assert.Equal(t, "test-branch", Sanitize("test..branch"))
	assert.Equal(t, "test-branch", Sanitize("test...branch"))
	assert.Equal(t, "test-branch", Sanitize("test....branch"))
}

func TestSanitizeLockSuffix(t *testing.T) {
	assert.Equal(t, "branch", Sanitize("branch.lock"))
	assert.Equal(t, "branch", Sanitize("branch.lock.lock"))
	assert.Equal(t, "my-branch", Sanitize("my-branch.lock"))
}

func TestSanitizeCurlyBraces(t *testing.T) {
	assert.Equal(t, "test--branch", Sanitize("test@{branch}"))
	assert.Equal(t, "ref--1", Sanitize("ref@{1}"))
}

func TestSanitizeMaxLength(t *testing.T) {
	longName := strings.Repeat("a", 300)
	sanitized := Sanitize(longName)
	assert.LessOrEqual(t, len(sanitized), 200)
}

func TestSanitizeLeadingTrailing(t *testing.T) {
	assert.Equal(t, "test", Sanitize("-test-"))
	assert.Equal(t, "test", Sanitize(".test."))
	assert.Equal(t, "test", Sanitize("/test/"))
	assert.Equal(t, "test", Sanitize("---test---"))
}

func TestSanitizePreservesValid(t *testing.T) {
	assert.Equal(t, "valid-name", Sanitize("valid-name"))
	assert.Equal(t, "valid_name", Sanitize("valid_name"))
	assert.Equal(t, "feature/branch", Sanitize("feature/branch"))
	assert.Equal(t, "v1.2.3", Sanitize("v1.2.3"))
}

func TestSanitizeEmptyResult(t *testing.T) {
	assert.Equal(t, "session", Sanitize("..."))
	assert.Equal(t, "session", Sanitize("@@@"))
	assert.Equal(t, "session", Sanitize(""))
	assert.Equal(t, "session", Sanitize("---"))
}

func TestSuggestAppendsSuffix(t *testing.T) {
	name, err := Suggest("test")
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "test-"))
	assert.Len(t, name, len("test-")+4)
}

func TestSuggestNamesAreUnique(t *testing.T) {
	name1, err := Suggest("test")
	assert.NoError(t, err)
	name2, err := Suggest("test")
	assert.NoError(t, err)
	assert.NotEqual(t, name1, name2)
}

func TestSuggestWithSpaces(t *testing.T) {
	name, err := Suggest("clauderon automatic daemon")
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "clauderon-automatic-daemon-"))
	assert.NotContains(t, name, " ")
}
