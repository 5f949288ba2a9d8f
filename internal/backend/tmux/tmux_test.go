// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package tmux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackUnpackResourceID(t *testing.T) {
	id := packResourceID("clauderon-feat-x", 4242)
	session, pid := unpackResourceID(id)
	assert.Equal(t, "clauderon-feat-x", session)
	assert.Equal(t, 4242, pid)
}

func TestUnpackResourceIDWithoutPID(t *testing.T) {
	session, pid := unpackResourceID("clauderon-feat-x")
	assert.Equal(t, "clauderon-feat-x", session)
	assert.Equal(t, 0, pid)
}

func TestFilterTMUXEnv(t *testing.T) {
	env := []string{"PATH=/bin", "TMUX=/tmp/tmux-1000/default,1234,0", "HOME=/root"}
	filtered := filterTMUXEnv(env)
	assert.NotContains(t, filtered, "TMUX=/tmp/tmux-1000/default,1234,0")
	assert.Contains(t, filtered, "PATH=/bin")
	assert.Contains(t, filtered, "HOME=/root")
}

func TestTmuxNameUsesPrefix(t *testing.T) {
	b := New("myprefix-")
	assert.Equal(t, "myprefix-feat-x", b.tmuxName("feat-x"))
}

func TestNewDefaultsPrefix(t *testing.T) {
	b := New("")
	assert.Equal(t, "clauderon-feat-x", b.tmuxName("feat-x"))
}

func TestKindAndIsRemote(t *testing.T) {
	b := New("")
	assert.Equal(t, "tmux", b.Kind())
	assert.False(t, b.IsRemote())
	assert.True(t, b.SafetyClassification().Rebuildable)
	assert.False(t, b.SafetyClassification().DestructiveOnStop)
}
