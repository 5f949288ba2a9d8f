// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainerNameUsesPrefix(t *testing.T) {
	b := New("myimage:latest", "myprefix-")
	assert.Equal(t, "myprefix-feat-x", b.containerName("feat-x"))
}

func TestNewDefaultsPrefix(t *testing.T) {
	b := New("myimage:latest", "")
	assert.Equal(t, "clauderon-feat-x", b.containerName("feat-x"))
}

func TestKindAndIsRemote(t *testing.T) {
	b := New("myimage:latest", "")
	assert.Equal(t, "container", b.Kind())
	assert.False(t, b.IsRemote())
	assert.True(t, b.SafetyClassification().Rebuildable)
	assert.False(t, b.SafetyClassification().DestructiveOnStop)
}

func TestDockerResourceFlag(t *testing.T) {
	assert.Equal(t, []string{"--memory", "512m"}, dockerResourceFlag("memory", "512m"))
	assert.Equal(t, []string{"--cpus", "2"}, dockerResourceFlag("cpus", "2"))
	assert.Nil(t, dockerResourceFlag("unknown", "x"))
}
