// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package pod

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPodNameUsesPrefix(t *testing.T) {
	b := New("default", "myimage:latest", "myprefix-")
	assert.Equal(t, "myprefix-feat-x", b.podName("feat-x"))
}

func TestNewDefaults(t *testing.T) {
	b := New("", "myimage:latest", "")
	assert.Equal(t, "default", b.namespace)
	assert.Equal(t, "clauderon-feat-x", b.podName("feat-x"))
}

func TestKindAndIsRemote(t *testing.T) {
	b := New("default", "myimage:latest", "")
	assert.Equal(t, "pod", b.Kind())
	assert.True(t, b.IsRemote())
	assert.True(t, b.SafetyClassification().Rebuildable)
	assert.False(t, b.SafetyClassification().DestructiveOnStop)
}

func TestPodResourceOverride(t *testing.T) {
	out := podResourceOverride("memory", "512Mi")
	assert.Contains(t, out, `"memory":"512Mi"`)
}
