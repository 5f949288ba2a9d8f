// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChainPrefersEnvOverFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "github"), []byte("file-token"), 0o600))
	t.Setenv("CLAUDERON_CRED_GITHUB", "env-token")

	chain := NewChain("", dir)
	token, ok, err := chain.Lookup(context.Background(), "github")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "env-token", token)
}

func TestChainFallsBackToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "anthropic"), []byte("file-token\n"), 0o600))

	chain := NewChain("", dir)
	token, ok, err := chain.Lookup(context.Background(), "anthropic")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "file-token", token)
}

func TestChainMissingKeyReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	chain := NewChain("", dir)
	_, ok, err := chain.Lookup(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}
