// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package proxyca

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadOrGenerateCreatesCA(t *testing.T) {
	dir := t.TempDir()

	ca, err := LoadOrGenerate(dir, 10*365*24*time.Hour, 24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, ca.cert)
	require.True(t, ca.cert.IsCA)
	require.Equal(t, caCommonName, ca.cert.Subject.CommonName)
	require.FileExists(t, ca.CertPath())
	require.FileExists(t, ca.KeyPath())
}

func TestLoadOrGenerateReloadsWithoutRegenerating(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrGenerate(dir, 10*365*24*time.Hour, 24*time.Hour)
	require.NoError(t, err)

	second, err := LoadOrGenerate(dir, 10*365*24*time.Hour, 24*time.Hour)
	require.NoError(t, err)

	require.Equal(t, first.cert.NotBefore, second.cert.NotBefore)
	require.Equal(t, first.cert.SerialNumber, second.cert.SerialNumber)
}

func TestLeafForIssuesAndCaches(t *testing.T) {
	dir := t.TempDir()
	ca, err := LoadOrGenerate(dir, 10*365*24*time.Hour, 24*time.Hour)
	require.NoError(t, err)

	leaf, err := ca.LeafFor("api.github.com")
	require.NoError(t, err)
	require.NotEmpty(t, leaf.Certificate)

	again, err := ca.LeafFor("api.github.com")
	require.NoError(t, err)
	require.Equal(t, leaf.Certificate[0], again.Certificate[0])
}

func TestRotateBlockedByActiveSessions(t *testing.T) {
	dir := t.TempDir()
	ca, err := LoadOrGenerate(dir, 10*365*24*time.Hour, 24*time.Hour)
	require.NoError(t, err)

	err = ca.Rotate(1)
	require.ErrorIs(t, err, ErrCARotationBlocked)
}

func TestRotateReplacesCertWhenIdle(t *testing.T) {
	dir := t.TempDir()
	ca, err := LoadOrGenerate(dir, 10*365*24*time.Hour, 24*time.Hour)
	require.NoError(t, err)
	oldSerial := ca.cert.SerialNumber

	require.NoError(t, ca.Rotate(0))
	require.NotEqual(t, oldSerial, ca.cert.SerialNumber)
}
