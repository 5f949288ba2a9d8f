// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONModeEmitsStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Output: &buf})

	log.Info().Str("foo", "bar").Msg("hello")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "hello", decoded["message"])
	assert.Equal(t, "bar", decoded["foo"])
}

func TestInit_DebugModeUsesConsoleWriter(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Output: &buf, Debug: true})

	log.Debug().Msg("debug line")

	assert.Contains(t, buf.String(), "debug line")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"), "console writer output should not be raw JSON")
}

func TestComponent_TagsLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Output: &buf})

	Component("proxy").Info().Msg("tagged")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "proxy", decoded["component"])
}
