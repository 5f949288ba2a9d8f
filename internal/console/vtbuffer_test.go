// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVTBufferTracksSimpleOutput(t *testing.T) {
	vb := newVTBuffer(5, 20)
	vb.Feed([]byte("hello"))
	assert.Equal(t, 0, vb.cursorRow)
	assert.Equal(t, 5, vb.cursorCol)
	assert.Contains(t, string(vb.Render()), "hello")
}

func TestVTBufferTracksNewlines(t *testing.T) {
	vb := newVTBuffer(5, 20)
	vb.Feed([]byte("line1\r\nline2"))
	assert.Equal(t, 1, vb.cursorRow)
	out := string(vb.Render())
	assert.Contains(t, out, "line1")
	assert.Contains(t, out, "line2")
}

func TestVTBufferScrollsOldestLineIntoHistory(t *testing.T) {
	vb := newVTBuffer(2, 10)
	vb.Feed([]byte("a\r\nb\r\nc"))
	assert.Len(t, vb.history, 1)
	assert.Equal(t, "a", string(vb.history[0]))
}

func TestVTBufferAnswersCursorPositionQueryWithCurrentCursor(t *testing.T) {
	vb := newVTBuffer(24, 80)
	vb.Feed([]byte("abc"))
	resp := vb.Feed([]byte("\x1b[6n"))
	assert.Equal(t, "\x1b[1;4R", string(resp))
}

func TestVTBufferCursorPositioningMovesAbsolutely(t *testing.T) {
	vb := newVTBuffer(24, 80)
	vb.Feed([]byte("\x1b[5;10H"))
	assert.Equal(t, 4, vb.cursorRow)
	assert.Equal(t, 9, vb.cursorCol)
}

func TestVTBufferResizeResetsCursor(t *testing.T) {
	vb := newVTBuffer(24, 80)
	vb.Feed([]byte("abc"))
	vb.Resize(30, 100)
	assert.Equal(t, 0, vb.cursorRow)
	assert.Equal(t, 0, vb.cursorCol)
	assert.Equal(t, 30, vb.rows)
}
