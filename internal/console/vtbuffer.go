// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"sync"
)

// defaultScrollbackLines matches spec §4.8's default of 10,000 lines of
// scrollback retained per console.
const defaultScrollbackLines = 10000

// vtBuffer is a minimal VT100 screen model: enough cursor tracking to
// answer CPR queries honestly and enough of a line grid to replay the
// current screen to a newly attached client. It is not a full terminal
// emulator — SGR attributes, alternate screen buffer, and most other CSI
// sequences are tracked only insofar as they move the cursor; everything
// else passes through untouched in the raw broadcast stream.
type vtBuffer struct {
	mu   sync.Mutex
	rows int
	cols int

	// screen holds exactly `rows` lines representing the current visible
	// page; history holds scrollback lines pushed off the top.
	screen  [][]byte
	history [][]byte

	cursorRow int
	cursorCol int

	parser  *QueryParser
	pending []byte // partial CSI being scanned for cursor-motion tracking
}

func newVTBuffer(rows, cols int) *vtBuffer {
	if rows <= 0 {
		rows = 24
	}
	if cols <= 0 {
		cols = 80
	}
	vb := &vtBuffer{rows: rows, cols: cols, parser: NewQueryParser()}
	vb.screen = make([][]byte, rows)
	for i := range vb.screen {
		vb.screen[i] = make([]byte, 0, cols)
	}
	return vb
}

// Feed processes a chunk of PTY output: it updates cursor/screen state for
// replay purposes and returns the query-response bytes (if any) the daemon
// should write back to the PTY. The chunk itself is not altered: the
// caller broadcasts it to attached clients unchanged, queries included.
func (vb *vtBuffer) Feed(chunk []byte) (responses []byte) {
	vb.mu.Lock()
	defer vb.mu.Unlock()

	events := vb.parser.Parse(chunk)
	for _, ev := range events {
		if ev.Query != nil {
			responses = append(responses, BuildQueryResponse(*ev.Query, vb.cursorRow, vb.cursorCol)...)
			continue
		}
		vb.applyOutput(ev.Output)
	}
	return responses
}

// applyOutput updates the cursor and screen grid for a run of plain
// output bytes. It tracks carriage return, linefeed, backspace, and the
// handful of cursor-motion CSI sequences agents' TUIs actually emit
// (CUU/CUD/CUF/CUB/CUP); everything else is written through as visible
// characters at the current cursor position.
func (vb *vtBuffer) applyOutput(b []byte) {
	i := 0
	for i < len(b) {
		c := b[i]
		switch c {
		case '\r':
			vb.cursorCol = 0
			i++
		case '\n':
			vb.newline()
			i++
		case '\b':
			if vb.cursorCol > 0 {
				vb.cursorCol--
			}
			i++
		case 0x1b:
			consumed := vb.applyEscape(b[i:])
			if consumed == 0 {
				i++
			} else {
				i += consumed
			}
		default:
			vb.put(c)
			i++
		}
	}
}

// applyEscape handles a single CSI cursor-motion sequence starting at
// data[0] == ESC, returning how many bytes it consumed (0 if data doesn't
// form a complete recognized sequence, in which case the caller advances
// by one byte and re-synchronizes on the next escape).
func (vb *vtBuffer) applyEscape(data []byte) int {
	if len(data) < 3 || data[1] != '[' {
		return 0
	}
	// Scan semicolon-separated numeric parameters up to the final byte
	// (the first byte in the 0x40-0x7e range).
	j := 2
	var params []int
	paramStart := j
	for j < len(data) && (data[j] == ';' || (data[j] >= '0' && data[j] <= '9')) {
		if data[j] == ';' {
			params = append(params, atoiSimple(data[paramStart:j]))
			paramStart = j + 1
		}
		j++
	}
	if j > paramStart {
		params = append(params, atoiSimple(data[paramStart:j]))
	}
	if j >= len(data) {
		return 0
	}
	final := data[j]
	n := 1
	if len(params) > 0 && params[0] > 0 {
		n = params[0]
	}

	switch final {
	case 'A':
		vb.cursorRow -= n
	case 'B':
		vb.cursorRow += n
	case 'C':
		vb.cursorCol += n
	case 'D':
		vb.cursorCol -= n
	case 'H', 'f':
		row, col := 1, 1
		if len(params) > 0 && params[0] > 0 {
			row = params[0]
		}
		if len(params) > 1 && params[1] > 0 {
			col = params[1]
		}
		vb.cursorRow = row - 1
		vb.cursorCol = col - 1
	}
	vb.clampCursor()
	return j + 1
}

func (vb *vtBuffer) clampCursor() {
	if vb.cursorRow < 0 {
		vb.cursorRow = 0
	}
	if vb.cursorRow >= vb.rows {
		vb.cursorRow = vb.rows - 1
	}
	if vb.cursorCol < 0 {
		vb.cursorCol = 0
	}
	if vb.cursorCol >= vb.cols {
		vb.cursorCol = vb.cols - 1
	}
}

func (vb *vtBuffer) put(c byte) {
	line := vb.screen[vb.cursorRow]
	for len(line) <= vb.cursorCol {
		line = append(line, ' ')
	}
	line[vb.cursorCol] = c
	vb.screen[vb.cursorRow] = line
	vb.cursorCol++
	if vb.cursorCol >= vb.cols {
		vb.newline()
	}
}

func (vb *vtBuffer) newline() {
	vb.cursorCol = 0
	if vb.cursorRow < vb.rows-1 {
		vb.cursorRow++
		return
	}
	vb.history = append(vb.history, vb.screen[0])
	if len(vb.history) > defaultScrollbackLines {
		vb.history = vb.history[len(vb.history)-defaultScrollbackLines:]
	}
	copy(vb.screen, vb.screen[1:])
	vb.screen[vb.rows-1] = make([]byte, 0, vb.cols)
}

// Render returns the current visible screen as newline-joined lines,
// suitable for replaying to a client that just attached.
func (vb *vtBuffer) Render() []byte {
	vb.mu.Lock()
	defer vb.mu.Unlock()

	var out []byte
	for i, line := range vb.screen {
		out = append(out, line...)
		if i < len(vb.screen)-1 {
			out = append(out, '\r', '\n')
		}
	}
	return out
}

// Resize changes the tracked screen dimensions, clearing and restarting
// cursor tracking; the next Feed call re-establishes cursor position from
// the agent's own redraw.
func (vb *vtBuffer) Resize(rows, cols int) {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	if rows <= 0 {
		rows = vb.rows
	}
	if cols <= 0 {
		cols = vb.cols
	}
	vb.rows = rows
	vb.cols = cols
	vb.screen = make([][]byte, rows)
	for i := range vb.screen {
		vb.screen[i] = make([]byte, 0, cols)
	}
	vb.cursorRow = 0
	vb.cursorCol = 0
}

func atoiSimple(b []byte) int {
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}
