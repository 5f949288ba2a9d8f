// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package console

import "fmt"

// query.go is a direct Go translation of the original Rust
// terminal_queries.rs: a small stateful scanner that recognizes the four
// terminal status queries a coding agent's TUI commonly issues (DSR, CPR,
// DA1, DA2) inside a stream of otherwise-opaque PTY output, so the daemon
// can answer them itself instead of requiring an attached client to be the
// one providing a real terminal.

// Query identifies a terminal status request embedded in PTY output.
type Query int

const (
	// QueryDeviceStatus is ESC [ 5 n (DSR): "are you OK?"
	QueryDeviceStatus Query = iota
	// QueryCursorPosition is ESC [ 6 n (CPR): "where is the cursor?"
	QueryCursorPosition
	// QueryPrimaryDeviceAttributes is ESC [ c (DA1).
	QueryPrimaryDeviceAttributes
	// QuerySecondaryDeviceAttributes is ESC [ > c (DA2).
	QuerySecondaryDeviceAttributes
)

// Event is one parsed unit of PTY output: either a run of plain output
// bytes to forward untouched, or a recognized query to answer and strip.
type Event struct {
	Output []byte
	Query  *Query
}

// QueryParser recognizes terminal status queries inside an arbitrary
// stream of bytes, buffering a partial escape sequence across calls to
// Parse so a query split across two PTY reads is still recognized.
type QueryParser struct {
	pending []byte
}

// NewQueryParser returns a parser with no carried-over partial sequence.
func NewQueryParser() *QueryParser {
	return &QueryParser{}
}

// Parse scans input, returning a sequence of Output/Query events. Any
// incomplete escape sequence at the end of input is buffered internally
// and prefixed to the next call's input.
func (p *QueryParser) Parse(input []byte) []Event {
	data := input
	if len(p.pending) > 0 {
		data = append(append([]byte{}, p.pending...), input...)
		p.pending = nil
	}

	var events []Event
	var plain []byte

	flushPlain := func() {
		if len(plain) > 0 {
			events = append(events, Event{Output: plain})
			plain = nil
		}
	}

	i := 0
	for i < len(data) {
		if data[i] != 0x1b {
			plain = append(plain, data[i])
			i++
			continue
		}

		q, consumed, complete := matchEscapeQuery(data[i:])
		if !complete {
			// Possible prefix of a query; buffer the remainder for the
			// next call instead of emitting it as plain output.
			flushPlain()
			p.pending = append([]byte{}, data[i:]...)
			return events
		}
		if q == nil {
			// A recognized-but-irrelevant escape sequence, or a lone
			// ESC with no further structure: pass it through as output.
			plain = append(plain, data[i:i+consumed]...)
			i += consumed
			continue
		}

		flushPlain()
		query := *q
		events = append(events, Event{Query: &query})
		i += consumed
	}

	flushPlain()
	return events
}

// matchEscapeQuery inspects data (which starts with ESC) and reports:
//   - q: the recognized query, or nil if this escape sequence isn't one
//   - consumed: bytes belonging to this escape sequence (only meaningful
//     when complete is true)
//   - complete: false if data might be a prefix of a longer recognized
//     sequence and the caller should wait for more bytes
func matchEscapeQuery(data []byte) (q *Query, consumed int, complete bool) {
	if len(data) < 2 {
		return nil, 0, false
	}
	if data[1] != '[' {
		// Not a CSI sequence; treat the lone ESC + next byte as opaque
		// passthrough rather than trying to special-case every other
		// escape form (SS2/SS3/etc. never appear in these agents' TUIs).
		return nil, 2, true
	}
	if len(data) < 3 {
		return nil, 0, false
	}

	switch data[2] {
	case '5':
		if len(data) < 4 {
			return nil, 0, false
		}
		if data[3] == 'n' {
			query := QueryDeviceStatus
			return &query, 4, true
		}
		return nil, 4, true
	case '6':
		if len(data) < 4 {
			return nil, 0, false
		}
		if data[3] == 'n' {
			query := QueryCursorPosition
			return &query, 4, true
		}
		return nil, 4, true
	case 'c':
		query := QueryPrimaryDeviceAttributes
		return &query, 3, true
	case '>':
		if len(data) < 4 {
			return nil, 0, false
		}
		if data[3] == 'c' {
			query := QuerySecondaryDeviceAttributes
			return &query, 4, true
		}
		return nil, 4, true
	default:
		// Some other CSI sequence (cursor movement, SGR, ...). We don't
		// need to parse its terminator precisely here: the vtbuffer pass
		// re-scans raw output for cursor tracking, so it's safe to emit
		// just the ESC [ prefix as opaque bytes and let the next loop
		// iteration consume the remainder byte-by-byte.
		return nil, 2, true
	}
}

// BuildQueryResponse renders the daemon's canned answer to q. cursorRow
// and cursorCol are zero-based; CPR responses report them 1-based per the
// VT100 convention.
func BuildQueryResponse(q Query, cursorRow, cursorCol int) []byte {
	switch q {
	case QueryDeviceStatus:
		return []byte("\x1b[0n")
	case QueryCursorPosition:
		return []byte(fmt.Sprintf("\x1b[%d;%dR", cursorRow+1, cursorCol+1))
	case QueryPrimaryDeviceAttributes:
		return []byte("\x1b[?1;2c")
	case QuerySecondaryDeviceAttributes:
		return []byte("\x1b[>0;0;0c")
	default:
		return nil
	}
}
