// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package console

import "sync"

// broadcastBufferSize bounds how many unread chunks a slow subscriber can
// accumulate before it is considered lagging and dropped; per spec §4.8
// a lagging client reconciles by re-rendering from the terminal buffer
// on its next attach rather than the daemon trying to catch it up.
const broadcastBufferSize = 256

// broadcaster fans raw PTY output chunks out to every attached client.
// Each subscriber gets its own buffered channel; a subscriber that falls
// behind is dropped rather than allowed to slow down or block the
// others, mirroring the teacher's event bus's per-subscriber channel
// fan-out in internal/bus.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan []byte
	nextID int
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: map[int]chan []byte{}}
}

// Subscribe registers a new receiver and returns its channel along with a
// function to unsubscribe it.
func (b *broadcaster) Subscribe() (<-chan []byte, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan []byte, broadcastBufferSize)
	id := b.nextID
	b.nextID++
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// Publish sends chunk to every current subscriber. A subscriber whose
// buffer is full is dropped: its channel is closed and removed so the
// client observes a closed feed and knows to re-attach.
func (b *broadcaster) Publish(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- chunk:
		default:
			delete(b.subs, id)
			close(ch)
		}
	}
}

// Close shuts down the broadcaster, closing every subscriber channel.
func (b *broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
