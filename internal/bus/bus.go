// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package bus is the in-process publish/subscribe event bus (spec.md §2,
// component "Event bus"). It distributes derived, UI-facing events —
// SessionCreated/Updated/Deleted, StatusChanged, SessionProgress,
// SessionFailed — to subscribers of the control-plane Subscribe/event
// stream. It is distinct from internal/events, which is the durable,
// session-scoped append-only log the store persists.
package bus

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrBusClosed is returned when operating on a closed bus.
var ErrBusClosed = errors.New("event bus is closed")

// ErrSubscriptionNotFound is returned when unsubscribing with an invalid ID.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// Event is a single derived, UI-facing notification.
type Event struct {
	ID        string         `json:"id"`
	Topic     string         `json:"topic"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"sessionId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Handler processes a received event.
type Handler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// Filter is used to query event history.
type Filter struct {
	Topics    []string
	SessionID string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// Bus is the core event pub/sub contract.
type Bus interface {
	// Publish emits an event to all matching subscribers. Publish returns
	// once history has recorded the event and synchronous handlers have
	// run; async subscribers are notified without blocking the caller.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching pattern.
	Subscribe(pattern string, handler Handler) (SubscriptionID, error)

	// SubscribeAsync registers an async handler with a bounded buffered
	// channel. When a subscriber's buffer is full, the publisher drops the
	// event for that subscriber, bumps its lag counter and logs a warning
	// rather than blocking. The subscriber itself receives no lag
	// notification; the dropped events are simply never delivered to it.
	SubscribeAsync(pattern string, handler Handler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter Filter) ([]Event, error)

	// Close shuts down the event bus gracefully.
	Close() error
}

// MemoryBusConfig configures the in-process bus.
type MemoryBusConfig struct {
	HistoryMaxEvents int
	HistoryMaxAge    time.Duration
}

// MemoryBus is the in-memory Bus implementation.
type MemoryBus struct {
	mu            sync.RWMutex
	subscriptions map[SubscriptionID]*subscription
	history       *History
	matcher       *PatternMatcher
	closed        atomic.Bool
	wg            sync.WaitGroup
	nextID        uint64
	stopPruner    chan struct{}
}

type subscription struct {
	id      SubscriptionID
	pattern CompiledPattern
	handler Handler
	async   bool
	ch      chan Event
	stopCh  chan struct{}
	lagged  atomic.Uint64
}

// New creates a new in-memory event bus.
func New(cfg MemoryBusConfig) *MemoryBus {
	b := &MemoryBus{
		subscriptions: make(map[SubscriptionID]*subscription),
		history: NewHistory(HistoryConfig{
			MaxEvents: cfg.HistoryMaxEvents,
			MaxAge:    cfg.HistoryMaxAge,
		}),
		matcher:    NewPatternMatcher(),
		stopPruner: make(chan struct{}),
	}

	pruneInterval := cfg.HistoryMaxAge / 10
	if pruneInterval < time.Minute {
		pruneInterval = time.Minute
	}
	if pruneInterval > time.Hour {
		pruneInterval = time.Hour
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-b.stopPruner:
				return
			case <-ticker.C:
				b.history.Prune()
			}
		}
	}()

	return b
}

// Publish emits an event to all matching subscribers.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	if event.ID == "" {
		event.ID = b.generateID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.history.Add(event)

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if !sub.pattern.Match(event.Topic) {
			continue
		}
		if sub.async {
			select {
			case sub.ch <- event:
			default:
				n := sub.lagged.Add(1)
				log.Warn().Str("topic", event.Topic).Uint64("lagged", n).Msg("bus: dropped event, subscriber buffer full")
			}
		} else {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Str("topic", event.Topic).Msg("bus: handler panic")
					}
				}()
				_ = sub.handler(ctx, event)
			}()
		}
	}

	return nil
}

// Subscribe registers a synchronous handler for events matching pattern.
func (b *MemoryBus) Subscribe(pattern string, handler Handler) (SubscriptionID, error) {
	if b.closed.Load() {
		return "", ErrBusClosed
	}

	compiled, err := b.matcher.Compile(pattern)
	if err != nil {
		return "", err
	}

	id := SubscriptionID(b.generateID())
	sub := &subscription{id: id, pattern: compiled, handler: handler}

	b.mu.Lock()
	b.subscriptions[id] = sub
	b.mu.Unlock()

	return id, nil
}

// SubscribeAsync registers an async handler with buffered channel.
func (b *MemoryBus) SubscribeAsync(pattern string, handler Handler, bufferSize int) (SubscriptionID, error) {
	if b.closed.Load() {
		return "", ErrBusClosed
	}

	compiled, err := b.matcher.Compile(pattern)
	if err != nil {
		return "", err
	}

	if bufferSize <= 0 {
		bufferSize = 100
	}

	id := SubscriptionID(b.generateID())
	ch := make(chan Event, bufferSize)
	stopCh := make(chan struct{})

	sub := &subscription{id: id, pattern: compiled, handler: handler, async: true, ch: ch, stopCh: stopCh}

	b.mu.Lock()
	b.subscriptions[id] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-stopCh:
				return
			case event := <-ch:
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Error().Interface("panic", r).Str("topic", event.Topic).Msg("bus: async handler panic")
						}
					}()
					_ = handler(context.Background(), event)
				}()
			}
		}
	}()

	return id, nil
}

// Unsubscribe removes a subscription.
func (b *MemoryBus) Unsubscribe(id SubscriptionID) error {
	b.mu.Lock()
	sub, ok := b.subscriptions[id]
	if !ok {
		b.mu.Unlock()
		return ErrSubscriptionNotFound
	}
	delete(b.subscriptions, id)
	b.mu.Unlock()

	if sub.async && sub.stopCh != nil {
		close(sub.stopCh)
	}

	return nil
}

// History retrieves past events matching filter.
func (b *MemoryBus) History(filter Filter) ([]Event, error) {
	return b.history.Query(filter)
}

// Close shuts down the event bus gracefully.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	close(b.stopPruner)

	b.mu.Lock()
	for _, sub := range b.subscriptions {
		if sub.async && sub.stopCh != nil {
			close(sub.stopCh)
		}
	}
	b.subscriptions = make(map[SubscriptionID]*subscription)
	b.mu.Unlock()

	b.wg.Wait()
	b.history.Close()

	return nil
}

func (b *MemoryBus) generateID() string {
	n := atomic.AddUint64(&b.nextID, 1)
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf) + "-" + strconv.FormatUint(n, 10)
}

// Common topics published by the session manager and reconciler.
const (
	TopicSessionCreated = "session.created"
	TopicSessionUpdated = "session.updated"
	TopicSessionDeleted = "session.deleted"
	TopicStatusChanged  = "session.status_changed"
	TopicProgress       = "session.progress"
	TopicFailed         = "session.failed"
)
