// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/bus"
)

func TestPublishSubscribe(t *testing.T) {
	b := bus.New(bus.MemoryBusConfig{HistoryMaxEvents: 100, HistoryMaxAge: time.Hour})
	defer b.Close()

	received := make(chan bus.Event, 1)
	_, err := b.Subscribe("session.*", func(_ context.Context, e bus.Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), bus.Event{Topic: bus.TopicSessionCreated, SessionID: "s1"}))

	select {
	case e := <-received:
		require.Equal(t, "s1", e.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeWildcardMismatch(t *testing.T) {
	b := bus.New(bus.MemoryBusConfig{HistoryMaxEvents: 100, HistoryMaxAge: time.Hour})
	defer b.Close()

	received := make(chan bus.Event, 1)
	_, err := b.Subscribe("proxy.*", func(_ context.Context, e bus.Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), bus.Event{Topic: bus.TopicSessionCreated}))

	select {
	case <-received:
		t.Fatal("should not have received event for non-matching pattern")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := bus.New(bus.MemoryBusConfig{HistoryMaxEvents: 100, HistoryMaxAge: time.Hour})
	defer b.Close()

	id, err := b.Subscribe("*", func(context.Context, bus.Event) error { return nil })
	require.NoError(t, err)
	require.NoError(t, b.Unsubscribe(id))
	require.ErrorIs(t, b.Unsubscribe(id), bus.ErrSubscriptionNotFound)
}

func TestAsyncSubscriberLagDoesNotBlockPublisher(t *testing.T) {
	b := bus.New(bus.MemoryBusConfig{HistoryMaxEvents: 100, HistoryMaxAge: time.Hour})
	defer b.Close()

	// Released only after the assertions, just before the deferred Close,
	// which waits for async handlers to return.
	release := make(chan struct{})
	defer close(release)

	_, err := b.SubscribeAsync("*", func(context.Context, bus.Event) error {
		<-release // never drains during the test; buffer fills and further publishes must not block
		return nil
	}, 1)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = b.Publish(context.Background(), bus.Event{Topic: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked by a lagging async subscriber")
	}
}

func TestHistoryFilterAndLimit(t *testing.T) {
	b := bus.New(bus.MemoryBusConfig{HistoryMaxEvents: 100, HistoryMaxAge: time.Hour})
	defer b.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(context.Background(), bus.Event{Topic: bus.TopicSessionCreated, SessionID: "s1"}))
	}
	require.NoError(t, b.Publish(context.Background(), bus.Event{Topic: "proxy.failed", SessionID: "s2"}))

	events, err := b.History(bus.Filter{Topics: []string{"session.*"}, Limit: 3})
	require.NoError(t, err)
	require.Len(t, events, 3)
	for _, e := range events {
		require.Equal(t, "s1", e.SessionID)
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	b := bus.New(bus.MemoryBusConfig{HistoryMaxEvents: 100, HistoryMaxAge: time.Hour})
	require.NoError(t, b.Close())
	require.ErrorIs(t, b.Publish(context.Background(), bus.Event{Topic: "x"}), bus.ErrBusClosed)
}
