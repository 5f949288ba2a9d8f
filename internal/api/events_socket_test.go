// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/bus"
)

func TestStreamEvents_ForwardsMatchingEvents(t *testing.T) {
	eventBus := bus.New(bus.MemoryBusConfig{HistoryMaxEvents: 10, HistoryMaxAge: time.Minute})
	defer eventBus.Close()

	router := NewRouter(Dependencies{Bus: eventBus})
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events?pattern=session.*"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The websocket subscription registers asynchronously after Upgrade
	// returns; keep publishing until one lands on the connection.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				_ = eventBus.Publish(ctx, bus.Event{Topic: "session.created", SessionID: "abc"})
				time.Sleep(20 * time.Millisecond)
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var got bus.Event
	require.NoError(t, conn.ReadJSON(&got))

	assert.Equal(t, "session.created", got.Topic)
	assert.Equal(t, "abc", got.SessionID)
}

func TestStreamEvents_NoBusConfigured(t *testing.T) {
	router := NewRouter(Dependencies{})
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 500, resp.StatusCode)
}
