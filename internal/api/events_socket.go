// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/shepherdjerred/clauderon/internal/bus"
)

// eventsUpgrader upgrades GET /api/events to a websocket connection for
// browser-based front-ends, mirroring the Unix-socket "Subscribe" op
// (internal/api/ipc.go) but over the transport a web UI can actually open.
var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The control plane is loopback-only (spec.md §6); any origin reaching
	// it has already cleared that boundary.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// websocketPingInterval keeps the connection alive through intermediating
// proxies and lets the handler detect a dead peer promptly.
const websocketPingInterval = 30 * time.Second

// streamEvents serves GET /api/events?pattern=... : it upgrades to a
// websocket and forwards every bus.Event matching pattern (default "*") as
// a JSON text frame until the client disconnects or the daemon shuts down.
func streamEvents(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Bus == nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, "event bus not wired")
			return
		}

		pattern := r.URL.Query().Get("pattern")
		if pattern == "" {
			pattern = "*"
		}

		conn, err := eventsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Msg("api: websocket upgrade failed")
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// A read pump is required so gorilla/websocket processes control
		// frames (pong, close) even though clients never send data frames.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		subID, err := deps.Bus.SubscribeAsync(pattern, func(_ context.Context, ev bus.Event) error {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			return conn.WriteJSON(ev)
		}, 64)
		if err != nil {
			_ = conn.WriteJSON(map[string]string{"error": err.Error()})
			return
		}
		defer func() { _ = deps.Bus.Unsubscribe(subID) }()

		ticker := time.NewTicker(websocketPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
