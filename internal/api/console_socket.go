// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shepherdjerred/clauderon/internal/console"
)

// ConsoleMessage is one line of the console-attach Unix-socket protocol
// (spec.md §6): newline-JSON, with binary payloads base64-encoded per the
// spec's wire format.
type ConsoleMessage struct {
	Type string `json:"type"`

	SessionID   string `json:"sessionId,omitempty"`
	BackendKind string `json:"backendKind,omitempty"`
	ResourceID  string `json:"resourceId,omitempty"`
	Rows        int    `json:"rows,omitempty"`
	Cols        int    `json:"cols,omitempty"`
	Data        string `json:"data,omitempty"` // base64
	Signal      string `json:"signal,omitempty"`
	Active      bool   `json:"active,omitempty"`
}

// ConsoleServer serves the console attach/input/resize/signal socket.
type ConsoleServer struct {
	Consoles *console.Manager
}

// Serve accepts connections on ln until ctx is canceled. Each connection
// handles exactly one console session: an Attach message must come first,
// after which Input/Resize/Signal messages are applied until the client
// disconnects.
func (s *ConsoleServer) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("api: console accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *ConsoleServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 4096), 1<<20)
	encoder := json.NewEncoder(conn)

	if !reader.Scan() {
		return
	}
	var attach ConsoleMessage
	if err := json.Unmarshal(reader.Bytes(), &attach); err != nil || attach.Type != "Attach" {
		_ = encoder.Encode(ConsoleMessage{Type: "Error", Data: "first message must be Attach"})
		return
	}

	sessionID, err := uuid.Parse(attach.SessionID)
	if err != nil {
		_ = encoder.Encode(ConsoleMessage{Type: "Error", Data: "invalid session id"})
		return
	}

	clientID := uuid.New()
	result, detach, err := s.Consoles.Attach(ctx, sessionID, attach.BackendKind, attach.ResourceID, clientID, attach.Rows, attach.Cols)
	if err != nil {
		_ = encoder.Encode(ConsoleMessage{Type: "Error", Data: err.Error()})
		return
	}
	defer detach()

	_ = encoder.Encode(ConsoleMessage{
		Type:   "Attached",
		Data:   base64.StdEncoding.EncodeToString(result.Replay),
		Active: result.Active,
	})

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.pumpOutput(connCtx, encoder, result.Feed)

	for reader.Scan() {
		var msg ConsoleMessage
		if err := json.Unmarshal(reader.Bytes(), &msg); err != nil {
			continue
		}
		s.applyInput(sessionID, clientID, msg)
	}
}

func (s *ConsoleServer) pumpOutput(ctx context.Context, encoder *json.Encoder, feed <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-feed:
			if !ok {
				return
			}
			if err := encoder.Encode(ConsoleMessage{Type: "Output", Data: base64.StdEncoding.EncodeToString(chunk)}); err != nil {
				return
			}
		}
	}
}

func (s *ConsoleServer) applyInput(sessionID, clientID uuid.UUID, msg ConsoleMessage) {
	switch msg.Type {
	case "Input":
		data, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			return
		}
		if err := s.Consoles.Input(sessionID, clientID, data); err != nil {
			log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("console: input failed")
		}
	case "Resize":
		if err := s.Consoles.Resize(sessionID, msg.Rows, msg.Cols); err != nil {
			log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("console: resize failed")
		}
	case "Signal":
		sig := signalByName(msg.Signal)
		if sig == nil {
			return
		}
		if err := s.Consoles.Signal(sessionID, sig); err != nil {
			log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("console: signal failed")
		}
	}
}

func signalByName(name string) os.Signal {
	switch name {
	case "SIGINT":
		return syscall.SIGINT
	case "SIGTERM":
		return syscall.SIGTERM
	case "SIGKILL":
		return syscall.SIGKILL
	default:
		return nil
	}
}
