// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shepherdjerred/clauderon/internal/backend"
	"github.com/shepherdjerred/clauderon/internal/bus"
	"github.com/shepherdjerred/clauderon/internal/events"
	"github.com/shepherdjerred/clauderon/internal/session"
)

// IPCRequest is one line of the Unix-socket control-plane protocol
// (spec.md §6): a tagged union keyed by Op, decoded permissively so
// unrelated fields for other ops are simply ignored.
type IPCRequest struct {
	Op string `json:"op"`

	ID         string            `json:"id,omitempty"`
	Name       string            `json:"name,omitempty"`
	Repo       string            `json:"repoPath,omitempty"`
	Branch     string            `json:"branch,omitempty"`
	Backend    string            `json:"backend,omitempty"`
	Agent      string            `json:"agent,omitempty"`
	Prompt     string            `json:"prompt,omitempty"`
	AccessMode string            `json:"accessMode,omitempty"`
	Overrides  map[string]string `json:"imageOverrides,omitempty"`
	Limits     map[string]string `json:"resourceLimits,omitempty"`
	Pattern    string            `json:"pattern,omitempty"`
}

// IPCResponse is one line of the protocol's response stream. At most one
// of the Kind-tagged fields is populated, matching spec.md §6's response
// variants (Sessions/Session/Created/Deleted/Archived/SessionId/Ok/Error).
type IPCResponse struct {
	Kind string `json:"kind"`

	Sessions  []*events.Session `json:"sessions,omitempty"`
	Session   *events.Session   `json:"session,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	Report    *ReconcileReport  `json:"report,omitempty"`
	Event     *bus.Event        `json:"event,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// IPCServer serves the Unix-socket control-plane protocol: one JSON
// request per line in, one or more JSON responses per line out.
// "Subscribe" keeps streaming bus.Event lines until the client
// disconnects; every other op replies exactly once.
type IPCServer struct {
	Sessions    *session.Manager
	RecentRepos RecentRepoLister
	Bus         bus.Bus
	Reconcile   func() (*ReconcileReport, error)
	Log         zerolog.Logger
}

// Serve accepts connections on ln until ctx is canceled.
func (s *IPCServer) Serve(ctx context.Context, ln net.Listener) error {
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
			return fmt.Errorf("api: ipc accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *IPCServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		var req IPCRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			s.Log.Debug().Err(err).Msg("ipc: malformed request line, dropped")
			_ = encoder.Encode(IPCResponse{Kind: "Error", Message: "invalid request: " + err.Error()})
			continue
		}
		s.dispatch(ctx, conn, encoder, req)
	}
}

func (s *IPCServer) dispatch(ctx context.Context, conn net.Conn, encoder *json.Encoder, req IPCRequest) {
	switch req.Op {
	case "ListSessions":
		sessions, err := s.Sessions.ListSessions()
		if err != nil {
			s.writeIPCError(encoder, err)
			return
		}
		_ = encoder.Encode(IPCResponse{Kind: "Sessions", Sessions: sessions})

	case "GetSession":
		id, err := uuid.Parse(req.ID)
		if err != nil {
			s.writeIPCError(encoder, err)
			return
		}
		sess, err := s.Sessions.GetSession(id)
		if err != nil {
			s.writeIPCError(encoder, err)
			return
		}
		_ = encoder.Encode(IPCResponse{Kind: "Session", Session: sess})

	case "GetSessionIdByName":
		sess, err := s.Sessions.GetSessionByName(req.Name)
		if err != nil {
			s.writeIPCError(encoder, err)
			return
		}
		if sess == nil {
			s.writeIPCError(encoder, session.ErrSessionNotFound)
			return
		}
		_ = encoder.Encode(IPCResponse{Kind: "SessionId", SessionID: sess.ID.String()})

	case "CreateSession":
		accessMode := backend.AccessMode(req.AccessMode)
		if accessMode == "" {
			accessMode = backend.AccessReadWrite
		}
		sess, err := s.Sessions.CreateSession(ctx, session.CreateRequest{
			Name:           req.Name,
			RepoPath:       req.Repo,
			Branch:         req.Branch,
			BackendKind:    req.Backend,
			Agent:          req.Agent,
			InitialPrompt:  req.Prompt,
			AccessMode:     accessMode,
			ImageOverrides: req.Overrides,
			ResourceLimits: req.Limits,
		})
		if err != nil {
			s.writeIPCError(encoder, err)
			return
		}
		_ = encoder.Encode(IPCResponse{Kind: "Created", Session: sess})

	case "DeleteSession":
		id, err := uuid.Parse(req.ID)
		if err != nil {
			s.writeIPCError(encoder, err)
			return
		}
		if err := s.Sessions.DeleteSession(ctx, id); err != nil {
			s.writeIPCError(encoder, err)
			return
		}
		_ = encoder.Encode(IPCResponse{Kind: "Deleted", SessionID: req.ID})

	case "ArchiveSession":
		id, err := uuid.Parse(req.ID)
		if err != nil {
			s.writeIPCError(encoder, err)
			return
		}
		sess, err := s.Sessions.ArchiveSession(ctx, id)
		if err != nil {
			s.writeIPCError(encoder, err)
			return
		}
		_ = encoder.Encode(IPCResponse{Kind: "Archived", Session: sess})

	case "UpdateAccessMode":
		id, err := uuid.Parse(req.ID)
		if err != nil {
			s.writeIPCError(encoder, err)
			return
		}
		sess, err := s.Sessions.UpdateAccessMode(ctx, id, backend.AccessMode(req.AccessMode))
		if err != nil {
			s.writeIPCError(encoder, err)
			return
		}
		_ = encoder.Encode(IPCResponse{Kind: "Session", Session: sess})

	case "Reconcile":
		if s.Reconcile == nil {
			s.writeIPCError(encoder, errors.New("reconciler not wired"))
			return
		}
		report, err := s.Reconcile()
		if err != nil {
			s.writeIPCError(encoder, err)
			return
		}
		_ = encoder.Encode(IPCResponse{Kind: "ReconcileReport", Report: report})

	case "GetRecentRepos":
		if s.RecentRepos == nil {
			_ = encoder.Encode(IPCResponse{Kind: "Ok"})
			return
		}
		repos, err := s.RecentRepos.ListRecentRepos(20)
		if err != nil {
			s.writeIPCError(encoder, err)
			return
		}
		data, _ := json.Marshal(repos)
		_ = encoder.Encode(IPCResponse{Kind: "Ok", Message: string(data)})

	case "Subscribe":
		s.streamSubscription(ctx, conn, encoder, req.Pattern)

	default:
		_ = encoder.Encode(IPCResponse{Kind: "Error", Message: fmt.Sprintf("unknown op %q", req.Op)})
	}
}

// streamSubscription subscribes to the bus under pattern and streams
// every matching event as an "Event" response line until ctx is canceled
// or the client disconnects (detected by a failed write).
func (s *IPCServer) streamSubscription(ctx context.Context, conn net.Conn, encoder *json.Encoder, pattern string) {
	if pattern == "" {
		pattern = "*"
	}
	if s.Bus == nil {
		_ = encoder.Encode(IPCResponse{Kind: "Error", Message: "event bus not wired"})
		return
	}

	_ = encoder.Encode(IPCResponse{Kind: "Subscribed"})
	errCh := make(chan error, 1)
	subID, err := s.Bus.SubscribeAsync(pattern, func(_ context.Context, ev bus.Event) error {
		if encErr := encoder.Encode(IPCResponse{Kind: "Event", Event: &ev}); encErr != nil {
			select {
			case errCh <- encErr:
			default:
			}
		}
		return nil
	}, 64)
	if err != nil {
		_ = encoder.Encode(IPCResponse{Kind: "Error", Message: err.Error()})
		return
	}
	defer func() { _ = s.Bus.Unsubscribe(subID) }()

	select {
	case <-ctx.Done():
	case <-errCh:
	}
}

func (s *IPCServer) writeIPCError(encoder *json.Encoder, err error) {
	s.Log.Debug().Err(err).Msg("ipc: request failed")
	_ = encoder.Encode(IPCResponse{Kind: "Error", Message: err.Error()})
}
