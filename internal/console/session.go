// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shepherdjerred/clauderon/internal/backend"
)

// session is a single console handle: a local PTY running the owning
// backend's attach command, adapted from
// raphaeltm…/internal/pty/session.go's Session, retargeted so the spawned
// process is always backend.AttachCommand rather than a bare shell or a
// hardcoded docker-exec invocation — the backend variant (tmux attach,
// kubectl exec, sprite attach, docker attach) decides what that command
// is, and the console package stays backend-agnostic.
type session struct {
	sessionID uuid.UUID

	cmd *exec.Cmd
	pty *os.File

	mu         sync.Mutex
	rows, cols int
	createdAt  time.Time
	lastActive time.Time
	exited     bool
	exitErr    error

	scrollback *RingBuffer
	screen     *vtBuffer

	broadcast *broadcaster
	onClose   func()
}

// sessionConfig configures a new console session.
type sessionConfig struct {
	SessionID  uuid.UUID
	Rows, Cols int
	OnClose    func()
}

// newSession spawns be.AttachCommand(resourceID) under a local PTY.
func newSession(ctx context.Context, be backend.Backend, resourceID string, cfg sessionConfig) (*session, error) {
	argv, err := be.AttachCommand(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("resolve attach command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("backend %s returned an empty attach command", be.Kind())
	}

	rows, cols := cfg.Rows, cfg.Cols
	if rows <= 0 {
		rows = 24
	}
	if cols <= 0 {
		cols = 80
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("start console pty: %w", err)
	}

	now := time.Now().UTC()
	s := &session{
		sessionID:  cfg.SessionID,
		cmd:        cmd,
		pty:        ptmx,
		rows:       rows,
		cols:       cols,
		createdAt:  now,
		lastActive: now,
		scrollback: NewRingBuffer(defaultRingBufferCapacity),
		screen:     newVTBuffer(rows, cols),
		broadcast:  newBroadcaster(),
		onClose:    cfg.OnClose,
	}
	return s, nil
}

// startReader runs the background reader goroutine: it reads raw PTY
// output, feeds it through the VT100 buffer for cursor/replay tracking
// and terminal-query answering, records it in scrollback, and fans it out
// to every attached client. It returns when the PTY closes.
func (s *session) startReader(ctx context.Context) {
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := s.pty.Read(buf)
			if n > 0 {
				chunk := append([]byte{}, buf[:n]...)
				s.touch()
				s.scrollback.Write(chunk)
				if responses := s.screen.Feed(chunk); len(responses) > 0 {
					if _, writeErr := s.pty.Write(responses); writeErr != nil {
						log.Debug().Err(writeErr).Str("session_id", s.sessionID.String()).
							Msg("console: failed answering terminal query")
					}
				}
				s.broadcast.Publish(chunk)
			}
			if err != nil {
				s.mu.Lock()
				s.exited = true
				s.exitErr = err
				s.mu.Unlock()
				s.broadcast.Close()
				if s.onClose != nil {
					s.onClose()
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
}

// Write sends client input bytes to the PTY.
func (s *session) Write(p []byte) (int, error) {
	s.touch()
	return s.pty.Write(p)
}

// Resize changes the PTY window size and the VT100 model's dimensions.
func (s *session) Resize(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("console: invalid resize dimensions %dx%d", rows, cols)
	}
	s.mu.Lock()
	s.rows, s.cols = rows, cols
	s.mu.Unlock()
	s.screen.Resize(rows, cols)
	return pty.Setsize(s.pty, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Signal delivers a signal to the attached process.
func (s *session) Signal(sig os.Signal) error {
	if s.cmd.Process == nil {
		return fmt.Errorf("console: no process to signal")
	}
	return s.cmd.Process.Signal(sig)
}

// Render returns the current screen contents for replay to a newly
// attached client.
func (s *session) Render() []byte {
	return s.screen.Render()
}

// IsRunning reports whether the attach process is still alive.
func (s *session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.exited
}

// Close terminates the PTY and the underlying attach process.
func (s *session) Close() error {
	s.broadcast.Close()
	closeErr := s.pty.Close()
	if closeErr != nil && closeErr != io.EOF {
		log.Debug().Err(closeErr).Str("session_id", s.sessionID.String()).Msg("console: error closing pty")
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_, _ = s.cmd.Process.Wait()
	}
	return nil
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()
}

// LastActive returns when this console last saw input or output.
func (s *session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
