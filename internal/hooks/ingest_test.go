// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package hooks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/events"
)

type fakeUpdater struct {
	calls []events.ClaudeWorkingStatus
	err   error
}

func (f *fakeUpdater) UpdateClaudeStatus(_ context.Context, _ uuid.UUID, status events.ClaudeWorkingStatus) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, status)
	return nil
}

type fakePinger struct {
	pinged []uuid.UUID
}

func (f *fakePinger) Ping(id uuid.UUID) { f.pinged = append(f.pinged, id) }

func TestServeHTTPMapsHookKindToStatus(t *testing.T) {
	updater := &fakeUpdater{}
	pinger := &fakePinger{}
	h := &Handler{Sessions: updater, Pinger: pinger, Log: zerolog.Nop()}

	id := uuid.New()
	body := fmt.Sprintf(`{"session_id":%q,"kind":"PermissionRequest"}`, id.String())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []events.ClaudeWorkingStatus{events.ClaudeWaitingApproval}, updater.calls)
	require.Equal(t, []uuid.UUID{id}, pinger.pinged)
}

func TestServeHTTPUnknownKindDropped(t *testing.T) {
	updater := &fakeUpdater{}
	pinger := &fakePinger{}
	h := &Handler{Sessions: updater, Pinger: pinger, Log: zerolog.Nop()}

	body := fmt.Sprintf(`{"session_id":%q,"kind":"SomethingElse"}`, uuid.New().String())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, updater.calls)
	require.Empty(t, pinger.pinged)
}

func TestServeHTTPUnknownSessionDropped(t *testing.T) {
	updater := &fakeUpdater{err: fmt.Errorf("not found")}
	pinger := &fakePinger{}
	h := &Handler{Sessions: updater, Pinger: pinger, Log: zerolog.Nop()}

	body := fmt.Sprintf(`{"session_id":%q,"kind":"Stop"}`, uuid.New().String())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, pinger.pinged)
}
