// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/shepherdjerred/clauderon/internal/backend"
	"github.com/shepherdjerred/clauderon/internal/bus"
	"github.com/shepherdjerred/clauderon/internal/session"
)

// RecentRepoLister is the subset of *store.Store the router needs for the
// recent-repos listing, kept as an interface for testability.
type RecentRepoLister interface {
	ListRecentRepos(limit int) ([]RecentRepo, error)
}

// RecentRepo mirrors store.RecentRepo's JSON shape without importing the
// store package, keeping this router's dependency surface to session/
// backend/bus only.
type RecentRepo struct {
	Path     string `json:"path"`
	LastUsed string `json:"lastUsed"`
}

// ReconcileReport mirrors reconcile.Report's shape for the HTTP surface.
type ReconcileReport struct {
	ObservationCount int    `json:"observationCount"`
	OrphanCount      int    `json:"orphanCount"`
	StartedAt        string `json:"startedAt"`
	FinishedAt       string `json:"finishedAt"`
}

// Dependencies bundles the control plane's backing collaborators: a
// session manager, a recent-repos lister, and an on-demand reconcile
// trigger.
type Dependencies struct {
	Sessions    *session.Manager
	RecentRepos RecentRepoLister
	Reconcile   func() (*ReconcileReport, error)
	Bus         bus.Bus
}

// NewRouter builds the gorilla/mux router serving spec.md §6's REST
// surface, mirroring the Unix-socket IPC protocol one route per operation.
func NewRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()
	r.Use(Logging, Recovery)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", listSessions(deps)).Methods(http.MethodGet)
	api.HandleFunc("/sessions", createSession(deps)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", getSession(deps)).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", deleteSession(deps)).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/archive", archiveSession(deps)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/restore", restoreSession(deps)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/access-mode", updateAccessMode(deps)).Methods(http.MethodPost)
	api.HandleFunc("/recent-repos", listRecentRepos(deps)).Methods(http.MethodGet)
	api.HandleFunc("/reconcile", triggerReconcile(deps)).Methods(http.MethodPost)
	api.HandleFunc("/events", streamEvents(deps)).Methods(http.MethodGet)

	return r
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

func listSessions(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := deps.Sessions.ListSessions()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, sessions)
	}
}

// createSessionRequest mirrors session.CreateRequest for JSON decoding.
type createSessionRequest struct {
	Name                string            `json:"name"`
	RepoPath            string            `json:"repoPath"`
	Subdirectory        string            `json:"subdirectory"`
	Branch              string            `json:"branch"`
	BackendKind         string            `json:"backend"`
	Agent               string            `json:"agent"`
	InitialPrompt       string            `json:"initialPrompt"`
	AccessMode          string            `json:"accessMode"`
	DangerousSkipSafety bool              `json:"dangerousSkipSafety"`
	AutoDestroyOnStop   bool              `json:"autoDestroyOnStop"`
	ProxyEnabled        bool              `json:"proxyEnabled"`
	ImageOverrides      map[string]string `json:"imageOverrides"`
	ResourceLimits      map[string]string `json:"resourceLimits"`
}

func createSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
			return
		}

		accessMode := backend.AccessMode(req.AccessMode)
		if accessMode == "" {
			accessMode = backend.AccessReadWrite
		}

		created, err := deps.Sessions.CreateSession(r.Context(), session.CreateRequest{
			Name:                req.Name,
			RepoPath:            req.RepoPath,
			Subdirectory:        req.Subdirectory,
			Branch:              req.Branch,
			BackendKind:         req.BackendKind,
			Agent:               req.Agent,
			InitialPrompt:       req.InitialPrompt,
			AccessMode:          accessMode,
			DangerousSkipSafety: req.DangerousSkipSafety,
			AutoDestroyOnStop:   req.AutoDestroyOnStop,
			ProxyEnabled:        req.ProxyEnabled,
			ImageOverrides:      req.ImageOverrides,
			ResourceLimits:      req.ResourceLimits,
		})
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, created)
	}
}

func getSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid session id")
			return
		}
		s, err := deps.Sessions.GetSession(id)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, s)
	}
}

func deleteSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid session id")
			return
		}
		if err := deps.Sessions.DeleteSession(r.Context(), id); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func archiveSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid session id")
			return
		}
		s, err := deps.Sessions.ArchiveSession(r.Context(), id)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, s)
	}
}

func restoreSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid session id")
			return
		}
		s, err := deps.Sessions.RestoreSession(r.Context(), id)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, s)
	}
}

type updateAccessModeRequest struct {
	AccessMode string `json:"accessMode"`
}

func updateAccessMode(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid session id")
			return
		}
		var req updateAccessModeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
			return
		}
		s, err := deps.Sessions.UpdateAccessMode(r.Context(), id, backend.AccessMode(req.AccessMode))
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, s)
	}
}

func listRecentRepos(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.RecentRepos == nil {
			WriteJSON(w, http.StatusOK, []RecentRepo{})
			return
		}
		repos, err := deps.RecentRepos.ListRecentRepos(20)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, repos)
	}
}

func triggerReconcile(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Reconcile == nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, "reconciler not wired")
			return
		}
		report, err := deps.Reconcile()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, report)
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		WriteError(w, http.StatusNotFound, ErrNotFound, err.Error())
	case errors.Is(err, session.ErrRepoPathInvalid),
		errors.Is(err, session.ErrNameGenerationFailed):
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
	case errors.Is(err, session.ErrWorktreeCreationFailed),
		errors.Is(err, session.ErrBackendStartFailed),
		errors.Is(err, session.ErrPortAllocationFailed):
		WriteError(w, http.StatusConflict, ErrSessionError, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
	}
}
