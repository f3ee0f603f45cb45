// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/x0vs/ethos/internal/inference"
)

func (s *Server) handleServerAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Binary string `json:"binary"`
		Model  string `json:"model"`
		Port   int    `json:"port"`
		Ctx    int    `json:"ctx"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	v, err := s.deps.Pool.Add(req.Binary, req.Model, req.Port, req.Ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleServerList(w http.ResponseWriter, r *http.Request) {
	list := s.deps.Pool.List()
	writeJSON(w, http.StatusOK, map[string]any{"servers": list, "count": len(list)})
}

func (s *Server) poolAction(w http.ResponseWriter, r *http.Request, action func(string) error) {
	id := chi.URLParam(r, "id")
	err := action(id)
	switch {
	case err == nil:
		v, getErr := s.deps.Pool.Get(id)
		if getErr != nil {
			writeInternal(w)
			return
		}
		writeJSON(w, http.StatusOK, v)
	case errors.Is(err, inference.ErrInstanceNotFound):
		writeNotFound(w)
	case errors.Is(err, inference.ErrAlreadyRunning),
		errors.Is(err, inference.ErrPortBusy),
		errors.Is(err, inference.ErrNotRunning):
		writeConflict(w, err)
	default:
		writeError(w, err)
	}
}

func (s *Server) handleServerStart(w http.ResponseWriter, r *http.Request) {
	s.poolAction(w, r, s.deps.Pool.Start)
}

func (s *Server) handleServerStop(w http.ResponseWriter, r *http.Request) {
	s.poolAction(w, r, s.deps.Pool.Stop)
}

func (s *Server) handleServerKill(w http.ResponseWriter, r *http.Request) {
	s.poolAction(w, r, s.deps.Pool.Kill)
}

func (s *Server) handleServerHealth(w http.ResponseWriter, r *http.Request) {
	healthy, err := s.deps.Pool.Healthy(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"healthy": healthy})
}
