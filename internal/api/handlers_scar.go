// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/x0vs/ethos/internal/scar"
)

func (s *Server) handleScarCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Severity string `json:"severity"`
		Reason   string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sc, err := s.deps.Scars.Create(r.Context(), req.Severity, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleScarList(w http.ResponseWriter, r *http.Request) {
	scars, err := s.deps.Scars.List(r.Context())
	if err != nil {
		writeInternal(w)
		return
	}
	mass, err := s.deps.Scars.TotalMass(r.Context())
	if err != nil {
		writeInternal(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scars":      scars,
		"count":      len(scars),
		"total_mass": scar.HumanBytes(mass),
	})
}

func (s *Server) handleScarForgive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid scar id"})
		return
	}
	var req struct {
		SigA string `json:"sig_a"`
		SigB string `json:"sig_b"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Scars.Forgive(r.Context(), id, req.SigA, req.SigB); err != nil {
		if errors.Is(err, scar.ErrScarNotFound) {
			writeNotFound(w)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "forgiven"})
}

func (s *Server) handleScarExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="scars.csv"`)
	if err := s.deps.Scars.ExportCSV(r.Context(), w); err != nil {
		// Headers are already gone; nothing better to do than log via
		// the middleware and cut the stream.
		return
	}
}
