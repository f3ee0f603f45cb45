// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"

	"github.com/x0vs/ethos/internal/agents"
)

func (s *Server) handleAgentAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Traits map[string]float64 `json:"traits"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := s.deps.Sim.AddAgent(req.Traits)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleAgentList(w http.ResponseWriter, r *http.Request) {
	list := s.deps.Sim.Agents()
	writeJSON(w, http.StatusOK, map[string]any{
		"agents":    list,
		"count":     len(list),
		"grid_size": s.deps.Sim.GridSize(),
	})
}

func (s *Server) handleSimStart(w http.ResponseWriter, r *http.Request) {
	// The loop must outlive this request; it stops via /api/sim/stop or
	// daemon shutdown.
	if err := s.deps.Sim.Start(s.baseCtx()); err != nil {
		if errors.Is(err, agents.ErrAlreadyRunning) {
			writeConflict(w, err)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Sim.Stats())
}

func (s *Server) handleSimStop(w http.ResponseWriter, r *http.Request) {
	s.deps.Sim.Stop()
	writeJSON(w, http.StatusOK, s.deps.Sim.Stats())
}

func (s *Server) handleSimStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":  s.deps.Sim.Stats(),
		"recent": s.deps.Sim.RecentLog(),
	})
}
