// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/x0vs/ethos/internal/regulator"
)

type regulatorView struct {
	Sin        string             `json:"sin"`
	Main       int                `json:"main"`
	Weighted   int                `json:"weighted,omitempty"`
	Compassion int                `json:"compassion,omitempty"`
	Sub        map[string]int     `json:"subscores"`
	Weights    map[string]float64 `json:"weights"`
	Threshold  int                `json:"threshold"`
	Locked     bool               `json:"locked"`
	Timeline   []string           `json:"timeline,omitempty"`
}

func viewOf(e *regulator.Engine, withTimeline bool) regulatorView {
	res := e.Readout()
	state := e.Snapshot()
	v := regulatorView{
		Sin:        string(e.Sin()),
		Main:       res.Main,
		Weighted:   res.Weighted,
		Compassion: res.Compassion,
		Sub:        res.Sub,
		Weights:    state.Weights,
		Threshold:  e.Threshold(),
		Locked:     res.Locked,
	}
	if withTimeline {
		for _, entry := range e.Timeline() {
			v.Timeline = append(v.Timeline, entry.Line)
		}
	}
	return v
}

func (s *Server) regulatorFromPath(w http.ResponseWriter, r *http.Request) *regulator.Engine {
	e, err := s.deps.Regs.Get(regulator.Sin(chi.URLParam(r, "sin")))
	if err != nil {
		if errors.Is(err, regulator.ErrUnknownSin) {
			writeNotFound(w)
		} else {
			writeError(w, err)
		}
		return nil
	}
	return e
}

func (s *Server) handleRegulatorList(w http.ResponseWriter, r *http.Request) {
	views := make([]regulatorView, 0, len(regulator.Sins()))
	for _, e := range s.deps.Regs.All() {
		views = append(views, viewOf(e, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"regulators": views})
}

func (s *Server) handleRegulatorGet(w http.ResponseWriter, r *http.Request) {
	e := s.regulatorFromPath(w, r)
	if e == nil {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e, true))
}

func (s *Server) handleRegulatorStep(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Regs.Step(regulator.Sin(chi.URLParam(r, "sin")))
	if err != nil {
		if errors.Is(err, regulator.ErrUnknownSin) {
			writeNotFound(w)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRegulatorWeights(w http.ResponseWriter, r *http.Request) {
	e := s.regulatorFromPath(w, r)
	if e == nil {
		return
	}
	var req struct {
		Weights   map[string]float64 `json:"weights"`
		Threshold *int               `json:"threshold,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	for channel, weight := range req.Weights {
		if err := e.SetWeight(channel, weight); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Threshold != nil {
		if err := e.SetThreshold(*req.Threshold); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, viewOf(e, false))
}

func (s *Server) handleRegulatorReset(w http.ResponseWriter, r *http.Request) {
	e := s.regulatorFromPath(w, r)
	if e == nil {
		return
	}
	e.Reset()
	writeJSON(w, http.StatusOK, viewOf(e, false))
}

func (s *Server) handleRadar(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"radar": s.deps.Radar.Sync()})
}
