// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/x0vs/ethos/internal/egotest"
	"github.com/x0vs/ethos/internal/imprint"
)

func (s *Server) handleADR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string `json:"query"`
		Finding  string `json:"finding"`
		EgoScore int    `json:"ego_score"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	entry, err := s.deps.ADR.Resolve(req.Query, req.Finding, req.EgoScore)
	if err != nil {
		writeInternal(w)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleEgoQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"questions": egotest.Questions()})
}

func (s *Server) handleEgoStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User string `json:"user"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.deps.Ego.StartSession(req.User))
}

func (s *Server) handleEgoAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID int `json:"question_id"`
		Score      int `json:"score"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	remaining, err := s.deps.Ego.Answer(chi.URLParam(r, "id"), req.QuestionID, req.Score)
	if err != nil {
		if errors.Is(err, egotest.ErrSessionNotFound) {
			writeNotFound(w)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"remaining": remaining})
}

func (s *Server) handleEgoFinish(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Ego.Finish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, egotest.ErrSessionNotFound) {
			writeNotFound(w)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEgoResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Ego.LastResult()
	if err != nil {
		writeInternal(w)
		return
	}
	if result == nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMeaningDecide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Counterpart string  `json:"counterpart"`
		Stakes      float64 `json:"stakes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	decision, err := s.deps.Meaning.Decide(r.Context(), req.Counterpart, req.Stakes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleMeaningOutcome(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Counterpart string  `json:"counterpart"`
		KeptPromise bool    `json:"kept_promise"`
		Stakes      float64 `json:"stakes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Meaning.Outcome(r.Context(), req.Counterpart, req.KeptPromise, req.Stakes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleMeaningWeight(w http.ResponseWriter, r *http.Request) {
	concept := chi.URLParam(r, "concept")
	weight, err := s.deps.Meaning.Weight(r.Context(), concept)
	if err != nil {
		writeInternal(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"concept": concept, "weight": weight})
}

func (s *Server) handleImprintRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tag           string `json:"tag"`
		Steps         int    `json:"steps,omitempty"`
		FlipAt        int    `json:"flip_at,omitempty"`
		Seed          int64  `json:"seed,omitempty"`
		AllowMutation bool   `json:"allow_mutation,omitempty"`
		UseGovernor   bool   `json:"use_governor,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	switch req.Tag {
	case imprint.TagControl, imprint.TagImprintOnly, imprint.TagFull:
	case "":
		// Empty tag runs the full ablation ladder.
		sums, err := imprint.RunAblations(r.Context(), s.deps.RunDir, req.Seed)
		if err != nil {
			writeInternal(w)
			return
		}
		for _, sum := range sums {
			if err := s.deps.Runs.SaveSummary(r.Context(), sum); err != nil {
				writeInternal(w)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"summaries": sums})
		return
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown experiment tag"})
		return
	}

	sum, err := imprint.RunExperiment(r.Context(), s.deps.RunDir, imprint.RunConfig{
		Tag:           req.Tag,
		Steps:         req.Steps,
		FlipAt:        req.FlipAt,
		Seed:          req.Seed,
		AllowMutation: req.AllowMutation,
		UseGovernor:   req.UseGovernor,
	})
	if err != nil {
		writeInternal(w)
		return
	}
	if err := s.deps.Runs.SaveSummary(r.Context(), sum); err != nil {
		writeInternal(w)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleImprintRuns(w http.ResponseWriter, r *http.Request) {
	sums, err := s.deps.Runs.ListSummaries(r.Context())
	if err != nil {
		writeInternal(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": sums, "count": len(sums)})
}
