// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/x0vs/ethos/internal/notary"
)

func (s *Server) handleNotarize(w http.ResponseWriter, r *http.Request) {
	var p notary.Payload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}
	rec, err := s.deps.Notary.Notarize(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleNotaryPreview(w http.ResponseWriter, r *http.Request) {
	var p notary.Payload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}
	digest, err := s.deps.Notary.Preview(p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"digest": digest})
}

func (s *Server) handleNotaryRecords(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	recs, err := s.deps.Notary.Recent(r.Context(), limit)
	if err != nil {
		writeInternal(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs, "count": len(recs)})
}

func (s *Server) handleNotaryRecord(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "digest")
	rec, err := s.deps.Notary.FindByDigest(r.Context(), digest)
	if err != nil {
		if errors.Is(err, notary.ErrNotFound) {
			writeNotFound(w)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleNotaryEphemeral(w http.ResponseWriter, r *http.Request) {
	var p notary.Payload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}
	entry, err := s.deps.Notary.AddEphemeral(p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
