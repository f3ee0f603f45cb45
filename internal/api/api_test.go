// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x0vs/ethos/internal/adr"
	"github.com/x0vs/ethos/internal/agents"
	"github.com/x0vs/ethos/internal/cache"
	"github.com/x0vs/ethos/internal/egotest"
	"github.com/x0vs/ethos/internal/health"
	"github.com/x0vs/ethos/internal/imprint"
	"github.com/x0vs/ethos/internal/meaning"
	"github.com/x0vs/ethos/internal/notary"
	"github.com/x0vs/ethos/internal/regulator"
	"github.com/x0vs/ethos/internal/scar"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()

	ledger, err := notary.Open(filepath.Join(dir, "notary.db"), cache.NewMemoryCache(time.Minute), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	scars, err := scar.Open(
		filepath.Join(dir, "scars.db"),
		filepath.Join(dir, "forgiveness.db"),
		filepath.Join(dir, "artifacts"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = scars.Close() })

	me, err := meaning.OpenEngine(filepath.Join(dir, "meaning.db"), 0.15, 7)
	require.NoError(t, err)
	t.Cleanup(func() { _ = me.Close() })

	adrEngine, err := adr.NewEngine(filepath.Join(dir, "adr_log.jsonl"))
	require.NoError(t, err)

	runs, err := imprint.OpenRunStore(filepath.Join(dir, "runs"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = runs.Close() })

	regs := regulator.NewSet(50, 7)
	sim := agents.NewSimulation(12, time.Second, 7)
	t.Cleanup(sim.Stop)

	srv := NewServer(Deps{
		Notary:  ledger,
		Scars:   scars,
		Regs:    regs,
		Radar:   regulator.NewRadar(regs),
		Sim:     sim,
		ADR:     adrEngine,
		Ego:     egotest.NewService(filepath.Join(dir, "ego.json")),
		Meaning: me,
		Runs:    runs,
		RunDir:  dir,
		Health:  health.NewManager("test"),
	})
	return srv.RoutesForTest()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotaryRoutes(t *testing.T) {
	h := newTestServer(t)

	payload := map[string]any{
		"creator_id": "nexus",
		"title":      "first seal",
		"kind":       "text",
		"data":       "hello",
	}

	rec := doJSON(t, h, http.MethodPost, "/api/notary/preview", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	var preview map[string]string
	decodeBody(t, rec, &preview)
	assert.Len(t, preview["digest"], 64)

	rec = doJSON(t, h, http.MethodPost, "/api/notary/records", payload)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created notary.Record
	decodeBody(t, rec, &created)
	assert.Equal(t, preview["digest"], created.SHA256)

	rec = doJSON(t, h, http.MethodGet, "/api/notary/records/"+created.SHA256, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var found notary.Record
	decodeBody(t, rec, &found)
	assert.Equal(t, created.ID, found.ID)

	rec = doJSON(t, h, http.MethodGet, "/api/notary/records/"+strings.Repeat("0", 64), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/notary/records?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &listed)
	assert.Equal(t, 1, listed.Count)

	rec = doJSON(t, h, http.MethodGet, "/api/notary/records?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/notary/ephemeral", payload)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Missing creator rejected.
	rec = doJSON(t, h, http.MethodPost, "/api/notary/records", map[string]any{
		"title": "x", "kind": "text", "data": "y",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScarRoutes(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/scars", map[string]string{
		"severity": "major", "reason": "broken promise",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created scar.Scar
	decodeBody(t, rec, &created)
	assert.Positive(t, created.ID)

	rec = doJSON(t, h, http.MethodGet, "/api/scars", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Count     int    `json:"count"`
		TotalMass string `json:"total_mass"`
	}
	decodeBody(t, rec, &listed)
	assert.Equal(t, 1, listed.Count)
	assert.NotEmpty(t, listed.TotalMass)

	rec = doJSON(t, h, http.MethodGet, "/api/scars/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "id,ts,severity,reason,file,bytes,hash"))

	// Forgiveness needs two distinct signatures.
	path := fmt.Sprintf("/api/scars/%d/forgive", created.ID)
	rec = doJSON(t, h, http.MethodPost, path, map[string]string{"sig_a": "a", "sig_b": "a"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, path, map[string]string{"sig_a": "a", "sig_b": "b"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/scars/999/forgive", map[string]string{"sig_a": "a", "sig_b": "b"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegulatorRoutes(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/regulators", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Regulators []regulatorView `json:"regulators"`
	}
	decodeBody(t, rec, &listed)
	assert.Len(t, listed.Regulators, 7)

	rec = doJSON(t, h, http.MethodPost, "/api/regulators/wrath/step", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var step regulator.StepResult
	decodeBody(t, rec, &step)
	assert.NotEmpty(t, step.Sub)

	rec = doJSON(t, h, http.MethodGet, "/api/regulators/wrath", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view regulatorView
	decodeBody(t, rec, &view)
	assert.Equal(t, "wrath", view.Sin)
	assert.NotEmpty(t, view.Timeline)

	rec = doJSON(t, h, http.MethodPost, "/api/regulators/wrath/weights", map[string]any{
		"weights": map[string]float64{"HPV": 0.5}, "threshold": 60,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &view)
	assert.Equal(t, 0.5, view.Weights["HPV"])
	assert.Equal(t, 60, view.Threshold)

	rec = doJSON(t, h, http.MethodPost, "/api/regulators/wrath/weights", map[string]any{
		"weights": map[string]float64{"NOPE": 0.5},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/regulators/hubris/step", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/regulators/wrath/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/radar", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var radar struct {
		Radar map[string]float64 `json:"radar"`
	}
	decodeBody(t, rec, &radar)
	assert.Len(t, radar.Radar, 7)
}

func TestSimRoutes(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/agents", map[string]any{
		"traits": map[string]float64{"love": 0.8},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/agents", map[string]any{
		"traits": map[string]float64{"love": 1.8},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Count    int `json:"count"`
		GridSize int `json:"grid_size"`
	}
	decodeBody(t, rec, &listed)
	assert.Equal(t, 1, listed.Count)
	assert.Equal(t, 12, listed.GridSize)

	rec = doJSON(t, h, http.MethodPost, "/api/sim/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, h, http.MethodPost, "/api/sim/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/sim/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/sim/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats agents.Stats
	decodeBody(t, rec, &stats)
	assert.False(t, stats.Running)
}

func TestADRRoute(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/adr", map[string]any{
		"query": "q", "finding": "f", "ego_score": 28,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var entry adr.Entry
	decodeBody(t, rec, &entry)
	assert.Contains(t, entry.Result, "Empathic")
}

func TestEgotestRoutes(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/egotest/questions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bank struct {
		Questions []egotest.Question `json:"questions"`
	}
	decodeBody(t, rec, &bank)
	require.Len(t, bank.Questions, 30)

	rec = doJSON(t, h, http.MethodPost, "/api/egotest/sessions", map[string]string{"user": "nexus"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sess egotest.Session
	decodeBody(t, rec, &sess)
	require.NotEmpty(t, sess.ID)

	for _, q := range bank.Questions {
		rec = doJSON(t, h, http.MethodPost, "/api/egotest/sessions/"+sess.ID+"/answers", map[string]int{
			"question_id": q.ID, "score": 1,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/egotest/sessions/"+sess.ID+"/finish", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result egotest.Result
	decodeBody(t, rec, &result)
	assert.Equal(t, 30, result.TotalScore)
	assert.Equal(t, egotest.RatingVeryLow, result.Rating)

	rec = doJSON(t, h, http.MethodGet, "/api/egotest/result", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/egotest/sessions/missing/finish", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMeaningRoutes(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/meaning/decide", map[string]any{
		"counterpart": "alice", "stakes": 0.5,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var decision meaning.Decision
	decodeBody(t, rec, &decision)
	assert.Contains(t, []string{meaning.ChoiceTrust, meaning.ChoiceDecline}, decision.Choice)

	rec = doJSON(t, h, http.MethodPost, "/api/meaning/decide", map[string]any{
		"counterpart": "alice", "stakes": 1.5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/meaning/outcome", map[string]any{
		"counterpart": "alice", "kept_promise": true, "stakes": 0.5,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/meaning/weights/trust", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var weight struct {
		Concept string  `json:"concept"`
		Weight  float64 `json:"weight"`
	}
	decodeBody(t, rec, &weight)
	assert.Equal(t, "trust", weight.Concept)
}

func TestImprintRoutes(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/imprint/run", map[string]any{
		"tag": imprint.TagImprintOnly, "steps": 120, "flip_at": 60, "seed": 7,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var sum imprint.Summary
	decodeBody(t, rec, &sum)
	assert.Equal(t, imprint.TagImprintOnly, sum.Tag)

	rec = doJSON(t, h, http.MethodPost, "/api/imprint/run", map[string]any{"tag": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/imprint/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &runs)
	assert.Equal(t, 1, runs.Count)
}
