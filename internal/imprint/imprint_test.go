// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package imprint

import (
	"context"
	"encoding/csv"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogicGraph_ForwardPolicySumsToOne(t *testing.T) {
	g := BuildGraph(rand.New(rand.NewSource(7)))
	feats := map[string]float64{"ctxA": 1, "ctxB": 0, "noise": 0.1}

	ruleActs, _, policy := g.Forward(feats)
	require.Len(t, ruleActs, 3)
	require.Len(t, policy, 2)

	sum := policy["LEFT"] + policy["RIGHT"]
	assert.InDelta(t, 1.0, sum, 1e-9)
	for _, p := range policy {
		assert.GreaterOrEqual(t, p, 0.0)
	}
}

func TestSoftThreshold(t *testing.T) {
	assert.Equal(t, 0.9, softThreshold(1.0, 0.1))
	assert.Equal(t, -0.9, softThreshold(-1.0, 0.1))
	assert.Equal(t, 0.0, softThreshold(0.05, 0.1))
	assert.Equal(t, 0.0, softThreshold(-0.05, 0.1))
}

func TestSnapshot_L1DiffTracksChanges(t *testing.T) {
	g := BuildGraph(rand.New(rand.NewSource(1)))
	snap := TakeSnapshot(g)
	assert.Equal(t, 0.0, snap.L1Diff(g))

	g.Rules["R_ctx_align"].Bias += 0.5
	g.Rules["R_noise_gate"].WOut["LEFT"] -= 0.25
	assert.InDelta(t, 0.75, snap.L1Diff(g), 1e-9)

	// A brand-new edge counts fully.
	g.Rules["R_ctx_align"].WIn["fresh"] = 0.1
	assert.InDelta(t, 0.85, snap.L1Diff(g), 1e-9)
}

func TestGovernor_Decide(t *testing.T) {
	gov := NewGovernor()

	tests := []struct {
		div, vol   float64
		mode       Mode
		lrScale    float64
		allowMutat bool
	}{
		{0.10, 0.001, ModeAllow, 1.0, true},
		{0.10, 0.05, ModeAllow, 1.0, false},
		{0.55, 0.001, ModeWarning, 0.5, true},
		{0.55, 0.05, ModeWarning, 0.5, false},
		{0.75, 0.001, ModeLimit, 0.0, false},
		{0.90, 0.001, ModeQuarantine, 0.0, false},
	}
	for _, tt := range tests {
		mode, lr, mut := gov.Decide(tt.div, tt.vol)
		assert.Equal(t, tt.mode, mode)
		assert.Equal(t, tt.lrScale, lr)
		assert.Equal(t, tt.allowMutat, mut)
	}
}

func TestImprinter_QuarantineFreezesWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g := BuildGraph(rng)

	gov := NewGovernor()
	gov.QuarantineThresh = 0.0 // everything quarantines
	opts := DefaultOptions()
	opts.Governor = gov

	im := NewImprinter(opts, rng)
	feats := map[string]float64{"ctxA": 1, "ctxB": 0, "noise": 0.2}
	_, _, policy := g.Forward(feats)

	before := TakeSnapshot(g)
	info := im.Imprint(g, feats, policy, "LEFT", 1.0, 0)

	assert.Equal(t, ModeQuarantine, info.Mode)
	assert.Equal(t, 0.0, before.L1Diff(g))
}

func TestImprinter_LearnsFlipWorld(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	world := NewFlipWorld(10_000, rng) // no flip within this test
	g := BuildGraph(rng)

	opts := DefaultOptions()
	opts.LR = 0.18
	im := NewImprinter(opts, rng)
	agent := NewAgent("learner", g, im, 0.05, rng)

	hits := 0.0
	const steps = 600
	for t2 := 0; t2 < steps; t2++ {
		feats := world.Observe()
		action, policy := agent.Act(feats)
		reward, _ := world.Reward(action)
		agent.Learn(feats, policy, action, reward)
		if t2 >= steps-100 {
			hits += reward
		}
	}
	// After settling, the agent should beat chance by a wide margin.
	assert.Greater(t, hits/100, 0.7)
}

func TestImprinter_DivergenceComponentsBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	g := BuildGraph(rng)
	im := NewImprinter(DefaultOptions(), rng)

	feats := map[string]float64{"ctxA": 1, "ctxB": 0, "noise": -0.1}
	for i := 0; i < 30; i++ {
		_, _, policy := g.Forward(feats)
		info := im.Imprint(g, feats, policy, "LEFT", 1.0, 0)
		assert.GreaterOrEqual(t, info.DivScore, 0.0)
		assert.LessOrEqual(t, info.DivScore, 1.0)
		assert.LessOrEqual(t, info.Dw, 1.0)
		assert.LessOrEqual(t, info.Dpi, 1.0)
		assert.LessOrEqual(t, info.Dm, 1.0)
	}
}

func TestFlipWorld_MappingFlips(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	w := NewFlipWorld(1, rng)

	w.Ctx = "A"
	w.t = 0
	_, correct := w.Reward("LEFT")
	assert.Equal(t, "LEFT", correct)

	w.Ctx = "A" // t is now 1, past the flip
	_, correct = w.Reward("LEFT")
	assert.Equal(t, "RIGHT", correct)
}

func TestRunExperiment_WritesLedgerAndSummary(t *testing.T) {
	dir := t.TempDir()
	sum, err := RunExperiment(context.Background(), dir, RunConfig{
		Tag:         TagImprintOnly,
		Steps:       200,
		FlipAt:      100,
		Seed:        7,
		UseGovernor: false,
	})
	require.NoError(t, err)
	assert.Equal(t, TagImprintOnly, sum.Tag)
	assert.True(t, strings.HasPrefix(sum.CSV, "imprinter_log_A1_imprint_only_"))

	f, err := os.Open(filepath.Join(dir, sum.CSV))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 201) // header + one row per step
	assert.Equal(t, csvFields, rows[0])
	assert.Equal(t, TagImprintOnly, rows[1][16])
}

func TestRunExperiment_ControlDoesNotLearn(t *testing.T) {
	dir := t.TempDir()
	sum, err := RunExperiment(context.Background(), dir, RunConfig{
		Tag:    TagControl,
		Steps:  50,
		FlipAt: 25,
		Seed:   3,
	})
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, sum.CSV))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	for _, row := range rows[1:] {
		assert.Equal(t, string(ModeDisabled), row[7])
	}
}

func TestRunAblations(t *testing.T) {
	if testing.Short() {
		t.Skip("full ablation ladder")
	}
	dir := t.TempDir()
	sums, err := RunAblations(context.Background(), dir, 7)
	require.NoError(t, err)
	require.Len(t, sums, 3)
	assert.Equal(t, TagControl, sums[0].Tag)
	assert.Equal(t, TagImprintOnly, sums[1].Tag)
	assert.Equal(t, TagFull, sums[2].Tag)
}

func TestRunStore_SaveAndList(t *testing.T) {
	store, err := OpenRunStore(filepath.Join(t.TempDir(), "runs"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	n := 42
	require.NoError(t, store.SaveSummary(ctx, Summary{
		Tag: TagFull, PreAcc: 0.9, PostAcc: 0.85, Regret: 120,
		RecovSteps: &n, CSV: "x.csv", StartedAt: "2026-08-29T10:00:00Z",
	}))
	require.NoError(t, store.SaveSummary(ctx, Summary{
		Tag: TagControl, CSV: "y.csv", StartedAt: "2026-08-29T11:00:00Z",
	}))

	sums, err := store.ListSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, TagFull, sums[0].Tag)
	require.NotNil(t, sums[0].RecovSteps)
	assert.Equal(t, 42, *sums[0].RecovSteps)
}
