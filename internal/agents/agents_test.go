// SPDX-License-Identifier: MIT

package agents

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestSim(t *testing.T) *Simulation {
	t.Helper()
	return NewSimulation(12, 50*time.Millisecond, 7)
}

func allTraits(v float64) map[string]float64 {
	m := make(map[string]float64, len(TraitKeys))
	for _, k := range TraitKeys {
		m[k] = v
	}
	return m
}

func TestNormalizeTraits(t *testing.T) {
	norm, err := NormalizeTraits(map[string]float64{"love": 0.9})
	require.NoError(t, err)
	assert.Equal(t, 0.9, norm["love"])
	assert.Equal(t, 0.0, norm["greed"])
	assert.Len(t, norm, len(TraitKeys))

	_, err = NormalizeTraits(map[string]float64{"love": 1.5})
	assert.Error(t, err)
}

func TestPairScore(t *testing.T) {
	saint := &Agent{Traits: map[string]float64{
		"trustworthy": 1, "love": 1, "valor_kind": 1,
	}}
	villain := &Agent{Traits: map[string]float64{
		"hateful": 1, "greed": 1,
	}}

	// Two saints: 1+1+1-0-0 = 3.
	assert.InDelta(t, 3.0, PairScore(saint, saint), 1e-9)
	// Two villains: 0+0+0-1-1 = -2.
	assert.InDelta(t, -2.0, PairScore(villain, villain), 1e-9)
	// Mixed pair averages out to 0.5.
	assert.InDelta(t, 0.5, PairScore(saint, villain), 1e-9)
}

func TestSimulation_StepMovesAndClamps(t *testing.T) {
	sim := newTestSim(t)
	for i := 0; i < 5; i++ {
		_, err := sim.AddAgent(allTraits(0.5))
		require.NoError(t, err)
	}

	for i := 0; i < 200; i++ {
		sim.Step()
	}
	for _, a := range sim.Agents() {
		assert.GreaterOrEqual(t, a.X, 0)
		assert.Less(t, a.X, sim.GridSize())
		assert.GreaterOrEqual(t, a.Y, 0)
		assert.Less(t, a.Y, sim.GridSize())
	}
}

func TestSimulation_InteractionOutcomes(t *testing.T) {
	sim := NewSimulation(2, time.Second, 7) // tiny board forces collisions

	_, err := sim.AddAgent(allTraits(1)) // trust+love+valor-hate-greed = 1
	require.NoError(t, err)
	_, err = sim.AddAgent(allTraits(1))
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		sim.Step()
	}
	stats := sim.Stats()
	assert.Positive(t, stats.Interactions)
	// Score 1.0 > 0.7: everything cooperates.
	assert.Positive(t, stats.Coops)
	assert.Zero(t, stats.Conflicts)
	assert.Zero(t, stats.Independents)

	log := sim.RecentLog()
	assert.NotEmpty(t, log)
	assert.LessOrEqual(t, len(log), 50)
	assert.Contains(t, log[0], "Coop @")
}

func TestSimulation_ConflictBand(t *testing.T) {
	sim := NewSimulation(2, time.Second, 3)
	hostile := map[string]float64{"hateful": 1, "greed": 1}
	_, err := sim.AddAgent(hostile)
	require.NoError(t, err)
	_, err = sim.AddAgent(hostile)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		sim.Step()
	}
	stats := sim.Stats()
	assert.Positive(t, stats.Conflicts)
	assert.Zero(t, stats.Coops)
}

func TestSimulation_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sim := newTestSim(t)
	_, err := sim.AddAgent(allTraits(0.5))
	require.NoError(t, err)

	require.NoError(t, sim.Start(context.Background()))
	assert.True(t, sim.Running())
	assert.ErrorIs(t, sim.Start(context.Background()), ErrAlreadyRunning)

	time.Sleep(150 * time.Millisecond)
	sim.Stop()
	assert.False(t, sim.Running())
	sim.Stop() // idempotent
}

func TestSimulation_ServerAgents(t *testing.T) {
	sim := newTestSim(t)
	a := sim.AttachServer("srv-1")
	assert.Equal(t, IconServer, a.Icon)
	assert.Equal(t, "srv-1", a.ServerID)
	for _, k := range TraitKeys {
		assert.Zero(t, a.Traits[k])
	}

	// Attaching twice keeps one agent.
	sim.AttachServer("srv-1")
	assert.Len(t, sim.Agents(), 1)

	sim.DetachServer("srv-1")
	assert.Empty(t, sim.Agents())
	sim.DetachServer("srv-1") // no-op
}

func TestSimulation_SQLiteRoundtrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "agents.db")

	sim := newTestSim(t)
	_, err := sim.AddAgent(map[string]float64{"love": 0.25, "trustworthy": 0.75})
	require.NoError(t, err)
	sim.AttachServer("srv-1") // must not be persisted
	require.NoError(t, sim.SaveDB(ctx, dbPath))

	other := newTestSim(t)
	require.NoError(t, other.LoadDB(ctx, dbPath))
	got := other.Agents()
	require.Len(t, got, 1)
	assert.Equal(t, 0.25, got[0].Traits["love"])
	assert.Equal(t, 0.75, got[0].Traits["trustworthy"])
}

func TestSimulation_JSONRoundtrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "agents.json")

	sim := newTestSim(t)
	a, err := sim.AddAgent(map[string]float64{"valor_kind": 0.6})
	require.NoError(t, err)
	require.NoError(t, sim.SaveJSON(ctx, path))

	other := newTestSim(t)
	require.NoError(t, other.LoadJSON(path))
	got := other.Agents()
	require.Len(t, got, 1)
	if diff := cmp.Diff(a.Traits, got[0].Traits); diff != "" {
		t.Fatalf("traits mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, a.X, got[0].X)
	assert.Equal(t, a.Y, got[0].Y)
}

func TestSimulation_CSVRoundtrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "agents.csv")

	sim := newTestSim(t)
	_, err := sim.AddAgent(map[string]float64{"greed": 0.4, "envious": 0.2})
	require.NoError(t, err)
	_, err = sim.AddAgent(allTraits(1))
	require.NoError(t, err)
	require.NoError(t, sim.SaveCSV(ctx, path))

	other := newTestSim(t)
	require.NoError(t, other.LoadCSV(path))
	got := other.Agents()
	require.Len(t, got, 2)
	assert.Equal(t, 0.4, got[0].Traits["greed"])
	assert.Equal(t, 1.0, got[1].Traits["gluttony"])
}

func TestSimulation_LoadKeepsServerAgents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "agents.json")

	sim := newTestSim(t)
	_, err := sim.AddAgent(allTraits(0.5))
	require.NoError(t, err)
	require.NoError(t, sim.SaveJSON(ctx, path))

	sim.AttachServer("srv-1")
	require.NoError(t, sim.LoadJSON(path))

	got := sim.Agents()
	require.Len(t, got, 2)
	var servers int
	for _, a := range got {
		if a.ServerID != "" {
			servers++
		}
	}
	assert.Equal(t, 1, servers)
}
