// SPDX-License-Identifier: MIT

package agents

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/x0vs/ethos/internal/log"
	"github.com/x0vs/ethos/internal/metrics"
)

const recentLogDepth = 50

// Interaction outcomes.
const (
	OutcomeCoop        = "coop"
	OutcomeConflict    = "conflict"
	OutcomeIndependent = "independent"
)

// Pair score bands: above the upper bound the pair cooperates, below the
// lower bound it clashes, anything between stays independent.
const (
	coopThreshold     = 0.7
	conflictThreshold = 0.3
)

var ErrAlreadyRunning = errors.New("agents: simulation already running")

// Stats is a point-in-time view of the sandbox counters.
type Stats struct {
	Population   int  `json:"population"`
	Interactions int  `json:"interactions"`
	Coops        int  `json:"coops"`
	Conflicts    int  `json:"conflicts"`
	Independents int  `json:"independents"`
	Running      bool `json:"running"`
}

// Simulation owns the grid, the agents and the background tick loop.
type Simulation struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger zerolog.Logger

	gridSize int
	tick     time.Duration
	nextID   int

	agents  []*Agent
	servers map[string]*Agent

	interactions int
	coops        int
	conflicts    int
	independents int
	recent       []string

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSimulation builds an empty sandbox. A seed of 0 selects a
// time-derived seed.
func NewSimulation(gridSize int, tick time.Duration, seed int64) *Simulation {
	if gridSize < 2 {
		gridSize = 12
	}
	if tick <= 0 {
		tick = 800 * time.Millisecond
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulation{
		rng:      rand.New(rand.NewSource(seed)),
		logger:   xlog.WithComponent("agents"),
		gridSize: gridSize,
		tick:     tick,
		nextID:   1,
		servers:  make(map[string]*Agent),
	}
}

// GridSize reports the board edge length.
func (s *Simulation) GridSize() int { return s.gridSize }

// AddAgent drops a new agent at a random cell and returns it.
func (s *Simulation) AddAgent(traits map[string]float64) (*Agent, error) {
	norm, err := NormalizeTraits(traits)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a := &Agent{
		ID:     s.nextID,
		Traits: norm,
		X:      s.rng.Intn(s.gridSize),
		Y:      s.rng.Intn(s.gridSize),
		Icon:   IconAgent,
		Color:  ColorAgent,
	}
	s.nextID++
	s.agents = append(s.agents, a)
	metrics.SetSimAgents(len(s.agents))
	s.logger.Info().Int("agent_id", a.ID).Int("x", a.X).Int("y", a.Y).
		Int("population", len(s.agents)).Msg("agent added")
	return cloneAgent(a), nil
}

// AttachServer mirrors a running inference instance as a zero-trait grid
// agent. Attaching the same id twice is a no-op.
func (s *Simulation) AttachServer(serverID string) *Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.servers[serverID]; ok {
		return cloneAgent(a)
	}

	traits := make(map[string]float64, len(TraitKeys))
	for _, k := range TraitKeys {
		traits[k] = 0
	}
	a := &Agent{
		ID:       s.nextID,
		Traits:   traits,
		X:        s.rng.Intn(s.gridSize),
		Y:        s.rng.Intn(s.gridSize),
		Icon:     IconServer,
		Color:    ColorServer,
		ServerID: serverID,
	}
	s.nextID++
	s.agents = append(s.agents, a)
	s.servers[serverID] = a
	metrics.SetSimAgents(len(s.agents))
	s.logger.Info().Str("server_id", serverID).Int("agent_id", a.ID).
		Msg("server agent added")
	return cloneAgent(a)
}

// DetachServer removes the grid agent mirroring the given instance.
func (s *Simulation) DetachServer(serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.servers[serverID]
	if !ok {
		return
	}
	delete(s.servers, serverID)
	for i, cur := range s.agents {
		if cur == a {
			s.agents = append(s.agents[:i], s.agents[i+1:]...)
			break
		}
	}
	metrics.SetSimAgents(len(s.agents))
	s.logger.Info().Str("server_id", serverID).Msg("server agent removed")
}

// Agents returns a snapshot of the population.
func (s *Simulation) Agents() []*Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Agent, len(s.agents))
	for i, a := range s.agents {
		out[i] = cloneAgent(a)
	}
	return out
}

// Stats reports the counters.
func (s *Simulation) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Population:   len(s.agents),
		Interactions: s.interactions,
		Coops:        s.coops,
		Conflicts:    s.conflicts,
		Independents: s.independents,
		Running:      s.running,
	}
}

// RecentLog returns the bounded interaction log, oldest first.
func (s *Simulation) RecentLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.recent))
	copy(out, s.recent)
	return out
}

// Start launches the background tick loop.
func (s *Simulation) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.logger.Info().Dur("tick", s.tick).Msg("simulation started")
	return nil
}

// Stop halts the loop and waits for it to exit. Stopping an idle
// simulation is a no-op.
func (s *Simulation) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info().Msg("simulation stopped")
}

// Running reports whether the tick loop is live.
func (s *Simulation) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Simulation) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

var moves = [4][2]int{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}

// Step advances the world one tick: every agent takes a random
// 4-neighborhood step clamped to the board, then co-located groups
// interact pairwise.
func (s *Simulation) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.agents {
		d := moves[s.rng.Intn(len(moves))]
		a.X = clampInt(a.X+d[0], 0, s.gridSize-1)
		a.Y = clampInt(a.Y+d[1], 0, s.gridSize-1)
	}

	groups := make(map[[2]int][]*Agent)
	for _, a := range s.agents {
		key := [2]int{a.X, a.Y}
		groups[key] = append(groups[key], a)
	}
	for _, group := range groups {
		if len(group) > 1 {
			s.resolveLocked(group)
		}
	}
}

func (s *Simulation) resolveLocked(group []*Agent) {
	s.interactions++
	now := time.Now().Format("15:04:05")

	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			a, b := group[i], group[j]
			score := PairScore(a, b)

			var outcome, label string
			switch {
			case score > coopThreshold:
				s.coops++
				outcome, label = OutcomeCoop, "Coop"
			case score < conflictThreshold:
				s.conflicts++
				outcome, label = OutcomeConflict, "Conflict"
			default:
				s.independents++
				outcome, label = OutcomeIndependent, "Independent"
			}
			metrics.IncSimInteraction(outcome)
			s.recent = append(s.recent, fmt.Sprintf("%s %s @ (%d,%d)", now, label, a.X, a.Y))
		}
	}
	if len(s.recent) > recentLogDepth {
		s.recent = s.recent[len(s.recent)-recentLogDepth:]
	}
}

// replaceAgents swaps in a freshly loaded population. Server agents are
// kept so running instances stay visible.
func (s *Simulation) replaceAgents(loaded []*Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]*Agent, 0, len(loaded)+len(s.servers))
	for _, a := range s.agents {
		if a.ServerID != "" {
			kept = append(kept, a)
		}
	}
	for _, a := range loaded {
		a.ID = s.nextID
		s.nextID++
		if a.Icon == "" {
			a.Icon = IconAgent
		}
		if a.Color == "" {
			a.Color = ColorAgent
		}
		kept = append(kept, a)
	}
	s.agents = kept
	metrics.SetSimAgents(len(s.agents))
	s.logger.Info().Int("population", len(s.agents)).Msg("population loaded")
}

func cloneAgent(a *Agent) *Agent {
	cp := *a
	cp.Traits = make(map[string]float64, len(a.Traits))
	for k, v := range a.Traits {
		cp.Traits[k] = v
	}
	return &cp
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
