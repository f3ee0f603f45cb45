// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package regulator

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Set owns one engine per sin plus the shared randomness source used for
// simulated updates.
type Set struct {
	mu      sync.Mutex
	rng     *rand.Rand
	engines map[Sin]*Engine
}

// NewSet builds all seven engines. Seed 0 picks a time-based seed.
func NewSet(timelineDepth int, seed int64) *Set {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Set{
		rng:     rand.New(rand.NewSource(seed)),
		engines: make(map[Sin]*Engine, len(Sins())),
	}
	for _, sin := range Sins() {
		e, _ := NewEngine(sin, timelineDepth)
		s.engines[sin] = e
	}
	return s
}

// Get returns the engine for sin.
func (s *Set) Get(sin Sin) (*Engine, error) {
	e, ok := s.engines[sin]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSin, sin)
	}
	return e, nil
}

// All returns the engines in radar order.
func (s *Set) All() []*Engine {
	out := make([]*Engine, 0, len(s.engines))
	for _, sin := range Sins() {
		out = append(out, s.engines[sin])
	}
	return out
}

// Step runs one simulated update on the named engine.
func (s *Set) Step(sin Sin) (StepResult, error) {
	e, err := s.Get(sin)
	if err != nil {
		return StepResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.Step(s.rng), nil
}

// Radar aggregates the main values of a Set into named axes.
type Radar struct {
	set *Set
}

// NewRadar wraps a Set for axis readout.
func NewRadar(set *Set) *Radar {
	return &Radar{set: set}
}

// Sync pulls every engine's main value into an axes map, clamped to
// [0,100], keyed by sin.
func (r *Radar) Sync() map[Sin]float64 {
	axes := make(map[Sin]float64, len(Sins()))
	for _, e := range r.set.All() {
		v := float64(e.Main())
		if v < 0 {
			v = 0
		}
		if v > 100 {
			v = 100
		}
		axes[e.Sin()] = v
	}
	return axes
}
