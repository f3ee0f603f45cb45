// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package meaning

import (
	"context"
	"math/rand"
	"sync"
	"time"

	xlog "github.com/x0vs/ethos/internal/log"
)

// Engine is the concurrency-safe facade over physiology, substrate, value
// system and agent. All daemon traffic goes through it.
type Engine struct {
	mu     sync.Mutex
	rng    *rand.Rand
	phys   *Physiology
	sub    *Substrate
	values *ValueSystem
	agent  *Agent
}

// OpenEngine builds the full stack on the given substrate database.
// Seed 0 picks a time-based seed.
func OpenEngine(dbPath string, baseLR float64, seed int64) (*Engine, error) {
	sub, err := OpenSubstrate(dbPath)
	if err != nil {
		return nil, err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	phys := NewPhysiology()
	values := NewValueSystem(sub, phys, baseLR)
	return &Engine{
		rng:    rand.New(rand.NewSource(seed)),
		phys:   phys,
		sub:    sub,
		values: values,
		agent:  NewAgent(values, phys),
	}, nil
}

// Close releases the substrate.
func (e *Engine) Close() error {
	return e.sub.Close()
}

// Substrate exposes the durable layer, for exports and fingerprints.
func (e *Engine) Substrate() *Substrate { return e.sub }

// Decide evaluates a trust decision against counterpart.
func (e *Engine) Decide(ctx context.Context, counterpart string, stakes float64) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.agent.EvaluateTrust(ctx, counterpart, stakes)
	if err != nil {
		return Decision{}, err
	}
	xlog.WithComponentFromContext(ctx, "meaning").Debug().
		Str("counterpart", counterpart).
		Str("choice", d.Choice).
		Float64("confidence", d.Confidence).
		Bool("ask_review", d.AskReview).
		Msg("trust decision")
	return d, nil
}

// Outcome records a kept or broken promise.
func (e *Engine) Outcome(ctx context.Context, counterpart string, keptPromise bool, stakes float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agent.RecordOutcome(ctx, counterpart, keptPromise, stakes)
}

// Weight returns the current weight for concept.
func (e *Engine) Weight(ctx context.Context, concept string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.values.Get(ctx, concept)
}

// Push advances the physiology with environment pushes.
func (e *Engine) Push(push map[string]float64) Physiology {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phys.Step(e.rng, push)
	return *e.phys
}

// Physiology returns a copy of the current strain signals.
func (e *Engine) Physiology() Physiology {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.phys
}
