// SPDX-License-Identifier: MIT

package imprint

import "math/rand"

// FlipWorld is the benchmark task: two contexts, each favoring one action,
// with the mapping flipped at TFlip to force adaptation.
type FlipWorld struct {
	TFlip int
	Ctx   string

	t   int
	rng *rand.Rand
}

// NewFlipWorld builds the world with its own randomness source.
func NewFlipWorld(tFlip int, rng *rand.Rand) *FlipWorld {
	return &FlipWorld{TFlip: tFlip, Ctx: "A", rng: rng}
}

// Observe draws a context and returns the stimulus features.
func (w *FlipWorld) Observe() map[string]float64 {
	w.Ctx = "B"
	if w.rng.Float64() < 0.5 {
		w.Ctx = "A"
	}
	feats := map[string]float64{
		"ctxA":  0,
		"ctxB":  0,
		"noise": w.rng.Float64() - 0.5,
	}
	if w.Ctx == "A" {
		feats["ctxA"] = 1
	} else {
		feats["ctxB"] = 1
	}
	return feats
}

// Reward scores the action against the current mapping and advances time.
func (w *FlipWorld) Reward(action string) (float64, string) {
	correct := "RIGHT"
	if (w.t < w.TFlip) == (w.Ctx == "A") {
		correct = "LEFT"
	}
	w.t++
	if action == correct {
		return 1.0, correct
	}
	return 0.0, correct
}
