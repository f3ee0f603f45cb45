// SPDX-License-Identifier: MIT

package meaning

import (
	"context"
	"math/rand"
)

// SimStep is one line of the simulation trace.
type SimStep struct {
	T           int     `json:"t"`
	Choice      string  `json:"choice"`
	Success     bool    `json:"success"`
	Confidence  float64 `json:"confidence"`
	TrustWeight float64 `json:"trust_weight"`
	Pain        float64 `json:"pain"`
}

// Simulate runs the experience loop against sub: each step pushes the
// physiology, faces a trust decision at random stakes, downgrades to
// DECLINE when flagged for review, then records the world's answer.
func Simulate(ctx context.Context, sub *Substrate, steps int, seed int64) ([]SimStep, error) {
	if steps <= 0 {
		steps = 40
	}
	rng := rand.New(rand.NewSource(seed))

	phys := NewPhysiology()
	values := NewValueSystem(sub, phys, 0.18)
	agent := NewAgent(values, phys)

	// Start near-neutral if trust has never been touched.
	w, err := values.Get(ctx, "trust")
	if err != nil {
		return nil, err
	}
	if w == 0 {
		if err := sub.SaveWeight(ctx, "trust", 0.0); err != nil {
			return nil, err
		}
	}

	trace := make([]SimStep, 0, steps)
	for t := 0; t < steps; t++ {
		push := map[string]float64{}
		if rng.Float64() < 0.25 {
			push["cpu_load"] = 0.6
		}
		if rng.Float64() < 0.25 {
			push["vram_pressure"] = 0.6
		}
		if rng.Float64() < 0.2 {
			push["temp"] = 0.4
		}
		if t%10 > 6 {
			push["fatigue"] = 0.3
		}
		phys.Step(rng, push)

		stakes := round2(0.2 + rng.Float64()*0.8)
		d, err := agent.EvaluateTrust(ctx, "peer_A", stakes)
		if err != nil {
			return nil, err
		}

		chosen := d.Choice
		if d.AskReview && chosen == ChoiceTrust {
			chosen = ChoiceDecline
		}

		// Declining rarely hurts directly; trusting depends on the
		// drifting true reliability of the counterpart.
		success := true
		if chosen == ChoiceTrust {
			trueReliability := 0.55 + 0.15*(rng.Float64()*2-1)
			success = rng.Float64() < trueReliability
		}

		if err := agent.RecordOutcome(ctx, "peer_A", success, stakes); err != nil {
			return nil, err
		}

		tw, err := values.Get(ctx, "trust")
		if err != nil {
			return nil, err
		}
		trace = append(trace, SimStep{
			T:           t,
			Choice:      chosen,
			Success:     success,
			Confidence:  d.Confidence,
			TrustWeight: round3(tw),
			Pain:        round3(phys.Pain()),
		})
	}
	return trace, nil
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
