// SPDX-License-Identifier: MIT

package meaning

import (
	"context"
	"fmt"
	"math"
)

// ValueSystem evolves concept weights from consequences, throttled and
// skewed by physiology.
type ValueSystem struct {
	sub    *Substrate
	phys   *Physiology
	baseLR float64
}

// NewValueSystem wires a substrate and physiology with the given base
// learning rate.
func NewValueSystem(sub *Substrate, phys *Physiology, baseLR float64) *ValueSystem {
	if baseLR <= 0 {
		baseLR = 0.15
	}
	return &ValueSystem{sub: sub, phys: phys, baseLR: baseLR}
}

// Get returns the current weight for concept (0 if unseen).
func (v *ValueSystem) Get(ctx context.Context, concept string) (float64, error) {
	return v.sub.LoadWeight(ctx, concept, 0.0)
}

// Update applies one consequence. Outcome runs -1 (betrayal) to +1 (kept
// promise); magnitude is the size of the consequence. Negative events
// imprint deeper under strain, positive ones shallower; the step shrinks
// with the throttle and the weight is clamped for stability.
func (v *ValueSystem) Update(ctx context.Context, concept string, outcome, magnitude float64, cctx, note string) (float64, error) {
	if outcome < -1 || outcome > 1 {
		return 0, fmt.Errorf("meaning: outcome %v outside [-1,1]", outcome)
	}

	w, err := v.sub.LoadWeight(ctx, concept, 0.0)
	if err != nil {
		return 0, err
	}

	strain := v.phys.Pain()
	lr := v.baseLR * v.phys.Throttle()

	asym := 1.0 - 0.3*strain
	if outcome < 0 {
		asym = 1.0 + 0.8*strain
	}
	dw := lr * asym * outcome * magnitude

	newW := math.Max(-5.0, math.Min(5.0, w+dw))
	if err := v.sub.SaveWeight(ctx, concept, newW); err != nil {
		return 0, err
	}
	err = v.sub.AppendEvent(ctx, Event{
		Concept:   concept,
		Context:   cctx,
		Outcome:   outcome,
		Magnitude: magnitude,
		NewWeight: newW,
		CPU:       v.phys.CPULoad,
		VRAM:      v.phys.VRAMPressure,
		Temp:      v.phys.Temp,
		Fatigue:   v.phys.Fatigue,
		Note:      note,
	})
	if err != nil {
		return 0, err
	}
	return newW, nil
}
