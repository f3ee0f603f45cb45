// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package imprint

import (
	"math/rand"
	"sort"

	"github.com/x0vs/ethos/internal/metrics"
)

// Options configures a live imprinter.
type Options struct {
	LR            float64
	Decay         float64
	L1            float64
	TD            float64
	MutateP       float64
	AllowMutation bool
	Governor      *Governor
	AlphaW        float64
	AlphaPi       float64
	AlphaM        float64
	MutWindow     int
}

// DefaultOptions returns the standalone defaults.
func DefaultOptions() Options {
	return Options{
		LR:        0.15,
		Decay:     0.002,
		L1:        0.0005,
		TD:        0.4,
		MutateP:   0.02,
		AlphaW:    0.5,
		AlphaPi:   0.4,
		AlphaM:    0.1,
		MutWindow: 50,
	}
}

// StepInfo is the per-step learning readout.
type StepInfo struct {
	Mode       Mode    `json:"mode"`
	LREff      float64 `json:"lr_eff"`
	Volatility float64 `json:"volatility"`
	Mutated    bool    `json:"mutated"`
	DivScore   float64 `json:"div_score"`
	Dw         float64 `json:"dw"`
	Dpi        float64 `json:"dpi"`
	Dm         float64 `json:"dm"`
	DWStep     float64 `json:"dw_step"`
}

// window is a bounded FIFO of floats.
type window struct {
	max  int
	vals []float64
}

func (w *window) push(v float64) {
	w.vals = append(w.vals, v)
	if len(w.vals) > w.max {
		w.vals = w.vals[len(w.vals)-w.max:]
	}
}

func (w *window) mean() float64 {
	if len(w.vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.vals {
		sum += v
	}
	return sum / float64(len(w.vals))
}

// Imprinter applies online updates to a graph: TD-flavored edge updates
// with weight decay and L1 shrinkage, bias nudges, and governed structural
// mutations.
type Imprinter struct {
	opts Options
	rng  *rand.Rand

	stability window // recent policy[chosen]
	mutations window // 1 per mutated step

	w0Snap     *Snapshot
	w0L1       float64
	prevPolicy map[string]float64
	prevSnap   *Snapshot
}

// NewImprinter builds an imprinter with its own randomness source.
func NewImprinter(opts Options, rng *rand.Rand) *Imprinter {
	if opts.MutWindow <= 0 {
		opts.MutWindow = 50
	}
	return &Imprinter{
		opts:      opts,
		rng:       rng,
		stability: window{max: 25},
		mutations: window{max: opts.MutWindow},
	}
}

// divergence computes D = αw*Dw + αpi*Dpi + αm*Dm. Dw is the normalized L1
// drift from the initial weights, Dpi the total-variation policy shift
// since the previous step, Dm the recent mutation rate.
func (im *Imprinter) divergence(g *LogicGraph, policy map[string]float64, mutated bool) (div, dw, dpi, dm float64) {
	if im.w0Snap == nil {
		snap := TakeSnapshot(g)
		im.w0Snap = &snap
		im.w0L1 = snap.L1Norm()
		if im.w0L1 < 1e-9 {
			im.w0L1 = 1e-9
		}
	}

	dw = clip01(im.w0Snap.L1Diff(g) / im.w0L1)

	if im.prevPolicy != nil {
		for a, p := range policy {
			dpi += abs(p - im.prevPolicy[a])
		}
		dpi = clip01(dpi * 0.5)
	}

	flag := 0.0
	if mutated {
		flag = 1.0
	}
	im.mutations.push(flag)
	dm = im.mutations.mean()

	div = clip01(im.opts.AlphaW*dw + im.opts.AlphaPi*dpi + im.opts.AlphaM*dm)
	return div, dw, dpi, dm
}

// Imprint applies one learning step for the chosen action and reward, and
// returns the governance readout.
func (im *Imprinter) Imprint(g *LogicGraph, features, policy map[string]float64, chosen string, reward, nextValueEst float64) StepInfo {
	im.stability.push(policy[chosen])
	volatility := 0.0
	if len(im.stability.vals) >= 2 {
		volatility = variance(im.stability.vals)
	}

	mutated := false
	divScore, _, _, _ := im.divergence(g, policy, mutated)

	mode, lrScale, allowMutationNow := ModeAllow, 1.0, true
	if im.opts.Governor != nil {
		mode, lrScale, allowMutationNow = im.opts.Governor.Decide(divScore, volatility)
	}
	lrEff := im.opts.LR * lrScale

	valueEst := policy[chosen]
	tdError := reward + im.opts.TD*nextValueEst - valueEst

	if mode != ModeQuarantine {
		// Outgoing edges: advantage-weighted toward the chosen action.
		for _, r := range g.ordered() {
			act := r.lastAct
			for _, a := range g.Actions {
				adv := -policy[a]
				if a == chosen {
					adv = 1.0 - policy[a]
				}
				grad := adv * act
				delta := lrEff * (reward*grad + tdError*grad)
				r.WOut[a] = softThreshold(r.WOut[a]*(1.0-im.opts.Decay)+delta, im.opts.L1)
			}
		}

		// Incoming feature weights: correlation of activation with input.
		for _, r := range g.ordered() {
			for f, x := range features {
				corr := (r.lastAct - 0.5) * x
				delta := lrEff * 0.5 * (reward*corr + tdError*corr)
				r.WIn[f] = softThreshold(r.WIn[f]*(1.0-im.opts.Decay)+delta, im.opts.L1)
			}
		}

		// Bias nudge.
		for _, r := range g.ordered() {
			r.Bias = softThreshold(r.Bias*(1.0-im.opts.Decay)+lrEff*0.1*reward*(r.lastAct-0.5), im.opts.L1)
		}

		if im.opts.AllowMutation && allowMutationNow && im.rng.Float64() < im.opts.MutateP {
			// Structural change only pays off while the policy is unsettled.
			if volatility > 0.02 {
				im.mutate(g)
				mutated = true
			}
		}
	}

	im.prevPolicy = copyPolicy(policy)

	if im.prevSnap == nil {
		snap := TakeSnapshot(g)
		im.prevSnap = &snap
	}
	dWStep := im.prevSnap.L1Diff(g)
	snap := TakeSnapshot(g)
	im.prevSnap = &snap

	divScore, dw, dpi, dm := im.divergence(g, policy, mutated)

	metrics.IncImprintStep(string(mode))
	metrics.SetImprintDivergence(divScore)

	return StepInfo{
		Mode:       mode,
		LREff:      lrEff,
		Volatility: volatility,
		Mutated:    mutated,
		DivScore:   divScore,
		Dw:         dw,
		Dpi:        dpi,
		Dm:         dm,
		DWStep:     dWStep,
	}
}

// mutate applies a structural micro-change: nudge one outgoing edge, then
// flip or nudge one input weight.
func (im *Imprinter) mutate(g *LogicGraph) {
	rules := g.ordered()
	if len(rules) == 0 {
		return
	}
	r := rules[im.rng.Intn(len(rules))]

	if len(g.Actions) > 0 {
		a := g.Actions[im.rng.Intn(len(g.Actions))]
		r.WOut[a] += im.rng.Float64()*0.4 - 0.2
	}

	if len(r.WIn) > 0 {
		feats := make([]string, 0, len(r.WIn))
		for f := range r.WIn {
			feats = append(feats, f)
		}
		sort.Strings(feats) // deterministic under a fixed seed
		f := feats[im.rng.Intn(len(feats))]
		if im.rng.Float64() < 0.5 {
			r.WIn[f] *= -1.0
		} else {
			r.WIn[f] += im.rng.Float64()*0.2 - 0.1
		}
		return
	}

	newf := []string{"fA", "fB", "fC"}[im.rng.Intn(3)]
	r.WIn[newf] += im.rng.Float64()*0.1 - 0.05
}

func copyPolicy(p map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
