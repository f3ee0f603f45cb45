// SPDX-License-Identifier: MIT

package imprint

import "math"

// Snapshot is a deep copy of every weight in a graph.
type Snapshot struct {
	Bias map[string]float64
	WIn  map[string]map[string]float64
	WOut map[string]map[string]float64
}

// TakeSnapshot deep-copies the graph's weights.
func TakeSnapshot(g *LogicGraph) Snapshot {
	snap := Snapshot{
		Bias: make(map[string]float64, len(g.Rules)),
		WIn:  make(map[string]map[string]float64, len(g.Rules)),
		WOut: make(map[string]map[string]float64, len(g.Rules)),
	}
	for name, r := range g.Rules {
		snap.Bias[name] = r.Bias
		in := make(map[string]float64, len(r.WIn))
		for f, w := range r.WIn {
			in[f] = w
		}
		snap.WIn[name] = in
		out := make(map[string]float64, len(r.WOut))
		for a, w := range r.WOut {
			out[a] = w
		}
		snap.WOut[name] = out
	}
	return snap
}

// L1Norm sums the absolute value of every weight in the snapshot.
func (s Snapshot) L1Norm() float64 {
	total := 0.0
	for _, b := range s.Bias {
		total += math.Abs(b)
	}
	for _, m := range s.WIn {
		for _, w := range m {
			total += math.Abs(w)
		}
	}
	for _, m := range s.WOut {
		for _, w := range m {
			total += math.Abs(w)
		}
	}
	return total
}

// L1Diff sums |w_current - w_snapshot| across all weights, counting edges
// present on either side.
func (s Snapshot) L1Diff(g *LogicGraph) float64 {
	total := 0.0
	for name, b0 := range s.Bias {
		b := 0.0
		if r, ok := g.Rules[name]; ok {
			b = r.Bias
		}
		total += math.Abs(b - b0)
	}
	for name, fmap := range s.WIn {
		r := g.Rules[name]
		if r == nil {
			for _, w0 := range fmap {
				total += math.Abs(w0)
			}
			continue
		}
		total += mapL1Diff(fmap, r.WIn)
	}
	for name, amap := range s.WOut {
		r := g.Rules[name]
		if r == nil {
			for _, w0 := range amap {
				total += math.Abs(w0)
			}
			continue
		}
		total += mapL1Diff(amap, r.WOut)
	}
	return total
}

func mapL1Diff(before, after map[string]float64) float64 {
	total := 0.0
	for k, w0 := range before {
		total += math.Abs(after[k] - w0)
	}
	for k, w := range after {
		if _, seen := before[k]; !seen {
			total += math.Abs(w)
		}
	}
	return total
}
