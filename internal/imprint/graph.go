// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package imprint implements online rule-graph imprinting: a logic graph
// of sigmoid rules mapped onto a softmax policy, updated live per outcome
// instead of retrained, governed at runtime by divergence gating.
package imprint

import (
	"math"
	"math/rand"
)

// RuleNode is one rule: weighted input features, a bias, and weighted
// output actions.
type RuleNode struct {
	Name    string
	Bias    float64
	WIn     map[string]float64
	WOut    map[string]float64
	lastAct float64
}

// Activate computes the rule's sigmoid activation for the features.
func (r *RuleNode) Activate(features map[string]float64) float64 {
	s := r.Bias
	for f, v := range features {
		s += r.WIn[f] * v
	}
	r.lastAct = sigmoid(s)
	return r.lastAct
}

// LogicGraph aggregates rule activations into an action policy.
type LogicGraph struct {
	Actions []string
	Rules   map[string]*RuleNode

	order []string // deterministic iteration
}

// NewLogicGraph builds an empty graph over the given actions.
func NewLogicGraph(actions []string) *LogicGraph {
	return &LogicGraph{
		Actions: append([]string(nil), actions...),
		Rules:   make(map[string]*RuleNode),
	}
}

// AddRule installs a rule with the given weights.
func (g *LogicGraph) AddRule(name string, inputs, outputs map[string]float64, bias float64) {
	r := &RuleNode{
		Name: name,
		Bias: bias,
		WIn:  make(map[string]float64, len(inputs)),
		WOut: make(map[string]float64, len(outputs)),
	}
	for f, w := range inputs {
		r.WIn[f] = w
	}
	for a, w := range outputs {
		r.WOut[a] = w
	}
	g.Rules[name] = r
	g.order = append(g.order, name)
}

// ordered returns the rules in insertion order.
func (g *LogicGraph) ordered() []*RuleNode {
	out := make([]*RuleNode, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.Rules[name])
	}
	return out
}

// Forward activates every rule, aggregates action logits and returns the
// stable softmax policy.
func (g *LogicGraph) Forward(features map[string]float64) (ruleActs, logits, policy map[string]float64) {
	ruleActs = make(map[string]float64, len(g.Rules))
	for _, r := range g.ordered() {
		ruleActs[r.Name] = r.Activate(features)
	}

	logits = make(map[string]float64, len(g.Actions))
	for _, a := range g.Actions {
		logits[a] = 0
	}
	for _, r := range g.ordered() {
		for a, w := range r.WOut {
			logits[a] += w * r.lastAct
		}
	}

	mx := math.Inf(-1)
	for _, a := range g.Actions {
		if logits[a] > mx {
			mx = logits[a]
		}
	}
	z := 1e-9
	exps := make(map[string]float64, len(g.Actions))
	for _, a := range g.Actions {
		exps[a] = math.Exp(logits[a] - mx)
		z += exps[a]
	}
	policy = make(map[string]float64, len(g.Actions))
	for _, a := range g.Actions {
		policy[a] = exps[a] / z
	}
	return ruleActs, logits, policy
}

// BuildGraph constructs the standard three-rule, two-action graph with
// small random initial weights.
func BuildGraph(rng *rand.Rand) *LogicGraph {
	randw := func() float64 { return rng.Float64()*0.2 - 0.1 }

	g := NewLogicGraph([]string{"LEFT", "RIGHT"})
	g.AddRule("R_ctx_align",
		map[string]float64{"ctxA": randw(), "ctxB": randw(), "noise": randw()},
		map[string]float64{"LEFT": randw(), "RIGHT": randw()},
		randw())
	g.AddRule("R_ctx_contrast",
		map[string]float64{"ctxA": randw(), "ctxB": randw(), "noise": randw()},
		map[string]float64{"LEFT": randw(), "RIGHT": randw()},
		randw())
	g.AddRule("R_noise_gate",
		map[string]float64{"noise": randw(), "ctxA": randw(), "ctxB": randw()},
		map[string]float64{"LEFT": randw(), "RIGHT": randw()},
		randw())
	return g
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// softThreshold applies L1 shrinkage toward zero, sparsifying edges
// without hard pruning.
func softThreshold(x, lam float64) float64 {
	if x > lam {
		return x - lam
	}
	if x < -lam {
		return x + lam
	}
	return 0
}

func variance(seq []float64) float64 {
	if len(seq) == 0 {
		return 0
	}
	m := 0.0
	for _, x := range seq {
		m += x
	}
	m /= float64(len(seq))
	v := 0.0
	for _, x := range seq {
		v += (x - m) * (x - m)
	}
	return v / float64(len(seq))
}

func clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
