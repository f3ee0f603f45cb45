// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package imprint

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	xlog "github.com/x0vs/ethos/internal/log"
)

// Experiment tags for the ablation ladder.
const (
	TagControl     = "A0_control"
	TagImprintOnly = "A1_imprint_only"
	TagFull        = "A2_full"
)

// Agent pairs a graph with an optional imprinter and an epsilon-greedy
// action rule. A nil imprinter means no learning at all.
type Agent struct {
	Name      string
	Graph     *LogicGraph
	Imprinter *Imprinter
	Epsilon   float64

	rng *rand.Rand
}

// NewAgent builds an agent over the graph.
func NewAgent(name string, g *LogicGraph, im *Imprinter, epsilon float64, rng *rand.Rand) *Agent {
	return &Agent{Name: name, Graph: g, Imprinter: im, Epsilon: epsilon, rng: rng}
}

// Act runs the graph forward and picks an action epsilon-greedily over the
// softmax policy.
func (a *Agent) Act(features map[string]float64) (choice string, policy map[string]float64) {
	_, _, policy = a.Graph.Forward(features)

	if a.rng.Float64() < a.Epsilon {
		return a.Graph.Actions[a.rng.Intn(len(a.Graph.Actions))], policy
	}

	best := a.Graph.Actions[0]
	for _, act := range a.Graph.Actions[1:] {
		if policy[act] > policy[best] {
			best = act
		}
	}
	return best, policy
}

// Learn applies one imprinting step, or reports the disabled readout.
func (a *Agent) Learn(features, policy map[string]float64, action string, reward float64) StepInfo {
	if a.Imprinter == nil {
		return StepInfo{Mode: ModeDisabled}
	}
	return a.Imprinter.Imprint(a.Graph, features, policy, action, reward, 0.0)
}

// RunConfig describes one experiment.
type RunConfig struct {
	Tag           string  `json:"tag"`
	Steps         int     `json:"steps"`
	FlipAt        int     `json:"flip_at"`
	Epsilon       float64 `json:"epsilon"`
	AllowMutation bool    `json:"allow_mutation"`
	UseGovernor   bool    `json:"use_governor"`
	Seed          int64   `json:"seed"`
}

func (c *RunConfig) defaults() {
	if c.Tag == "" {
		c.Tag = TagFull
	}
	if c.Steps <= 0 {
		c.Steps = 800
	}
	if c.FlipAt <= 0 {
		c.FlipAt = c.Steps / 2
	}
	if c.Epsilon <= 0 {
		c.Epsilon = 0.05
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// Summary is the result of one experiment. RecovSteps is nil when the
// moving accuracy never recovered to 0.80 after the flip.
type Summary struct {
	Tag        string  `json:"tag"`
	PreAcc     float64 `json:"pre_acc"`
	PostAcc    float64 `json:"post_acc"`
	Regret     float64 `json:"regret"`
	RecovSteps *int    `json:"recov_steps"`
	CSV        string  `json:"csv"`
	StartedAt  string  `json:"started_at"`
}

var csvFields = []string{
	"t", "ctx", "action", "correct", "reward", "acc100", "regret",
	"mode", "lr_eff", "volatility", "mutated",
	"div_score", "Dw", "Dpi", "Dm", "dW_step", "tag",
}

// RunExperiment drives one flip-world run, streaming the per-step ledger
// into a CSV under dir.
func RunExperiment(ctx context.Context, dir string, cfg RunConfig) (Summary, error) {
	cfg.defaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("imprint: create run dir: %w", err)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	world := NewFlipWorld(cfg.FlipAt, rng)
	graph := BuildGraph(rng)

	var governor *Governor
	if cfg.UseGovernor {
		governor = NewGovernor()
	}
	opts := DefaultOptions()
	opts.LR = 0.18
	opts.Decay = 0.003
	opts.L1 = 0.0007
	opts.MutateP = 0.03
	opts.AllowMutation = cfg.AllowMutation
	opts.Governor = governor

	var imprinter *Imprinter
	if cfg.Tag != TagControl {
		imprinter = NewImprinter(opts, rng)
	}
	agent := NewAgent(cfg.Tag, graph, imprinter, cfg.Epsilon, rng)

	startedAt := time.Now()
	fname := fmt.Sprintf("imprinter_log_%s_%s.csv", cfg.Tag, startedAt.Format("20060102_150405"))
	path := filepath.Join(dir, fname)
	f, err := os.Create(path)
	if err != nil {
		return Summary{}, fmt.Errorf("imprint: create ledger: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvFields); err != nil {
		return Summary{}, err
	}

	logger := xlog.WithComponentFromContext(ctx, "imprint")

	acc := window{max: 100}
	regret := 0.0
	var preAcc, postAcc float64
	var recovSteps *int

	for t := 0; t < cfg.Steps; t++ {
		select {
		case <-ctx.Done():
			return Summary{}, ctx.Err()
		default:
		}

		feats := world.Observe()
		action, policy := agent.Act(feats)
		reward, correct := world.Reward(action)
		info := agent.Learn(feats, policy, action, reward)

		hit := 0.0
		if reward > 0.5 {
			hit = 1.0
		}
		acc.push(hit)
		regret += 1.0 - reward

		if t == cfg.FlipAt-1 {
			preAcc = acc.mean()
		}
		if t >= cfg.FlipAt && recovSteps == nil && len(acc.vals) == acc.max {
			if acc.mean() >= 0.80 {
				n := t - cfg.FlipAt + 1
				recovSteps = &n
			}
		}

		row := []string{
			strconv.Itoa(t),
			world.Ctx,
			action,
			correct,
			strconv.Itoa(int(reward)),
			strconv.FormatFloat(acc.mean(), 'f', 4, 64),
			strconv.FormatFloat(regret, 'f', 4, 64),
			string(info.Mode),
			strconv.FormatFloat(info.LREff, 'f', 6, 64),
			strconv.FormatFloat(info.Volatility, 'f', 6, 64),
			boolBit(info.Mutated),
			strconv.FormatFloat(info.DivScore, 'f', 6, 64),
			strconv.FormatFloat(info.Dw, 'f', 6, 64),
			strconv.FormatFloat(info.Dpi, 'f', 6, 64),
			strconv.FormatFloat(info.Dm, 'f', 6, 64),
			strconv.FormatFloat(info.DWStep, 'f', 6, 64),
			cfg.Tag,
		}
		if err := w.Write(row); err != nil {
			return Summary{}, err
		}

		if t == cfg.Steps-1 {
			postAcc = acc.mean()
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Tag:        cfg.Tag,
		PreAcc:     preAcc,
		PostAcc:    postAcc,
		Regret:     regret,
		RecovSteps: recovSteps,
		CSV:        fname,
		StartedAt:  startedAt.UTC().Format(time.RFC3339),
	}
	logger.Info().
		Str("tag", cfg.Tag).
		Float64("pre_acc", preAcc).
		Float64("post_acc", postAcc).
		Float64("regret", regret).
		Msg("experiment finished")
	return summary, nil
}

// RunAblations runs the standard ladder: no learning, imprinting only, and
// full governance with mutations.
func RunAblations(ctx context.Context, dir string, seed int64) ([]Summary, error) {
	configs := []RunConfig{
		{Tag: TagControl, Steps: 800, FlipAt: 400, Seed: seed},
		{Tag: TagImprintOnly, Steps: 800, FlipAt: 400, Seed: seed + 1},
		{Tag: TagFull, Steps: 800, FlipAt: 400, AllowMutation: true, UseGovernor: true, Seed: seed + 2},
	}
	out := make([]Summary, 0, len(configs))
	for _, cfg := range configs {
		s, err := RunExperiment(ctx, dir, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func boolBit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
