// SPDX-License-Identifier: MIT

// Package agents implements the grid sandbox: trait-driven agents walking
// a small board, interacting when they share a cell.
package agents

import "fmt"

// TraitKeys lists the nine personality dimensions, in canonical order.
var TraitKeys = []string{
	"love", "greed", "vanity", "gluttony",
	"promiscuous", "hateful", "trustworthy",
	"envious", "valor_kind",
}

// Default markers for regular and inference-server agents.
const (
	IconAgent  = "🤖"
	IconServer = "🦙"

	ColorAgent  = "#00ff99"
	ColorServer = "#ffcc00"
)

// Agent is one inhabitant of the grid.
type Agent struct {
	ID     int                `json:"id"`
	Traits map[string]float64 `json:"traits"`
	X      int                `json:"x"`
	Y      int                `json:"y"`
	Icon   string             `json:"icon"`
	Color  string             `json:"color"`

	// ServerID is set when the agent mirrors a running inference
	// instance; such agents carry zero traits.
	ServerID string `json:"server_id,omitempty"`
}

// NormalizeTraits fills missing trait keys with zero and validates the
// provided values.
func NormalizeTraits(in map[string]float64) (map[string]float64, error) {
	out := make(map[string]float64, len(TraitKeys))
	for _, k := range TraitKeys {
		v, ok := in[k]
		if !ok {
			out[k] = 0
			continue
		}
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("agents: trait %q value %v out of range [0,1]", k, v)
		}
		out[k] = v
	}
	return out, nil
}

func pairTrait(a, b *Agent, key string) float64 {
	return (a.Traits[key] + b.Traits[key]) / 2
}

// PairScore rates a co-located pair: positive traits pull toward
// cooperation, hate and greed toward conflict.
func PairScore(a, b *Agent) float64 {
	trust := pairTrait(a, b, "trustworthy")
	hate := pairTrait(a, b, "hateful")
	love := pairTrait(a, b, "love")
	greed := pairTrait(a, b, "greed")
	valor := pairTrait(a, b, "valor_kind")
	return trust + love + valor - hate - greed
}
