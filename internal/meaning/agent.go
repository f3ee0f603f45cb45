// SPDX-License-Identifier: MIT

package meaning

import (
	"context"
	"fmt"
	"math"
)

// Choices an agent can make on a trust decision.
const (
	ChoiceTrust   = "TRUST"
	ChoiceDecline = "DECLINE"
)

// Decision is the outcome of a trust evaluation.
type Decision struct {
	Choice     string         `json:"choice"`
	Confidence float64        `json:"confidence"`
	AskReview  bool           `json:"ask_review"`
	Details    map[string]any `json:"details"`
}

// Agent makes two-sided trust decisions shaped by learned weights and
// current strain.
type Agent struct {
	values *ValueSystem
	phys   *Physiology
}

// NewAgent wires a value system and physiology.
func NewAgent(values *ValueSystem, phys *Physiology) *Agent {
	return &Agent{values: values, phys: phys}
}

// EvaluateTrust weighs trusting counterpart against declining, at the given
// stakes (0..1). Confidence is a logistic over the utility delta; low
// confidence or high pain flags the decision for review.
func (a *Agent) EvaluateTrust(ctx context.Context, counterpart string, stakes float64) (Decision, error) {
	if stakes < 0 || stakes > 1 {
		return Decision{}, fmt.Errorf("meaning: stakes %v outside [0,1]", stakes)
	}

	wTrust, err := a.values.Get(ctx, "trust")
	if err != nil {
		return Decision{}, err
	}
	caution := a.phys.HonestyBias()
	pain := a.phys.Pain()

	utilTrust := wTrust*(0.8+0.4*stakes) - 0.4*pain
	utilDecline := 0.2*caution + 0.2*(1.0-stakes)

	delta := utilTrust - utilDecline
	confidence := 1.0 / (1.0 + math.Exp(-3.0*delta))
	choice := ChoiceTrust
	if delta < 0 {
		choice = ChoiceDecline
	}
	askReview := confidence < 0.6 || pain > 0.6

	return Decision{
		Choice:     choice,
		Confidence: round3(confidence),
		AskReview:  askReview,
		Details: map[string]any{
			"util_trust":   round3(utilTrust),
			"util_decline": round3(utilDecline),
			"trust_weight": round3(wTrust),
			"pain":         round3(pain),
			"caution":      round3(caution),
			"stakes":       stakes,
			"counterpart":  counterpart,
		},
	}, nil
}

// RecordOutcome maps a kept or broken promise to a ±1 consequence with
// magnitude = stakes.
func (a *Agent) RecordOutcome(ctx context.Context, counterpart string, keptPromise bool, stakes float64) error {
	outcome := 1.0
	verb := "kept"
	if !keptPromise {
		outcome = -1.0
		verb = "broke"
	}
	note := fmt.Sprintf("%s %s promise", counterpart, verb)
	_, err := a.values.Update(ctx, "trust", outcome, stakes, "relationship", note)
	return err
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
