// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package imprint

// Mode is the governor's runtime gate on learning.
type Mode string

const (
	ModeAllow      Mode = "allow"
	ModeWarning    Mode = "warning"
	ModeLimit      Mode = "limit"
	ModeQuarantine Mode = "quarantine"
	ModeDisabled   Mode = "disabled" // agent has no imprinter at all
)

// Governor gates live updates by divergence score and policy volatility.
type Governor struct {
	WarnThresh       float64
	LimitThresh      float64
	QuarantineThresh float64
	TauVolatility    float64
}

// NewGovernor returns the standard thresholds.
func NewGovernor() *Governor {
	return &Governor{
		WarnThresh:       0.50,
		LimitThresh:      0.70,
		QuarantineThresh: 0.85,
		TauVolatility:    0.02,
	}
}

// Decide maps a divergence score and volatility to a mode, a learning-rate
// scale and a mutation permission. Quarantine blocks everything; limit
// blocks mutation; warning halves the learning rate; mutation is only ever
// allowed while volatility stays under tau.
func (g *Governor) Decide(divScore, volatility float64) (Mode, float64, bool) {
	switch {
	case divScore >= g.QuarantineThresh:
		return ModeQuarantine, 0.0, false
	case divScore >= g.LimitThresh:
		return ModeLimit, 0.0, false
	case divScore >= g.WarnThresh:
		return ModeWarning, 0.5, volatility < g.TauVolatility
	default:
		return ModeAllow, 1.0, volatility < g.TauVolatility
	}
}
