// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package meaning implements the value-weighted meaning engine: machine
// physiology as a strain signal, a durable substrate of concept weights and
// consequence events, and trust decisions shaped by both.
package meaning

import (
	"math"
	"math/rand"
)

// Physiology holds the machine analogs for feelings, each in [0,1].
type Physiology struct {
	CPULoad      float64 `json:"cpu_load"`
	VRAMPressure float64 `json:"vram_pressure"`
	Temp         float64 `json:"temp"`
	Fatigue      float64 `json:"fatigue"`
}

// NewPhysiology starts at low baseline strain.
func NewPhysiology() *Physiology {
	return &Physiology{CPULoad: 0.1, VRAMPressure: 0.1, Temp: 0.1, Fatigue: 0.1}
}

// Pain is the composite strain signal, convex to emphasise overload.
func (p *Physiology) Pain() float64 {
	sum := math.Pow(p.CPULoad, 1.2) +
		math.Pow(p.VRAMPressure, 1.2) +
		math.Pow(p.Temp, 1.2) +
		math.Pow(p.Fatigue, 1.2)
	return math.Min(1.0, 0.25*sum)
}

// Throttle reports how much to slow updates under strain (1=free, 0.1=floor).
func (p *Physiology) Throttle() float64 {
	return math.Max(0.1, 1.0-0.7*p.Pain())
}

// HonestyBias rises with strain, favouring caution and review.
func (p *Physiology) HonestyBias() float64 {
	return math.Min(0.5, 0.05+0.45*p.Pain())
}

// Step applies environment pushes plus small bounded noise to every signal.
// Push keys follow the event columns: cpu_load, vram_pressure, temp, fatigue.
func (p *Physiology) Step(rng *rand.Rand, push map[string]float64) {
	p.CPULoad = stepSignal(rng, p.CPULoad, push["cpu_load"])
	p.VRAMPressure = stepSignal(rng, p.VRAMPressure, push["vram_pressure"])
	p.Temp = stepSignal(rng, p.Temp, push["temp"])
	p.Fatigue = stepSignal(rng, p.Fatigue, push["fatigue"])
}

func stepSignal(rng *rand.Rand, base, push float64) float64 {
	noise := -0.03 + rng.Float64()*0.06
	return math.Max(0.0, math.Min(1.0, base+0.3*push+noise))
}
