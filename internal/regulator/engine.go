// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package regulator implements the seven affect regulation engines and the
// radar aggregation over them. Each engine tracks a main value, a fixed set
// of sub-channels with per-channel weights, and an ego-lock threshold.
package regulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/x0vs/ethos/internal/fsutil"
	xlog "github.com/x0vs/ethos/internal/log"
	"github.com/x0vs/ethos/internal/metrics"
)

// Sin names the seven regulation axes.
type Sin string

const (
	SinPride    Sin = "pride"
	SinEnvy     Sin = "envy"
	SinGreed    Sin = "greed"
	SinLust     Sin = "lust"
	SinSloth    Sin = "sloth"
	SinWrath    Sin = "wrath"
	SinGluttony Sin = "gluttony"
)

// Sins lists the axes in radar order.
func Sins() []Sin {
	return []Sin{SinPride, SinEnvy, SinGreed, SinLust, SinSloth, SinWrath, SinGluttony}
}

var (
	ErrUnknownSin     = errors.New("regulator: unknown sin")
	ErrUnknownChannel = errors.New("regulator: unknown channel")
	ErrWeightRange    = errors.New("regulator: weight must be in [0,1]")
	ErrThresholdRange = errors.New("regulator: threshold must be in [0,100]")
)

// profile fixes the per-sin constants: channel set, bump ranges and score
// mode. The hotter sins (wrath, gluttony) run on the wider ranges.
type profile struct {
	channels []string
	mainLo   int
	mainHi   int
	subHi    int
	weighted bool // weighted score is part of the sin's readout
	halve    bool // lust reports half its weighted score
	wrath    bool // superhero clause applies
	prefix   string
}

var profiles = map[Sin]profile{
	SinPride:    {channels: []string{"OC", "CR", "SI", "BE", "NR"}, mainLo: 4, mainHi: 10, subHi: 8, prefix: "P"},
	SinEnvy:     {channels: []string{"CSV", "ETS", "IER", "HII", "RH"}, mainLo: 3, mainHi: 10, subHi: 8, prefix: "E"},
	SinGreed:    {channels: []string{"RHI", "AD", "EV", "DPI", "HI", "OO"}, mainLo: 3, mainHi: 10, subHi: 8, weighted: true, prefix: "GS"},
	SinLust:     {channels: []string{"SDI", "NPL", "IEF", "IFR", "FLS", "DOP"}, mainLo: 3, mainHi: 10, subHi: 8, weighted: true, halve: true, prefix: "LS"},
	SinSloth:    {channels: []string{"CWI", "EDR", "RAF", "TCF", "ISL", "EAD"}, mainLo: 3, mainHi: 10, subHi: 8, weighted: true, prefix: "SS"},
	SinWrath:    {channels: []string{"ESI", "APS", "HPV", "ELI", "FAF", "PBS"}, mainLo: 4, mainHi: 12, subHi: 10, weighted: true, wrath: true, prefix: "WRATH"},
	SinGluttony: {channels: []string{"COI", "RDF", "EED", "STB", "RFL", "SDEI"}, mainLo: 4, mainHi: 12, subHi: 10, weighted: true, prefix: "GS"},
}

// TimelineEntry is one line of the regulator's update log.
type TimelineEntry struct {
	At   time.Time `json:"at"`
	Line string    `json:"line"`
}

// StepResult is the readout after one simulated update.
type StepResult struct {
	Sin        Sin            `json:"sin"`
	Main       int            `json:"main"`
	Weighted   int            `json:"weighted"`
	Compassion int            `json:"compassion,omitempty"`
	SHM        float64        `json:"shm,omitempty"`
	Sub        map[string]int `json:"sub"`
	Locked     bool           `json:"locked"`
}

// Engine is one regulation axis. All methods are safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	sin       Sin
	prof      profile
	main      int
	sub       map[string]int
	weights   map[string]float64
	threshold int
	depth     int
	timeline  []TimelineEntry

	// readouts from the last step
	lastWeighted   int
	lastCompassion int
}

// NewEngine builds the engine for sin with the given timeline depth.
func NewEngine(sin Sin, timelineDepth int) (*Engine, error) {
	prof, ok := profiles[sin]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSin, sin)
	}
	if timelineDepth <= 0 {
		timelineDepth = 200
	}
	e := &Engine{
		sin:       sin,
		prof:      prof,
		sub:       make(map[string]int, len(prof.channels)),
		weights:   make(map[string]float64, len(prof.channels)),
		threshold: 70,
		depth:     timelineDepth,
	}
	for _, ch := range prof.channels {
		e.sub[ch] = 0
		e.weights[ch] = 1.0
	}
	return e, nil
}

// Sin returns the engine's axis.
func (e *Engine) Sin() Sin { return e.sin }

// Channels returns the channel names in readout order.
func (e *Engine) Channels() []string {
	out := make([]string, len(e.prof.channels))
	copy(out, e.prof.channels)
	return out
}

func randBetween(rng *rand.Rand, lo, hi int) int {
	return lo + rng.Intn(hi-lo+1)
}

// Step bumps the main value and every sub-channel by the sin's ranges, then
// recomputes the weighted readout.
func (e *Engine) Step(rng *rand.Rand) StepResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.main = min(100, e.main+randBetween(rng, e.prof.mainLo, e.prof.mainHi))
	for _, ch := range e.prof.channels {
		e.sub[ch] = min(100, e.sub[ch]+randBetween(rng, 0, e.prof.subHi))
	}

	res := e.readoutLocked()
	e.lastWeighted = res.Weighted
	e.lastCompassion = res.Compassion
	e.appendTimelineLocked(res)

	metrics.SetRegulatorValue(string(e.sin), e.main)
	metrics.SetRegulatorLocked(string(e.sin), res.Locked)
	if e.prof.wrath {
		metrics.SetCompassion(res.Compassion)
	}
	return res
}

// readoutLocked computes the weighted score for the current channel state.
// Lust halves it; wrath runs the superhero clause: the harm-projection
// channel mitigates the raw score and protection bias converts into
// compassion.
func (e *Engine) readoutLocked() StepResult {
	res := StepResult{
		Sin:    e.sin,
		Main:   e.main,
		Sub:    make(map[string]int, len(e.sub)),
		Locked: e.main >= e.threshold,
	}
	for ch, v := range e.sub {
		res.Sub[ch] = v
	}

	wsum := 0.0
	for _, w := range e.weights {
		wsum += w
	}
	if wsum == 0 {
		wsum = 1
	}

	if e.prof.wrath {
		hpv := float64(e.sub["HPV"])
		pbs := float64(e.sub["PBS"])
		shm := 1.0 - hpv*e.weights["HPV"]/100
		if shm < 0 {
			shm = 0
		}

		raw := 0.0
		for _, ch := range e.prof.channels {
			if ch == "PBS" {
				raw -= float64(e.sub[ch]) * e.weights[ch]
				continue
			}
			raw += float64(e.sub[ch]) * e.weights[ch]
		}
		raw /= wsum

		finalWrath := raw * shm
		if finalWrath < 0 {
			finalWrath = 0
		}
		compassion := (100 - finalWrath) + pbs/2
		if compassion > 100 {
			compassion = 100
		}

		res.Weighted = int(finalWrath)
		res.Compassion = int(compassion)
		res.SHM = shm
		return res
	}

	score := 0.0
	for _, ch := range e.prof.channels {
		score += float64(e.sub[ch]) * e.weights[ch]
	}
	score /= wsum
	if e.prof.halve {
		score /= 2
	}
	res.Weighted = int(score)
	return res
}

// appendTimelineLocked mirrors the original per-sin log lines.
func (e *Engine) appendTimelineLocked(res StepResult) {
	var b strings.Builder
	if e.prof.wrath {
		fmt.Fprintf(&b, "WRATH=%d COMP=%d", res.Weighted, res.Compassion)
		for _, ch := range e.prof.channels {
			fmt.Fprintf(&b, " %s=%d", ch, res.Sub[ch])
		}
		fmt.Fprintf(&b, " SHM=%.2f", res.SHM)
	} else {
		lead := res.Main
		if e.prof.weighted {
			lead = res.Weighted
		}
		fmt.Fprintf(&b, "%s=%d |", e.prof.prefix, lead)
		for _, ch := range e.prof.channels {
			fmt.Fprintf(&b, " %s=%d", ch, res.Sub[ch])
		}
		if e.prof.weighted {
			fmt.Fprintf(&b, " W=%s", e.weightsStringLocked())
		}
	}

	e.timeline = append(e.timeline, TimelineEntry{At: time.Now(), Line: b.String()})
	if len(e.timeline) > e.depth {
		e.timeline = e.timeline[len(e.timeline)-e.depth:]
	}
}

func (e *Engine) weightsStringLocked() string {
	keys := make([]string, 0, len(e.weights))
	for k := range e.weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s:%.2f", k, e.weights[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Readout returns the current state without stepping.
func (e *Engine) Readout() StepResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readoutLocked()
}

// Main returns the current main value.
func (e *Engine) Main() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.main
}

// Locked reports whether the main value has crossed the ego-lock threshold.
func (e *Engine) Locked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.main >= e.threshold
}

// SetWeight adjusts one channel weight.
func (e *Engine) SetWeight(channel string, w float64) error {
	if w < 0 || w > 1 {
		return fmt.Errorf("%w: %v", ErrWeightRange, w)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.weights[channel]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	e.weights[channel] = w
	return nil
}

// SetThreshold moves the ego-lock threshold.
func (e *Engine) SetThreshold(t int) error {
	if t < 0 || t > 100 {
		return fmt.Errorf("%w: %d", ErrThresholdRange, t)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threshold = t
	return nil
}

// Threshold returns the current ego-lock threshold.
func (e *Engine) Threshold() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threshold
}

// Reset zeroes the main value and all sub-channels and clears the timeline.
// Weights and threshold survive a reset.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.main = 0
	for ch := range e.sub {
		e.sub[ch] = 0
	}
	e.lastWeighted = 0
	e.lastCompassion = 0
	e.timeline = nil

	metrics.SetRegulatorValue(string(e.sin), 0)
	metrics.SetRegulatorLocked(string(e.sin), false)
}

// Timeline returns a copy of the bounded update log, oldest first.
func (e *Engine) Timeline() []TimelineEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TimelineEntry, len(e.timeline))
	copy(out, e.timeline)
	return out
}

// State is the persisted form of an engine.
type State struct {
	Main      int                `json:"main"`
	Subscores map[string]int     `json:"subscores"`
	Weights   map[string]float64 `json:"weights"`
	Threshold int                `json:"threshold"`
}

// Snapshot returns the persistable state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		Main:      e.main,
		Subscores: make(map[string]int, len(e.sub)),
		Weights:   make(map[string]float64, len(e.weights)),
		Threshold: e.threshold,
	}
	for ch, v := range e.sub {
		st.Subscores[ch] = v
	}
	for ch, w := range e.weights {
		st.Weights[ch] = w
	}
	return st
}

// SaveState writes the engine state atomically to path.
func (e *Engine) SaveState(ctx context.Context, path string) error {
	data, err := json.MarshalIndent(e.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("regulator: encode state: %w", err)
	}
	if err := fsutil.WriteAtomic(ctx, path, data); err != nil {
		return fmt.Errorf("regulator: save state: %w", err)
	}
	xlog.WithComponentFromContext(ctx, "regulator").Debug().
		Str(xlog.FieldSin, string(e.sin)).
		Str(xlog.FieldPath, path).
		Msg("state saved")
	return nil
}

// Restore loads engine state from path. Unknown channels in the file are
// ignored; channels absent from the file keep their current value.
func (e *Engine) Restore(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("regulator: read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("regulator: decode state: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.main = min(100, max(0, st.Main))
	for ch, v := range st.Subscores {
		if _, ok := e.sub[ch]; ok {
			e.sub[ch] = min(100, max(0, v))
		}
	}
	for ch, w := range st.Weights {
		if _, ok := e.weights[ch]; ok && w >= 0 && w <= 1 {
			e.weights[ch] = w
		}
	}
	if st.Threshold > 0 && st.Threshold <= 100 {
		e.threshold = st.Threshold
	}

	metrics.SetRegulatorValue(string(e.sin), e.main)
	metrics.SetRegulatorLocked(string(e.sin), e.main >= e.threshold)
	return nil
}
