// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus collectors for the ethos runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Notary metrics
	notarizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ethos_notary_records_total",
		Help: "Total notarized records by kind",
	}, []string{"kind"})

	notaryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ethos_notary_errors_total",
		Help: "Total notarization failures by reason",
	}, []string{"reason"})

	ephemeralEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ethos_notary_ephemeral_entries",
		Help: "Current number of session-only ephemeral entries",
	})

	// Scar metrics
	scarsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ethos_scars_total",
		Help: "Open scars by severity",
	}, []string{"severity"})

	scarMassBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ethos_scar_mass_bytes",
		Help: "Total size of scar artifacts in bytes",
	})

	forgivenessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ethos_forgiveness_total",
		Help: "Total scars removed through the forgiveness protocol",
	})

	// Regulator metrics
	regulatorValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ethos_regulator_value",
		Help: "Current main value per regulator axis (0-100)",
	}, []string{"sin"})

	regulatorLocked = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ethos_regulator_locked",
		Help: "Whether the regulator has crossed its ego-lock threshold (1) or not (0)",
	}, []string{"sin"})

	compassionValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ethos_compassion_value",
		Help: "Compassion output of the wrath regulator (0-100)",
	})

	// Sandbox metrics
	simAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ethos_sim_agents",
		Help: "Agents currently on the sandbox grid",
	})

	simInteractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ethos_sim_interactions_total",
		Help: "Sandbox interactions by outcome",
	}, []string{"outcome"}) // outcome=coop|conflict|independent

	// Inference pool metrics
	poolInstances = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ethos_pool_instances",
		Help: "Inference server instances by state",
	}, []string{"state"}) // state=running|stopped

	poolStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ethos_pool_starts_total",
		Help: "Inference server start attempts by outcome",
	}, []string{"outcome"}) // outcome=success|port_busy|already_running|spawn_error

	// Imprinter metrics
	imprintSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ethos_imprint_steps_total",
		Help: "Imprinter steps by governor mode",
	}, []string{"mode"}) // mode=allow|warning|limit|quarantine

	imprintDivergence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ethos_imprint_divergence",
		Help: "Most recent divergence score (0-1)",
	})
)

func IncNotarized(kind string)        { notarizedTotal.WithLabelValues(kind).Inc() }
func IncNotaryError(reason string)    { notaryErrors.WithLabelValues(reason).Inc() }
func SetEphemeralEntries(n int)       { ephemeralEntries.Set(float64(n)) }
func SetScars(severity string, n int) { scarsTotal.WithLabelValues(severity).Set(float64(n)) }
func SetScarMass(bytes int64)         { scarMassBytes.Set(float64(bytes)) }
func IncForgiveness()                 { forgivenessTotal.Inc() }

func SetRegulatorValue(sin string, v int) { regulatorValue.WithLabelValues(sin).Set(float64(v)) }
func SetCompassion(v int)                 { compassionValue.Set(float64(v)) }

func SetRegulatorLocked(sin string, locked bool) {
	v := 0.0
	if locked {
		v = 1.0
	}
	regulatorLocked.WithLabelValues(sin).Set(v)
}

func SetSimAgents(n int)               { simAgents.Set(float64(n)) }
func IncSimInteraction(outcome string) { simInteractions.WithLabelValues(outcome).Inc() }

func SetPoolInstances(state string, n int) { poolInstances.WithLabelValues(state).Set(float64(n)) }
func IncPoolStart(outcome string)          { poolStartsTotal.WithLabelValues(outcome).Inc() }

func IncImprintStep(mode string) { imprintSteps.WithLabelValues(mode).Inc() }
func SetImprintDivergence(d float64) {
	imprintDivergence.Set(d)
}
