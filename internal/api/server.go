// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api assembles the HTTP surface of the daemon: one chi router
// over the notary, scar ledger, regulators, sandbox, inference pool and
// the remaining engines.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/x0vs/ethos/internal/adr"
	"github.com/x0vs/ethos/internal/agents"
	"github.com/x0vs/ethos/internal/api/middleware"
	"github.com/x0vs/ethos/internal/egotest"
	"github.com/x0vs/ethos/internal/health"
	"github.com/x0vs/ethos/internal/imprint"
	"github.com/x0vs/ethos/internal/inference"
	"github.com/x0vs/ethos/internal/meaning"
	"github.com/x0vs/ethos/internal/notary"
	"github.com/x0vs/ethos/internal/regulator"
	"github.com/x0vs/ethos/internal/scar"
)

// Deps carries every engine the router serves. Nil members disable the
// corresponding routes.
type Deps struct {
	Notary  *notary.Ledger
	Scars   *scar.Manager
	Regs    *regulator.Set
	Radar   *regulator.Radar
	Sim     *agents.Simulation
	Pool    *inference.Pool
	ADR     *adr.Engine
	Ego     *egotest.Service
	Meaning *meaning.Engine
	Runs    *imprint.RunStore
	RunDir  string
	Health  *health.Manager

	// ExposeMetrics mounts /metrics on the main router; production
	// deployments usually serve it on a separate listener instead.
	ExposeMetrics bool

	// RateLimitDisabled switches off the ingress limiter;
	// RateLimitPerMin overrides the default per-IP budget when > 0.
	RateLimitDisabled bool
	RateLimitPerMin   int

	// BaseCtx bounds work that outlives a single request, like the
	// sandbox loop. Defaults to context.Background.
	BaseCtx context.Context
}

// Server serves the daemon API.
type Server struct {
	deps Deps
}

// NewServer builds a server over the given engines.
func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

func (s *Server) baseCtx() context.Context {
	if s.deps.BaseCtx != nil {
		return s.deps.BaseCtx
	}
	return context.Background()
}

// Routes builds the router with the canonical middleware stack.
func (s *Server) Routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:   true,
		EnableLogging:   true,
		EnableRateLimit: !s.deps.RateLimitDisabled,
		RateLimitPerMin: s.deps.RateLimitPerMin,
	})
	s.mount(r)
	return r
}

// RoutesForTest builds the router without rate limiting or logging
// noise, for handler tests.
func (s *Server) RoutesForTest() http.Handler {
	r := chi.NewRouter()
	s.mount(r)
	return r
}

func (s *Server) mount(r chi.Router) {
	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.HealthHandler())
		r.Get("/readyz", s.deps.Health.ReadyHandler())
	}
	if s.deps.ExposeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if s.deps.Notary != nil {
			r.Route("/notary", func(r chi.Router) {
				r.Post("/records", s.handleNotarize)
				r.Get("/records", s.handleNotaryRecords)
				r.Get("/records/{digest}", s.handleNotaryRecord)
				r.Post("/preview", s.handleNotaryPreview)
				r.Post("/ephemeral", s.handleNotaryEphemeral)
			})
		}
		if s.deps.Scars != nil {
			r.Route("/scars", func(r chi.Router) {
				r.Post("/", s.handleScarCreate)
				r.Get("/", s.handleScarList)
				r.Get("/export.csv", s.handleScarExport)
				r.Post("/{id}/forgive", s.handleScarForgive)
			})
		}
		if s.deps.Regs != nil {
			r.Route("/regulators", func(r chi.Router) {
				r.Get("/", s.handleRegulatorList)
				r.Get("/{sin}", s.handleRegulatorGet)
				r.Post("/{sin}/step", s.handleRegulatorStep)
				r.Post("/{sin}/weights", s.handleRegulatorWeights)
				r.Post("/{sin}/reset", s.handleRegulatorReset)
			})
		}
		if s.deps.Radar != nil {
			r.Get("/radar", s.handleRadar)
		}
		if s.deps.Sim != nil {
			r.Post("/agents", s.handleAgentAdd)
			r.Get("/agents", s.handleAgentList)
			r.Route("/sim", func(r chi.Router) {
				r.Post("/start", s.handleSimStart)
				r.Post("/stop", s.handleSimStop)
				r.Get("/stats", s.handleSimStats)
			})
		}
		if s.deps.Pool != nil {
			r.Route("/servers", func(r chi.Router) {
				r.Post("/", s.handleServerAdd)
				r.Get("/", s.handleServerList)
				r.Post("/{id}/start", s.handleServerStart)
				r.Post("/{id}/stop", s.handleServerStop)
				r.Post("/{id}/kill", s.handleServerKill)
				r.Get("/{id}/health", s.handleServerHealth)
			})
		}
		if s.deps.ADR != nil {
			r.Post("/adr", s.handleADR)
		}
		if s.deps.Ego != nil {
			r.Route("/egotest", func(r chi.Router) {
				r.Get("/questions", s.handleEgoQuestions)
				r.Post("/sessions", s.handleEgoStart)
				r.Post("/sessions/{id}/answers", s.handleEgoAnswer)
				r.Post("/sessions/{id}/finish", s.handleEgoFinish)
				r.Get("/result", s.handleEgoResult)
			})
		}
		if s.deps.Meaning != nil {
			r.Route("/meaning", func(r chi.Router) {
				r.Post("/decide", s.handleMeaningDecide)
				r.Post("/outcome", s.handleMeaningOutcome)
				r.Get("/weights/{concept}", s.handleMeaningWeight)
			})
		}
		if s.deps.Runs != nil {
			r.Route("/imprint", func(r chi.Router) {
				r.Post("/run", s.handleImprintRun)
				r.Get("/runs", s.handleImprintRuns)
			})
		}
	})
}
