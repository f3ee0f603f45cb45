// SPDX-License-Identifier: MIT

package middleware

import (
	"time"

	"github.com/go-chi/chi/v5"

	xlog "github.com/x0vs/ethos/internal/log"
)

// StackConfig configures the canonical HTTP ingress middleware stack.
type StackConfig struct {
	EnableMetrics   bool
	EnableLogging   bool
	EnableRateLimit bool

	// RateLimitPerMin caps requests per minute per IP; 0 uses the
	// default API limit.
	RateLimitPerMin int
}

// NewRouter constructs a chi router with the canonical middleware stack
// applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	// 1. Recoverer (outermost safety net)
	r.Use(Recoverer)
	// 2. RequestID (correlation early)
	r.Use(RequestID)
	// 3. Metrics (track all requests)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	// 4. Logging (wraps handlers, captures full latency)
	if cfg.EnableLogging {
		r.Use(xlog.Middleware())
	}
	// 5. Rate limit (global protection)
	if cfg.EnableRateLimit {
		if cfg.RateLimitPerMin > 0 {
			r.Use(RateLimit(RateLimitConfig{
				RequestLimit: cfg.RateLimitPerMin,
				WindowSize:   time.Minute,
			}))
		} else {
			r.Use(APIRateLimit())
		}
	}
}
