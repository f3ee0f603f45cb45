// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for ethosd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig represents the YAML configuration structure.
// All fields are optional; environment variables take precedence.
type FileConfig struct {
	DataDir  string `yaml:"dataDir,omitempty"`
	LogLevel string `yaml:"logLevel,omitempty"`

	API     APIConfig     `yaml:"api,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	Redis   RedisConfig   `yaml:"redis,omitempty"`
	Sim     SimConfig     `yaml:"sim,omitempty"`
	Pool    PoolConfig    `yaml:"pool,omitempty"`
}

// APIConfig holds API server configuration.
type APIConfig struct {
	ListenAddr string          `yaml:"listenAddr,omitempty"`
	RateLimit  RateLimitConfig `yaml:"rateLimit,omitempty"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"` // Pointer to distinguish from zero value
	Global  *int  `yaml:"global,omitempty"`  // Requests per minute
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled    *bool  `yaml:"enabled,omitempty"`
	ListenAddr string `yaml:"listenAddr,omitempty"`
}

// RedisConfig holds the optional Redis cache settings for ephemeral
// notary entries. An empty Addr disables Redis and falls back to the
// in-memory cache.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// SimConfig holds agent sandbox settings.
type SimConfig struct {
	GridSize     *int   `yaml:"gridSize,omitempty"`
	TickInterval string `yaml:"tickInterval,omitempty"` // e.g. "800ms"
}

// PoolConfig holds inference pool settings.
type PoolConfig struct {
	StopGrace string `yaml:"stopGrace,omitempty"` // e.g. "5s"
}

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	DataDir  string
	LogLevel string

	ListenAddr       string
	RateLimitEnabled bool
	RateLimitGlobal  int // requests per minute

	MetricsEnabled bool
	MetricsListen  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SimGridSize   int
	SimTick       time.Duration
	PoolStopGrace time.Duration
	EphemeralTTL  time.Duration
	TimelineDepth int // entries kept per regulator timeline
	MeaningBaseLR float64
}

// Loader resolves configuration with precedence: ENV > File > Defaults.
type Loader struct {
	path string
}

// NewLoader creates a Loader for the optional YAML file at path.
// An empty path skips the file layer.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load resolves the effective configuration.
func (l *Loader) Load() (AppConfig, error) {
	var fc FileConfig
	if l.path != "" {
		raw, err := os.ReadFile(l.path)
		if err != nil {
			return AppConfig{}, fmt.Errorf("config: read %s: %w", l.path, err)
		}
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return AppConfig{}, fmt.Errorf("config: parse %s: %w", l.path, err)
		}
	}

	cfg := AppConfig{
		DataDir:  ParseString("ETHOS_DATA", firstNonEmpty(fc.DataDir, "/var/lib/ethos")),
		LogLevel: ParseString("ETHOS_LOG_LEVEL", firstNonEmpty(fc.LogLevel, "info")),

		ListenAddr:       ParseString("ETHOS_LISTEN", firstNonEmpty(fc.API.ListenAddr, ":8077")),
		RateLimitEnabled: ParseBool("ETHOS_RATE_LIMIT", boolOr(fc.API.RateLimit.Enabled, true)),
		RateLimitGlobal:  ParseInt("ETHOS_RATE_LIMIT_GLOBAL", intOr(fc.API.RateLimit.Global, 600)),

		MetricsEnabled: ParseBool("ETHOS_METRICS", boolOr(fc.Metrics.Enabled, true)),
		MetricsListen:  ParseString("ETHOS_METRICS_LISTEN", firstNonEmpty(fc.Metrics.ListenAddr, "")),

		RedisAddr:     ParseString("ETHOS_REDIS_ADDR", fc.Redis.Addr),
		RedisPassword: ParseString("ETHOS_REDIS_PASSWORD", fc.Redis.Password),
		RedisDB:       ParseInt("ETHOS_REDIS_DB", fc.Redis.DB),

		SimGridSize:   ParseInt("ETHOS_SIM_GRID", intOr(fc.Sim.GridSize, 12)),
		SimTick:       ParseDuration("ETHOS_SIM_TICK", durationOr(fc.Sim.TickInterval, 800*time.Millisecond)),
		PoolStopGrace: ParseDuration("ETHOS_POOL_STOP_GRACE", durationOr(fc.Pool.StopGrace, 5*time.Second)),
		EphemeralTTL:  ParseDuration("ETHOS_EPHEMERAL_TTL", 12*time.Hour),
		TimelineDepth: ParseInt("ETHOS_TIMELINE_DEPTH", 200),
		MeaningBaseLR: ParseFloat("ETHOS_MEANING_LR", 0.15),
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (cfg AppConfig) Validate() error {
	if cfg.DataDir == "" {
		return fmt.Errorf("config: data directory must not be empty")
	}
	if cfg.SimGridSize < 2 || cfg.SimGridSize > 256 {
		return fmt.Errorf("config: sim grid size %d out of range [2,256]", cfg.SimGridSize)
	}
	if cfg.RateLimitGlobal <= 0 {
		return fmt.Errorf("config: rate limit must be positive, got %d", cfg.RateLimitGlobal)
	}
	if cfg.MeaningBaseLR <= 0 || cfg.MeaningBaseLR > 1 {
		return fmt.Errorf("config: meaning learning rate %g out of range (0,1]", cfg.MeaningBaseLR)
	}
	return nil
}

// NotaryDBPath returns the notary ledger database location.
func (cfg AppConfig) NotaryDBPath() string {
	return filepath.Join(cfg.DataDir, "ledger.db")
}

// ScarDir returns the scar artifact directory.
func (cfg AppConfig) ScarDir() string {
	return filepath.Join(cfg.DataDir, "scars")
}

// ScarLedgerPath returns the scar ledger database location.
func (cfg AppConfig) ScarLedgerPath() string {
	return filepath.Join(cfg.DataDir, "scar_ledger.db")
}

// ForgivenessDBPath returns the forgiveness log database location.
func (cfg AppConfig) ForgivenessDBPath() string {
	return filepath.Join(cfg.DataDir, "forgiveness_log.db")
}

// MeaningDBPath returns the meaning substrate database location.
func (cfg AppConfig) MeaningDBPath() string {
	return filepath.Join(cfg.DataDir, "meaning_substrate.db")
}

// ImprintDir returns the directory for imprint run ledgers.
func (cfg AppConfig) ImprintDir() string {
	return filepath.Join(cfg.DataDir, "imprint")
}

// AgentsDBPath returns the agent sandbox database location.
func (cfg AppConfig) AgentsDBPath() string {
	return filepath.Join(cfg.DataDir, "agents.db")
}

// StateDir returns the directory for regulator state snapshots.
func (cfg AppConfig) StateDir() string {
	return filepath.Join(cfg.DataDir, "state")
}

// InboxDir returns the watched directory for scar packet imports.
func (cfg AppConfig) InboxDir() string {
	return filepath.Join(cfg.DataDir, "inbox")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func durationOr(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return def
}
