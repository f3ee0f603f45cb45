// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/x0vs/ethos/internal/adr"
	"github.com/x0vs/ethos/internal/agents"
	"github.com/x0vs/ethos/internal/api"
	"github.com/x0vs/ethos/internal/cache"
	"github.com/x0vs/ethos/internal/config"
	"github.com/x0vs/ethos/internal/egotest"
	"github.com/x0vs/ethos/internal/health"
	"github.com/x0vs/ethos/internal/imprint"
	"github.com/x0vs/ethos/internal/inference"
	xlog "github.com/x0vs/ethos/internal/log"
	"github.com/x0vs/ethos/internal/meaning"
	"github.com/x0vs/ethos/internal/notary"
	"github.com/x0vs/ethos/internal/persistence/sqlite"
	"github.com/x0vs/ethos/internal/regulator"
	"github.com/x0vs/ethos/internal/scar"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until config is loaded.
	xlog.Configure(xlog.Config{
		Level:   "info",
		Service: "ethosd",
		Version: version,
	})
	logger := xlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Auto-load ${ETHOS_DATA}/config.yaml when --config is not given.
	effectivePath := strings.TrimSpace(*configPath)
	if effectivePath == "" {
		dataDir := strings.TrimSpace(config.ParseString("ETHOS_DATA", "/var/lib/ethos"))
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectivePath = autoPath
		}
	}

	cfg, err := config.NewLoader(effectivePath).Load()
	if err != nil {
		logger.Fatal().Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectivePath).
			Msg("failed to load configuration")
	}

	xlog.Configure(xlog.Config{
		Level:   cfg.LogLevel,
		Service: "ethosd",
		Version: version,
	})

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("daemon exited with error")
	}
	logger.Info().Str("event", "daemon.stopped").Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Refuse to start over corrupt databases.
	for _, dbPath := range []string{
		cfg.NotaryDBPath(),
		cfg.ScarLedgerPath(),
		cfg.ForgivenessDBPath(),
		cfg.MeaningDBPath(),
		cfg.AgentsDBPath(),
	} {
		if _, err := os.Stat(dbPath); err != nil {
			continue
		}
		issues, err := sqlite.VerifyIntegrity(dbPath, "quick")
		if err != nil {
			return fmt.Errorf("verify %s: %w", dbPath, err)
		}
		if issues != nil {
			return fmt.Errorf("database %s failed integrity check: %s", dbPath, strings.Join(issues, "; "))
		}
	}

	// Ephemeral cache: Redis when configured, in-memory otherwise.
	var ephemeral cache.Cache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, xlog.WithComponent("cache"))
		if err != nil {
			return fmt.Errorf("redis cache: %w", err)
		}
		ephemeral = rc
	} else {
		ephemeral = cache.NewMemoryCache(time.Minute)
	}
	defer func() { _ = ephemeral.Close() }()

	ledger, err := notary.Open(cfg.NotaryDBPath(), ephemeral, cfg.EphemeralTTL)
	if err != nil {
		return fmt.Errorf("notary ledger: %w", err)
	}
	defer ledger.Close()

	scars, err := scar.Open(cfg.ScarLedgerPath(), cfg.ForgivenessDBPath(), cfg.ScarDir())
	if err != nil {
		return fmt.Errorf("scar manager: %w", err)
	}
	defer scars.Close()

	inbox, err := scar.NewInboxWatcher(scars, cfg.InboxDir())
	if err != nil {
		return fmt.Errorf("scar inbox: %w", err)
	}
	if err := inbox.Start(ctx); err != nil {
		return fmt.Errorf("scar inbox watch: %w", err)
	}

	regs := regulator.NewSet(cfg.TimelineDepth, 0)
	radar := regulator.NewRadar(regs)
	if err := os.MkdirAll(cfg.StateDir(), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	for _, e := range regs.All() {
		statePath := filepath.Join(cfg.StateDir(), string(e.Sin())+".json")
		if _, err := os.Stat(statePath); err == nil {
			if err := e.Restore(statePath); err != nil {
				logger.Warn().Err(err).Str("sin", string(e.Sin())).Msg("could not restore regulator state")
			}
		}
	}

	me, err := meaning.OpenEngine(cfg.MeaningDBPath(), cfg.MeaningBaseLR, 0)
	if err != nil {
		return fmt.Errorf("meaning engine: %w", err)
	}
	defer me.Close()

	adrEngine, err := adr.NewEngine(filepath.Join(cfg.DataDir, "adr_log.jsonl"))
	if err != nil {
		return fmt.Errorf("adr engine: %w", err)
	}

	ego := egotest.NewService(filepath.Join(cfg.DataDir, "ethos_test_result.json"))

	runs, err := imprint.OpenRunStore(filepath.Join(cfg.ImprintDir(), "runs"))
	if err != nil {
		return fmt.Errorf("imprint run store: %w", err)
	}
	defer runs.Close()

	sim := agents.NewSimulation(cfg.SimGridSize, cfg.SimTick, 0)
	defer sim.Stop()
	if _, err := os.Stat(cfg.AgentsDBPath()); err == nil {
		if err := sim.LoadDB(ctx, cfg.AgentsDBPath()); err != nil {
			logger.Warn().Err(err).Msg("could not restore agent population")
		}
	}

	pool := inference.NewPool(cfg.PoolStopGrace)
	pool.OnLifecycle(
		func(id string) { sim.AttachServer(id) },
		func(id string) { sim.DetachServer(id) },
	)
	defer pool.StopAll()

	healthMgr := health.NewManager(version)
	healthMgr.RegisterChecker(health.CheckerFunc{
		CheckName: "notary",
		Fn: func(ctx context.Context) health.CheckResult {
			if _, err := ledger.Count(ctx); err != nil {
				return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error()}
			}
			return health.CheckResult{Status: health.StatusHealthy}
		},
	})
	healthMgr.RegisterChecker(health.CheckerFunc{
		CheckName: "scars",
		Fn: func(ctx context.Context) health.CheckResult {
			if _, err := scars.Count(ctx); err != nil {
				return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error()}
			}
			return health.CheckResult{Status: health.StatusHealthy}
		},
	})

	// /metrics goes on a dedicated listener when one is configured,
	// otherwise it rides on the API router.
	separateMetrics := cfg.MetricsEnabled && cfg.MetricsListen != ""

	srv := api.NewServer(api.Deps{
		Notary:        ledger,
		Scars:         scars,
		Regs:          regs,
		Radar:         radar,
		Sim:           sim,
		Pool:          pool,
		ADR:           adrEngine,
		Ego:           ego,
		Meaning:       me,
		Runs:          runs,
		RunDir:        cfg.ImprintDir(),
		Health:        healthMgr,
		ExposeMetrics: cfg.MetricsEnabled && !separateMetrics,

		RateLimitDisabled: !cfg.RateLimitEnabled,
		RateLimitPerMin:   cfg.RateLimitGlobal,

		BaseCtx: ctx,
	})

	apiServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("event", "api.listen").Str("addr", cfg.ListenAddr).Msg("api server listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var metricsServer *http.Server
	if separateMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("event", "metrics.listen").Str("addr", cfg.MetricsListen).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Persist what can be persisted before the listeners go away.
		if err := sim.SaveDB(shutdownCtx, cfg.AgentsDBPath()); err != nil {
			logger.Warn().Err(err).Msg("could not persist agent population")
		}
		for _, e := range regs.All() {
			statePath := filepath.Join(cfg.StateDir(), string(e.Sin())+".json")
			if err := e.SaveState(shutdownCtx, statePath); err != nil {
				logger.Warn().Err(err).Str("sin", string(e.Sin())).Msg("could not persist regulator state")
			}
		}

		if metricsServer != nil {
			_ = metricsServer.Shutdown(shutdownCtx)
		}
		return apiServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
