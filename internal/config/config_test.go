// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ethos", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8077", cfg.ListenAddr)
	assert.True(t, cfg.RateLimitEnabled)
	assert.Equal(t, 600, cfg.RateLimitGlobal)
	assert.True(t, cfg.MetricsEnabled)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 12, cfg.SimGridSize)
	assert.Equal(t, 800*time.Millisecond, cfg.SimTick)
	assert.Equal(t, 5*time.Second, cfg.PoolStopGrace)
	assert.Equal(t, 12*time.Hour, cfg.EphemeralTTL)
	assert.Equal(t, 0.15, cfg.MeaningBaseLR)
}

func TestLoad_FileLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
dataDir: /tmp/ethos-test
logLevel: debug
api:
  listenAddr: ":9000"
  rateLimit:
    enabled: false
    global: 42
sim:
  gridSize: 24
  tickInterval: 250ms
redis:
  addr: localhost:6379
  db: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/ethos-test", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.False(t, cfg.RateLimitEnabled)
	assert.Equal(t, 42, cfg.RateLimitGlobal)
	assert.Equal(t, 24, cfg.SimGridSize)
	assert.Equal(t, 250*time.Millisecond, cfg.SimTick)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataDir: /tmp/from-file\n"), 0o644))

	t.Setenv("ETHOS_DATA", "/tmp/from-env")
	t.Setenv("ETHOS_SIM_GRID", "16")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env", cfg.DataDir)
	assert.Equal(t, 16, cfg.SimGridSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.Error(t, err)
}

func TestLoad_InvalidGrid(t *testing.T) {
	t.Setenv("ETHOS_SIM_GRID", "1")
	_, err := NewLoader("").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grid size")
}

func TestParseHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("ETHOS_TEST_INT", "not-a-number")
	t.Setenv("ETHOS_TEST_BOOL", "maybe")
	t.Setenv("ETHOS_TEST_DUR", "soon")
	t.Setenv("ETHOS_TEST_FLOAT", "a lot")

	assert.Equal(t, 7, ParseInt("ETHOS_TEST_INT", 7))
	assert.True(t, ParseBool("ETHOS_TEST_BOOL", true))
	assert.Equal(t, time.Second, ParseDuration("ETHOS_TEST_DUR", time.Second))
	assert.Equal(t, 0.5, ParseFloat("ETHOS_TEST_FLOAT", 0.5))
}

func TestPathHelpers(t *testing.T) {
	cfg := AppConfig{DataDir: "/data"}
	assert.Equal(t, "/data/ledger.db", cfg.NotaryDBPath())
	assert.Equal(t, "/data/scars", cfg.ScarDir())
	assert.Equal(t, "/data/scar_ledger.db", cfg.ScarLedgerPath())
	assert.Equal(t, "/data/forgiveness_log.db", cfg.ForgivenessDBPath())
	assert.Equal(t, "/data/meaning_substrate.db", cfg.MeaningDBPath())
	assert.Equal(t, "/data/imprint", cfg.ImprintDir())
	assert.Equal(t, "/data/agents.db", cfg.AgentsDBPath())
	assert.Equal(t, "/data/state", cfg.StateDir())
	assert.Equal(t, "/data/inbox", cfg.InboxDir())
}
