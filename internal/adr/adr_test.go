// SPDX-License-Identifier: MIT

package adr

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(filepath.Join(t.TempDir(), "adr", "adr_log.jsonl"))
	require.NoError(t, err)
	return e
}

func TestResolve_Bands(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		ego  int
		want string
	}{
		{30, pathEmpathic},
		{25, pathEmpathic},
		{24, pathBalanced},
		{15, pathBalanced},
		{14, pathCaution},
		{0, pathCaution},
	}
	for _, tt := range tests {
		entry, err := e.Resolve("q", "f", tt.ego)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(entry.Result, tt.want), "ego %d: %s", tt.ego, entry.Result)
	}
}

func TestResolve_FusionLine(t *testing.T) {
	e := newTestEngine(t)

	entry, err := e.Resolve("reroute power", "relay 4 is offline", 28)
	require.NoError(t, err)
	assert.Contains(t, entry.Result, "To solve: 'reroute power'")
	assert.Contains(t, entry.Result, "considering: 'relay 4 is offline'")
	assert.Contains(t, entry.Result, "ego baseline: 28/30")
	assert.Equal(t, "reroute power", entry.HumanQuery)
	assert.Equal(t, 28, entry.EgoScore)
	assert.NotEmpty(t, entry.Timestamp)
}

func TestEntries_AppendOnly(t *testing.T) {
	e := newTestEngine(t)

	got, err := e.Entries()
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = e.Resolve("a", "x", 30)
	require.NoError(t, err)
	_, err = e.Resolve("b", "y", 10)
	require.NoError(t, err)

	got, err = e.Entries()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].HumanQuery)
	assert.Equal(t, "b", got[1].HumanQuery)
}
