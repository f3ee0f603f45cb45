// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package notary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSON_SortedKeys(t *testing.T) {
	got, err := CanonicalJSON(map[string]any{
		"zeta":  1,
		"alpha": 2,
		"mid":   map[string]any{"b": true, "a": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":{"a":null,"b":true},"zeta":1}`, got)
}

func TestCanonicalJSON_CompactSeparators(t *testing.T) {
	got, err := CanonicalJSON(map[string]any{
		"list": []any{1, "two", false},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"list":[1,"two",false]}`, got)
}

func TestCanonicalJSON_ASCIIEscapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain ascii", "hello", `"hello"`},
		{"latin accent", "café", `"caf\u00e9"`},
		{"emoji surrogate pair", "🔥", `"\ud83d\udd25"`},
		{"control char", "a\nb", `"a\nb"`},
		{"quote and backslash", `a"\b`, `"a\"\\b"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalJSON(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalJSON_Numbers(t *testing.T) {
	got, err := CanonicalJSON(map[string]any{
		"seed":  float64(1234),
		"scale": 1.5,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"scale":1.5,"seed":1234}`, got)
}

func TestDigest_Deterministic(t *testing.T) {
	a := map[string]any{"x": 1, "y": []any{"a", "b"}}
	b := map[string]any{"y": []any{"a", "b"}, "x": 1}

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)

	assert.Equal(t, da, db)
	assert.Len(t, da, 64)
}

func TestCanonicalJSON_RejectsUnsupported(t *testing.T) {
	_, err := CanonicalJSON(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
