// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package notary

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x0vs/ethos/internal/cache"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(dbPath, cache.NewMemoryCache(0), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func samplePayload() Payload {
	return Payload{
		CreatorID: "🧪🐜stack123",
		Title:     "My VR Lab Build v1",
		Kind:      KindWorld,
		Data: map[string]any{
			"version":    float64(1),
			"assets":     []any{},
			"parameters": map[string]any{"seed": float64(1234), "scale": float64(1)},
			"notes":      "prototype",
		},
		Tags: []string{"xovs", "vr", "prototype"},
	}
}

func TestNotarize_StoresRecord(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	rec, err := l.Notarize(ctx, samplePayload())
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Len(t, rec.SHA256, 64)
	assert.Equal(t, KindWorld, rec.Kind)
	assert.NotEmpty(t, rec.ContentJSON)

	recent, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, rec.ID, recent[0].ID)
	assert.Equal(t, rec.SHA256, recent[0].SHA256)
	assert.Equal(t, []string{"xovs", "vr", "prototype"}, recent[0].Tags)
}

func TestPreview_MatchesNotarizeDigest(t *testing.T) {
	l := openTestLedger(t)

	p := samplePayload()
	preview, err := l.Preview(p)
	require.NoError(t, err)

	rec, err := l.Notarize(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, preview, rec.SHA256)
}

func TestFindByDigest(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	rec, err := l.Notarize(ctx, samplePayload())
	require.NoError(t, err)

	found, err := l.FindByDigest(ctx, rec.SHA256)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)

	_, err = l.FindByDigest(ctx, "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotarize_Validation(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*Payload)
		wantErr error
	}{
		{"missing creator", func(p *Payload) { p.CreatorID = " " }, ErrCreatorRequired},
		{"missing title", func(p *Payload) { p.Title = "" }, ErrTitleRequired},
		{"bad kind", func(p *Payload) { p.Kind = "spell" }, ErrInvalidKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePayload()
			tt.mutate(&p)
			_, err := l.Notarize(ctx, p)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEphemeral_NeverHitsLedger(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	_, err := l.AddEphemeral(samplePayload())
	require.NoError(t, err)
	assert.Equal(t, 1, l.EphemeralCount())

	count, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "ephemeral entries must not be persisted")
}

func TestRecent_NewestFirst(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		p := samplePayload()
		p.Title = title
		_, err := l.Notarize(ctx, p)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	recent, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].Title)
	assert.Equal(t, "second", recent[1].Title)
}
