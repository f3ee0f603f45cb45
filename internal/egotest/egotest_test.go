// SPDX-License-Identifier: MIT

package egotest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullAnswers(score int) map[int]int {
	m := make(map[int]int, 30)
	for i := 1; i <= 30; i++ {
		m[i] = score
	}
	return m
}

func TestQuestions(t *testing.T) {
	qs := Questions()
	require.Len(t, qs, 30)
	assert.Equal(t, 1, qs[0].ID)
	assert.Equal(t, "How often do you bring up your own wins?", qs[0].Text)
	assert.Equal(t, 30, qs[29].ID)
	assert.Equal(t, "How much control do you crave over uncertainty?", qs[29].Text)
}

func TestScore(t *testing.T) {
	total, err := Score(fullAnswers(3))
	require.NoError(t, err)
	assert.Equal(t, 90, total)

	_, err = Score(map[int]int{1: 3})
	assert.ErrorIs(t, err, ErrIncomplete)

	bad := fullAnswers(3)
	bad[7] = 6
	_, err = Score(bad)
	assert.ErrorContains(t, err, "out of range")
}

func TestRating_Bands(t *testing.T) {
	tests := []struct {
		total int
		want  string
	}{
		{30, RatingVeryLow},
		{50, RatingVeryLow},
		{51, RatingLow},
		{80, RatingLow},
		{81, RatingModerate},
		{110, RatingModerate},
		{111, RatingHigh},
		{150, RatingHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Rating(tt.total), "total %d", tt.total)
	}
}

func TestService_IncrementalSession(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ethos_test_result.json")
	svc := NewService(path)

	sess := svc.StartSession("nexus")
	for i := 1; i <= 29; i++ {
		remaining, err := svc.Answer(sess.ID, i, 2)
		require.NoError(t, err)
		assert.Equal(t, 30-i, remaining)
	}

	// Finishing early fails.
	_, err := svc.Finish(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrIncomplete)

	// Re-answering overwrites.
	_, err = svc.Answer(sess.ID, 1, 5)
	require.NoError(t, err)
	remaining, err := svc.Answer(sess.ID, 30, 2)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	result, err := svc.Finish(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "nexus", result.User)
	assert.Equal(t, 29*2+5, result.TotalScore)
	assert.Equal(t, RatingLow, result.Rating)

	// Session is closed after finishing.
	_, err = svc.Answer(sess.ID, 1, 1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_AnswerValidation(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "r.json"))
	sess := svc.StartSession("u")

	_, err := svc.Answer(sess.ID, 0, 3)
	assert.ErrorContains(t, err, "unknown question")
	_, err = svc.Answer(sess.ID, 31, 3)
	assert.ErrorContains(t, err, "unknown question")
	_, err = svc.Answer(sess.ID, 1, 0)
	assert.ErrorContains(t, err, "out of range")
	_, err = svc.Answer("missing", 1, 3)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_PersistsResultJSON(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ethos_test_result.json")
	svc := NewService(path)

	sess := svc.StartSession("nexus")
	for i := 1; i <= 30; i++ {
		_, err := svc.Answer(sess.ID, i, 5)
		require.NoError(t, err)
	}
	result, err := svc.Finish(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 150, result.TotalScore)
	assert.Equal(t, RatingHigh, result.Rating)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, "nexus", onDisk["user"])
	assert.Equal(t, float64(150), onDisk["total_score"])
	assert.NotEmpty(t, onDisk["timestamp"])

	loaded, err := svc.LastResult()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 150, loaded.TotalScore)
}

func TestService_LastResultMissing(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "none.json"))
	result, err := svc.LastResult()
	require.NoError(t, err)
	assert.Nil(t, result)
}
