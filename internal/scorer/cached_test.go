package scorer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingHandle is a test double that counts Score invocations.
type countingHandle struct {
	calls int
	score float64
	err   error
}

func (h *countingHandle) Score(_ context.Context, _, _ string) (float64, error) {
	h.calls++
	if h.err != nil {
		return 0, h.err
	}
	return h.score, nil
}

func (h *countingHandle) ModelName() string { return "test-model" }
func (h *countingHandle) Close() error      { return nil }

func TestCachedHandle_RepeatedPairHitsCache(t *testing.T) {
	// Given: a cached handle over a counting inner handle
	inner := &countingHandle{score: 0.42}
	cached := NewCachedHandle(inner, 10)
	ctx := context.Background()

	// When: scoring the same pair twice
	first, err := cached.Score(ctx, "query", "doc text")
	require.NoError(t, err)
	second, err := cached.Score(ctx, "query", "doc text")
	require.NoError(t, err)

	// Then: one inference call, identical scores
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first, second)
}

func TestCachedHandle_DistinctPairsMiss(t *testing.T) {
	inner := &countingHandle{score: 0.1}
	cached := NewCachedHandle(inner, 10)
	ctx := context.Background()

	_, err := cached.Score(ctx, "query", "doc a")
	require.NoError(t, err)
	_, err = cached.Score(ctx, "query", "doc b")
	require.NoError(t, err)
	_, err = cached.Score(ctx, "other query", "doc a")
	require.NoError(t, err)

	assert.Equal(t, 3, inner.calls)
}

func TestCachedHandle_ErrorsNotCached(t *testing.T) {
	// Given: an inner handle that fails once then recovers
	inner := &countingHandle{err: errors.New("transient")}
	cached := NewCachedHandle(inner, 10)
	ctx := context.Background()

	_, err := cached.Score(ctx, "query", "doc")
	require.Error(t, err)

	inner.err = nil
	inner.score = 0.9

	// When: retrying the same pair
	score, err := cached.Score(ctx, "query", "doc")

	// Then: the pair was re-scored, not served from cache
	require.NoError(t, err)
	assert.InDelta(t, 0.9, score, 0.001)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedHandle_Passthrough(t *testing.T) {
	inner := &countingHandle{}
	cached := NewCachedHandle(inner, 0) // 0 falls back to default size

	assert.Equal(t, "test-model", cached.ModelName())
	assert.Same(t, inner, cached.Inner())
	assert.NoError(t, cached.Close())
}
