package caching

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

func newTestRequest(t *testing.T, prompt string) *models.Request {
	t.Helper()
	req, err := models.NewRequest(prompt, nil, models.DefaultParameters())
	require.NoError(t, err)
	return req
}

func newTestResponse(req *models.Request, text string) *models.Response {
	return &models.Response{
		RequestID:    req.ID,
		Text:         text,
		FinishReason: "stop",
		ModelUsed:    "gpt-3.5-turbo",
		Usage: models.Usage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
			CostUSD:          0.001,
		},
	}
}

func TestExactCacheRoundTrip(t *testing.T) {
	cache := NewExactCache(10, observability.NewNoopLogger())
	ctx := context.Background()
	req := newTestRequest(t, "What is 2+2?")

	_, ok := cache.Get(ctx, req)
	assert.False(t, ok, "fresh cache must miss")

	require.NoError(t, cache.Set(ctx, req, newTestResponse(req, "The answer is 4.")))

	resp, ok := cache.Get(ctx, req)
	require.True(t, ok)
	assert.Equal(t, "The answer is 4.", resp.Text, "hit must return the stored text byte-for-byte")
	assert.True(t, resp.CacheInfo.Hit)
	assert.Equal(t, models.CacheSourceExact, resp.CacheInfo.Source)
	assert.Equal(t, 1.0, resp.CacheInfo.SimilarityScore)
	assert.Equal(t, 20, resp.CacheInfo.TokensSaved, "tokens saved equals cached completion tokens")
	assert.Equal(t, DefaultNominalBackendLatencyMS, resp.CacheInfo.LatencySavedMS)
	assert.Equal(t, 0.0, resp.Usage.CostUSD, "cache hits cost nothing")
}

func TestExactCacheCapacity(t *testing.T) {
	const maxEntries = 5
	cache := NewExactCache(maxEntries, observability.NewNoopLogger())
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		req := newTestRequest(t, fmt.Sprintf("Question %d", i))
		require.NoError(t, cache.Set(ctx, req, newTestResponse(req, "answer")))
	}
	assert.Equal(t, maxEntries, cache.Stats().Size, "cache must hold exactly max_entries after overflow")
}

func TestExactCacheLRUEviction(t *testing.T) {
	cache := NewExactCache(2, observability.NewNoopLogger())
	ctx := context.Background()

	first := newTestRequest(t, "first prompt")
	second := newTestRequest(t, "second prompt")
	require.NoError(t, cache.Set(ctx, first, newTestResponse(first, "a")))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, cache.Set(ctx, second, newTestResponse(second, "b")))

	// Touch first so second becomes least recently used.
	time.Sleep(2 * time.Millisecond)
	_, ok := cache.Get(ctx, first)
	require.True(t, ok)

	third := newTestRequest(t, "third prompt")
	require.NoError(t, cache.Set(ctx, third, newTestResponse(third, "c")))

	_, ok = cache.Get(ctx, first)
	assert.True(t, ok, "recently used entry must survive")
	_, ok = cache.Get(ctx, second)
	assert.False(t, ok, "least recently used entry must be evicted")
}

func TestExactCacheTTLExpiry(t *testing.T) {
	cache := NewExactCache(10, observability.NewNoopLogger())
	ctx := context.Background()

	req := newTestRequest(t, "expiring prompt")
	req.CacheTTLSeconds = 1
	require.NoError(t, cache.Set(ctx, req, newTestResponse(req, "stale soon")))

	_, ok := cache.Get(ctx, req)
	require.True(t, ok)

	// Backdate the entry past its TTL.
	cache.mu.Lock()
	for _, e := range cache.entries {
		e.CreatedAt = time.Now().UTC().Add(-2 * time.Second)
	}
	cache.mu.Unlock()

	_, ok = cache.Get(ctx, req)
	assert.False(t, ok, "expired entries miss")
}

func TestExactCacheInvalidate(t *testing.T) {
	cache := NewExactCache(10, observability.NewNoopLogger())
	ctx := context.Background()

	apples := newTestRequest(t, "all about apples")
	oranges := newTestRequest(t, "all about oranges")
	require.NoError(t, cache.Set(ctx, apples, newTestResponse(apples, "apples are red")))
	require.NoError(t, cache.Set(ctx, oranges, newTestResponse(oranges, "oranges are orange")))

	assert.Equal(t, 1, cache.Invalidate("apples"), "substring match against prompt or response")
	_, ok := cache.Get(ctx, apples)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, oranges)
	assert.True(t, ok)

	statsBefore := cache.Stats()
	assert.Equal(t, 1, cache.Invalidate(""), "empty pattern clears everything")
	_, ok = cache.Get(ctx, oranges)
	assert.False(t, ok)

	statsAfter := cache.Stats()
	assert.Equal(t, statsBefore.Hits, statsAfter.Hits, "invalidation must not change the hit counter")
	assert.Equal(t, statsBefore.Misses+1, statsAfter.Misses)
}

func TestExactCacheHitRate(t *testing.T) {
	cache := NewExactCache(10, observability.NewNoopLogger())
	ctx := context.Background()
	req := newTestRequest(t, "rated prompt")

	cache.Get(ctx, req)
	require.NoError(t, cache.Set(ctx, req, newTestResponse(req, "x")))
	prev := cache.Stats().HitRate

	for i := 0; i < 5; i++ {
		_, ok := cache.Get(ctx, req)
		require.True(t, ok)
		rate := cache.Stats().HitRate
		assert.GreaterOrEqual(t, rate, prev, "hit rate must not decrease as hits accumulate")
		assert.LessOrEqual(t, rate, 1.0)
		prev = rate
	}
}
