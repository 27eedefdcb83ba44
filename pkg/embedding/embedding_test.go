package embedding

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestLocalProviderUnitNormAndDeterministic(t *testing.T) {
	p := NewLocalProvider(64)
	ctx := context.Background()

	a, err := p.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)

	assert.Equal(t, 64, len(a))
	assert.InDelta(t, 1.0, norm(a), 1e-5)
	assert.Equal(t, a, b, "the same text always embeds to the same vector")
}

func TestLocalProviderSimilarTextsAreClose(t *testing.T) {
	p := NewLocalProvider(128)
	ctx := context.Background()

	a, _ := p.Embed(ctx, "weather forecast for berlin today")
	b, _ := p.Embed(ctx, "weather forecast for berlin tomorrow")
	c, _ := p.Embed(ctx, "integrate the polynomial x squared")

	dot := func(x, y []float32) float64 {
		var s float64
		for i := range x {
			s += float64(x[i]) * float64(y[i])
		}
		return s
	}
	assert.Greater(t, dot(a, b), dot(a, c),
		"shared vocabulary must yield higher cosine similarity")
}

func TestLocalProviderDefaultDimension(t *testing.T) {
	p := NewLocalProvider(0)
	assert.Equal(t, DefaultDimension, p.Dimension())
}

// countingProvider wraps LocalProvider and counts Embed calls.
type countingProvider struct {
	inner Provider
	calls atomic.Int64
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	return p.inner.Embed(ctx, text)
}

func (p *countingProvider) Dimension() int { return p.inner.Dimension() }

func TestCachingProviderMemoizes(t *testing.T) {
	counting := &countingProvider{inner: NewLocalProvider(32)}
	cached, err := NewCachingProvider(counting, 8)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "repeated prompt")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "repeated prompt")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), counting.calls.Load(), "the second call is served from the LRU")
	assert.Equal(t, 1, cached.Len())

	_, err = cached.Embed(ctx, "different prompt")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counting.calls.Load())
}

func TestNormalizeZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	assert.Equal(t, []float32{0, 0, 0}, Normalize(v), "zero vectors pass through unscaled")
}
