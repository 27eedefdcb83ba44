package embedding

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachingProvider memoizes another provider behind an LRU keyed by the
// input text. The same prompt is embedded once regardless of how many
// cache probes and batcher admissions see it.
type CachingProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

// NewCachingProvider wraps inner with an LRU of the given size.
func NewCachingProvider(inner Provider, size int) (*CachingProvider, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachingProvider{inner: inner, cache: cache}, nil
}

// Embed returns the memoized vector, computing it on first sight.
func (p *CachingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := p.cache.Get(text); ok {
		return v, nil
	}
	v, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Add(text, v)
	return v, nil
}

// Dimension returns the inner provider's dimension.
func (p *CachingProvider) Dimension() int { return p.inner.Dimension() }

// Len reports how many embeddings are memoized.
func (p *CachingProvider) Len() int { return p.cache.Len() }
