package embedding

import (
	"context"
	"hash/fnv"
	"strings"
)

// LocalProvider is a deterministic bag-of-words hashing embedder. It needs
// no network or model weights, which makes it the provider for tests and
// air-gapped local runs. Texts sharing vocabulary land close together in
// cosine space; it is not a substitute for a learned embedding model.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a local provider of the given dimension.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &LocalProvider{dimension: dimension}
}

// Embed hashes each token into a bucket and normalizes the result.
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, p.dimension)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%uint32(p.dimension)]++
	}
	return Normalize(v), nil
}

// Dimension returns the configured vector dimension.
func (p *LocalProvider) Dimension() int { return p.dimension }
