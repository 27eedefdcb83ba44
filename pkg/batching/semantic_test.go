package batching

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

// stubEmbedder returns canned vectors keyed by text.
type stubEmbedder struct {
	vectors map[string][]float32
	dim     int
}

func (p *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := p.vectors[text]; ok {
		return v, nil
	}
	v := make([]float32, p.dim)
	v[0] = 1
	return v, nil
}

func (p *stubEmbedder) Dimension() int { return p.dim }

func TestDBSCANFindsClusters(t *testing.T) {
	points := [][]float64{
		{1, 0}, {0.999, 0.04}, {0.998, 0.06}, // cluster around x-axis
		{0, 1}, {0.04, 0.999}, // cluster around y-axis
		{0.7071, -0.7071}, // noise
	}
	labels := dbscan(points, 0.01, 2)

	assert.Equal(t, labels[0], labels[1])
	assert.Equal(t, labels[1], labels[2])
	assert.Equal(t, labels[3], labels[4])
	assert.NotEqual(t, labels[0], labels[3])
	assert.Equal(t, dbscanNoise, labels[5])
}

func TestSemanticBatcherEmitsLargestCluster(t *testing.T) {
	provider := &stubEmbedder{dim: 4, vectors: map[string][]float32{}}
	s := strategyWith(2, 10)
	s.SimilarityThreshold = 0.95
	b := NewSemanticBatcher(s, provider, observability.NewNoopLogger())
	ctx := context.Background()

	// Three near-identical "weather" prompts and two "math" prompts.
	weather := []string{
		"weather report for Berlin today",
		"weather report for Berlin tomorrow",
		"weather report for Berlin this weekend",
	}
	math := []string{"integrate x squared", "integrate x cubed"}
	for _, p := range weather {
		provider.vectors[p] = []float32{1, 0, 0, 0}
	}
	for _, p := range math {
		provider.vectors[p] = []float32{0, 1, 0, 0}
	}
	for _, p := range append(append([]string{}, weather...), math...) {
		require.NoError(t, b.AddRequest(ctx, newBatchRequest(t, p, models.PriorityStandard)))
	}

	batch, err := b.CollectBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, 3, batch.Size(), "the larger weather cluster wins")
	for _, req := range batch.Requests {
		assert.Contains(t, req.Prompt, "weather")
	}
	assert.NotNil(t, batch.CentroidEmbedding)
	assert.Equal(t, "weather report for Berlin t", batch.CommonPrefix)

	// The math pool (2 requests) still meets min_batch_size and clusters
	// on the next collection.
	batch, err = b.CollectBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, 2, batch.Size())
	assert.Equal(t, 0, b.QueueStats().Pending)
}

func TestSemanticBatcherWaitsForMinPool(t *testing.T) {
	provider := &stubEmbedder{dim: 4, vectors: map[string][]float32{}}
	s := strategyWith(3, 10)
	s.MaxWaitMS = 10
	b := NewSemanticBatcher(s, provider, observability.NewNoopLogger())
	ctx := context.Background()

	require.NoError(t, b.AddRequest(ctx, newBatchRequest(t, "only one", models.PriorityStandard)))
	batch, err := b.CollectBatch(ctx)
	require.NoError(t, err)
	assert.Nil(t, batch, "pool below min_batch_size must not emit before the wait window")

	time.Sleep(15 * time.Millisecond)
	batch, err = b.CollectBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, batch, "a stalled pool flushes once the oldest request times out")
	assert.Equal(t, 1, batch.Size())
}

func TestSemanticBatcherFIFOFallbackOnNoise(t *testing.T) {
	provider := &stubEmbedder{dim: 4, vectors: map[string][]float32{
		"alpha": {1, 0, 0, 0},
		"beta":  {0, 1, 0, 0},
		"gamma": {0, 0, 1, 0},
	}}
	s := strategyWith(3, 10)
	s.SimilarityThreshold = 0.99
	b := NewSemanticBatcher(s, provider, observability.NewNoopLogger())
	ctx := context.Background()

	for _, p := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, b.AddRequest(ctx, newBatchRequest(t, p, models.PriorityStandard)))
	}

	batch, err := b.CollectBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, batch, "all-noise pools fall back to FIFO emission")
	assert.Equal(t, 3, batch.Size())
	assert.Equal(t, "alpha", batch.Requests[0].Prompt)
	assert.Empty(t, batch.CommonPrefix)
}

func TestCommonPrefixRules(t *testing.T) {
	mk := func(prompts ...string) []*models.Request {
		var out []*models.Request
		for _, p := range prompts {
			req, err := models.NewRequest(p, nil, models.DefaultParameters())
			require.NoError(t, err)
			out = append(out, req)
		}
		return out
	}

	assert.Equal(t, "translate the following to ",
		commonPrefix(mk("translate the following to French", "translate the following to German")))
	assert.Empty(t, commonPrefix(mk("short a", "short b")), "prefixes of 10 chars or fewer are dropped")
	assert.Empty(t, commonPrefix(mk("only one prompt here")), "a single prompt has no shared prefix")

	var none []*models.Request
	assert.Empty(t, commonPrefix(none))
}

func TestSemanticBatcherCapsAtMaxBatchSize(t *testing.T) {
	provider := &stubEmbedder{dim: 4, vectors: map[string][]float32{}}
	b := NewSemanticBatcher(strategyWith(2, 3), provider, observability.NewNoopLogger())
	ctx := context.Background()

	// All five share the default x-axis embedding: one big cluster.
	for i := 0; i < 5; i++ {
		require.NoError(t, b.AddRequest(ctx, newBatchRequest(t, fmt.Sprintf("same thing %d", i), models.PriorityStandard)))
	}
	batch, err := b.CollectBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, 3, batch.Size(), "cluster is truncated at max_batch_size")
	assert.Equal(t, 2, b.QueueStats().Pending)
}
