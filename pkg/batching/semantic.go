package batching

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/TensorScholar/cost-optimized-inference/pkg/embedding"
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

// minCommonPrefixLength is the length at or under which a shared prefix is
// not worth a KV-cache hint.
const minCommonPrefixLength = 10

// SemanticBatcher groups requests by embedding similarity so backends can
// reuse prompt-prefix KV state across a batch. Requests are embedded on
// admission; collection runs DBSCAN over the pending pool and emits the
// largest cluster, falling back to FIFO when no cluster forms.
type SemanticBatcher struct {
	strategy models.BatchStrategy
	provider embedding.Provider

	mu         sync.Mutex
	pending    []*models.Request
	embeddings map[uuid.UUID][]float64

	totalBatches  uint64
	totalRequests uint64

	logger observability.Logger
}

// NewSemanticBatcher creates a semantic batcher over the given embedding
// provider.
func NewSemanticBatcher(strategy models.BatchStrategy, provider embedding.Provider, logger observability.Logger) *SemanticBatcher {
	return &SemanticBatcher{
		strategy:   strategy,
		provider:   provider,
		embeddings: make(map[uuid.UUID][]float64),
		logger:     logger,
	}
}

// Variant returns VariantSemantic.
func (b *SemanticBatcher) Variant() Variant { return VariantSemantic }

// AddRequest embeds the request text and adds it to the pending pool. The
// embedding call may block on the provider.
func (b *SemanticBatcher) AddRequest(ctx context.Context, req *models.Request) error {
	vec, err := b.provider.Embed(ctx, req.Text())
	if err != nil {
		return err
	}
	v := make([]float64, len(vec))
	for i, x := range vec {
		v[i] = float64(x)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, req)
	b.embeddings[req.ID] = v
	b.logger.Debug("request added for clustering", map[string]interface{}{
		"request_id":    req.ID.String(),
		"pending_count": len(b.pending),
	})
	return nil
}

// CollectBatch clusters the pool once it reaches min_batch_size and emits
// the largest cluster with its centroid and common prefix attached. A pool
// stuck below min_batch_size past max_wait_ms is flushed FIFO so the
// oldest request's deadline holds.
func (b *SemanticBatcher) CollectBatch(ctx context.Context) (*models.BatchRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) < b.strategy.MinBatchSize {
		if len(b.pending) > 0 && b.pending[0].AgeMS() >= int64(b.strategy.MaxWaitMS) {
			return b.collectSimpleLocked(), nil
		}
		return nil, nil
	}

	points := make([][]float64, len(b.pending))
	for i, r := range b.pending {
		points[i] = b.embeddings[r.ID]
	}
	eps := 1 - b.strategy.SimilarityThreshold
	labels := dbscan(points, eps, b.strategy.MinBatchSize)

	counts := make(map[int]int)
	for _, l := range labels {
		if l != dbscanNoise {
			counts[l]++
		}
	}
	if len(counts) == 0 {
		return b.collectSimpleLocked(), nil
	}

	largest, largestCount := dbscanNoise, 0
	for label, count := range counts {
		if count > largestCount || (count == largestCount && label < largest) {
			largest, largestCount = label, count
		}
	}

	var indices []int
	for i, l := range labels {
		if l == largest && len(indices) < b.strategy.MaxBatchSize {
			indices = append(indices, i)
		}
	}

	requests := make([]*models.Request, 0, len(indices))
	for _, i := range indices {
		requests = append(requests, b.pending[i])
	}
	centroid := meanVector(points, indices)
	b.removeLocked(indices)

	batch := models.NewBatchRequest(requests, b.strategy)
	batch.CentroidEmbedding = centroid
	batch.CommonPrefix = commonPrefix(requests)

	b.logger.Info("semantic batch collected", map[string]interface{}{
		"batch_id":      batch.ID.String(),
		"size":          batch.Size(),
		"cluster_label": largest,
		"prefix_length": len(batch.CommonPrefix),
	})
	return batch, nil
}

// collectSimpleLocked is the FIFO fallback when DBSCAN finds only noise.
func (b *SemanticBatcher) collectSimpleLocked() *models.BatchRequest {
	n := b.strategy.MaxBatchSize
	if n > len(b.pending) {
		n = len(b.pending)
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	requests := make([]*models.Request, n)
	copy(requests, b.pending[:n])
	b.removeLocked(indices)
	return models.NewBatchRequest(requests, b.strategy)
}

// removeLocked drops the given pool indices (ascending) and their
// embeddings.
func (b *SemanticBatcher) removeLocked(indices []int) {
	for k := len(indices) - 1; k >= 0; k-- {
		i := indices[k]
		delete(b.embeddings, b.pending[i].ID)
		b.pending = append(b.pending[:i], b.pending[i+1:]...)
	}
}

// RecordBatchMetrics updates throughput counters.
func (b *SemanticBatcher) RecordBatchMetrics(metrics models.BatchMetrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalBatches++
	b.totalRequests += uint64(metrics.Size)
}

// QueueStats returns the pending pool depth and counters.
func (b *SemanticBatcher) QueueStats() QueueStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return QueueStats{
		Pending:       len(b.pending),
		Total:         len(b.pending),
		TotalBatches:  b.totalBatches,
		TotalRequests: b.totalRequests,
	}
}

// meanVector averages the selected points.
func meanVector(points [][]float64, indices []int) []float32 {
	if len(indices) == 0 || len(points) == 0 {
		return nil
	}
	dim := len(points[indices[0]])
	sum := make([]float64, dim)
	for _, i := range indices {
		for d, x := range points[i] {
			sum[d] += x
		}
	}
	out := make([]float32, dim)
	for d := range sum {
		out[d] = float32(sum[d] / float64(len(indices)))
	}
	return out
}

// commonPrefix finds the longest literal character prefix shared by all
// prompts in the batch; prefixes at or under minCommonPrefixLength are
// discarded as not worth hinting.
func commonPrefix(requests []*models.Request) string {
	var texts []string
	for _, r := range requests {
		if r.Prompt != "" {
			texts = append(texts, r.Prompt)
		}
	}
	if len(texts) < 2 {
		return ""
	}
	prefix := texts[0]
	for _, t := range texts[1:] {
		for !strings.HasPrefix(t, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	if len(prefix) <= minCommonPrefixLength {
		return ""
	}
	return prefix
}
