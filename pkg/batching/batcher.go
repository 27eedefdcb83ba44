// Package batching groups pending requests into execution batches. Three
// variants share one capability interface: adaptive (latency-feedback
// sizing), priority (strict lanes), and semantic (similarity clustering
// for prompt-prefix reuse).
package batching

import (
	"context"

	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
)

// Variant tags a batcher implementation.
type Variant string

// Batcher variants.
const (
	VariantAdaptive Variant = "adaptive"
	VariantPriority Variant = "priority"
	VariantSemantic Variant = "semantic"
)

// QueueStats is a snapshot of batcher queue depths and counters.
type QueueStats struct {
	Express  int `json:"express"`
	Standard int `json:"standard"`
	Batch    int `json:"batch"`
	Pending  int `json:"pending,omitempty"`
	Total    int `json:"total"`

	CurrentBatchSize int    `json:"current_batch_size,omitempty"`
	TotalBatches     uint64 `json:"total_batches"`
	TotalRequests    uint64 `json:"total_requests"`
}

// Batcher is the capability interface shared by all variants. AddRequest
// returns immediately; CollectBatch returns nil when nothing is ready. One
// drain loop per backend calls CollectBatch and dispatches non-nil
// results.
type Batcher interface {
	Variant() Variant
	AddRequest(ctx context.Context, req *models.Request) error
	CollectBatch(ctx context.Context) (*models.BatchRequest, error)
	RecordBatchMetrics(metrics models.BatchMetrics)
	QueueStats() QueueStats
}

// Express lane batches are capped at this size regardless of strategy.
const expressBatchCap = 4
