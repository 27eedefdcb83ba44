package batching

import (
	"context"
	"sync"

	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

// PriorityBatcher enforces strict priority lanes: a batch is always drawn
// from the highest non-empty lane, FIFO within the lane. A high-priority
// request never waits behind lower-priority ones.
type PriorityBatcher struct {
	strategy models.BatchStrategy

	mu     sync.Mutex
	queues map[models.Priority][]*models.Request

	totalBatches  uint64
	totalRequests uint64

	logger observability.Logger
}

// NewPriorityBatcher creates a strict-lane batcher.
func NewPriorityBatcher(strategy models.BatchStrategy, logger observability.Logger) *PriorityBatcher {
	return &PriorityBatcher{
		strategy: strategy,
		queues: map[models.Priority][]*models.Request{
			models.PriorityExpress:  nil,
			models.PriorityStandard: nil,
			models.PriorityBatch:    nil,
		},
		logger: logger,
	}
}

// Variant returns VariantPriority.
func (b *PriorityBatcher) Variant() Variant { return VariantPriority }

// AddRequest admits the request to its lane. Never blocks.
func (b *PriorityBatcher) AddRequest(ctx context.Context, req *models.Request) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queues[req.Priority] = append(b.queues[req.Priority], req)
	b.logger.Debug("priority request queued", map[string]interface{}{
		"request_id": req.ID.String(),
		"priority":   string(req.Priority),
		"queue_size": len(b.queues[req.Priority]),
	})
	return nil
}

// CollectBatch drains the highest non-empty lane, bounded by the per-lane
// cap (4 for express, max_batch_size otherwise). Returns nil when all
// lanes are empty.
func (b *PriorityBatcher) CollectBatch(ctx context.Context) (*models.BatchRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, priority := range []models.Priority{models.PriorityExpress, models.PriorityStandard, models.PriorityBatch} {
		queue := b.queues[priority]
		if len(queue) == 0 {
			continue
		}
		laneCap := b.strategy.MaxBatchSize
		if priority == models.PriorityExpress {
			laneCap = expressBatchCap
		}
		n := len(queue)
		if n > laneCap {
			n = laneCap
		}
		requests := queue[:n:n]
		b.queues[priority] = queue[n:]

		batch := models.NewBatchRequest(requests, b.strategy)
		b.logger.Info("priority batch collected", map[string]interface{}{
			"priority": string(priority),
			"size":     batch.Size(),
		})
		return batch, nil
	}
	return nil, nil
}

// RecordBatchMetrics updates throughput counters.
func (b *PriorityBatcher) RecordBatchMetrics(metrics models.BatchMetrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalBatches++
	b.totalRequests += uint64(metrics.Size)
}

// QueueStats returns queue depths and counters.
func (b *PriorityBatcher) QueueStats() QueueStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	express := len(b.queues[models.PriorityExpress])
	standard := len(b.queues[models.PriorityStandard])
	batch := len(b.queues[models.PriorityBatch])
	return QueueStats{
		Express:       express,
		Standard:      standard,
		Batch:         batch,
		Total:         express + standard + batch,
		TotalBatches:  b.totalBatches,
		TotalRequests: b.totalRequests,
	}
}
