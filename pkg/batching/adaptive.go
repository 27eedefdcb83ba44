package batching

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

const latencyWindowSize = 100

// AdaptiveBatcher batches per priority lane and adapts its standard batch
// size to observed tail latency: after each completed batch the window p95
// is compared against the target, growing the size ~1.2x when comfortably
// under and shrinking ~0.8x when over.
type AdaptiveBatcher struct {
	strategy models.BatchStrategy

	mu            sync.Mutex
	expressQueue  []*models.Request
	standardQueue []*models.Request
	batchQueue    []*models.Request

	currentBatchSize int
	recentLatencies  []int // ring of the last latencyWindowSize batch latencies

	totalBatches  uint64
	totalRequests uint64

	logger observability.Logger
}

// NewAdaptiveBatcher creates an adaptive batcher starting at the
// strategy's minimum batch size.
func NewAdaptiveBatcher(strategy models.BatchStrategy, logger observability.Logger) *AdaptiveBatcher {
	return &AdaptiveBatcher{
		strategy:         strategy,
		currentBatchSize: strategy.MinBatchSize,
		logger:           logger,
	}
}

// Variant returns VariantAdaptive.
func (b *AdaptiveBatcher) Variant() Variant { return VariantAdaptive }

// AddRequest admits the request to its priority lane. Never blocks.
func (b *AdaptiveBatcher) AddRequest(ctx context.Context, req *models.Request) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch req.Priority {
	case models.PriorityExpress:
		b.expressQueue = append(b.expressQueue, req)
	case models.PriorityStandard:
		b.standardQueue = append(b.standardQueue, req)
	default:
		b.batchQueue = append(b.batchQueue, req)
	}
	b.logger.Debug("request queued", map[string]interface{}{
		"request_id": req.ID.String(),
		"priority":   string(req.Priority),
		"express":    len(b.expressQueue),
		"standard":   len(b.standardQueue),
		"batch":      len(b.batchQueue),
	})
	return nil
}

// CollectBatch returns the next ready batch or nil. Express wins whenever
// non-empty; a full standard or batch lane goes next; otherwise a mixed
// batch is emitted once the oldest pending request has waited max_wait_ms.
func (b *AdaptiveBatcher) CollectBatch(ctx context.Context) (*models.BatchRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.expressQueue) > 0 {
		return b.collectExpressLocked(), nil
	}
	if len(b.standardQueue) >= b.currentBatchSize {
		return b.collectStandardLocked(), nil
	}
	if len(b.batchQueue) >= b.strategy.MaxBatchSize {
		return b.collectBatchLaneLocked(), nil
	}
	return b.collectMixedLocked(), nil
}

func (b *AdaptiveBatcher) collectExpressLocked() *models.BatchRequest {
	n := len(b.expressQueue)
	if n > expressBatchCap {
		n = expressBatchCap
	}
	requests := b.expressQueue[:n:n]
	b.expressQueue = b.expressQueue[n:]

	strategy := b.strategy
	strategy.MinBatchSize = 1
	strategy.MaxBatchSize = expressBatchCap
	strategy.MaxWaitMS = b.strategy.ExpressMaxWaitMS

	batch := models.NewBatchRequest(requests, strategy)
	b.logger.Info("express batch collected", map[string]interface{}{
		"batch_id": batch.ID.String(),
		"size":     batch.Size(),
	})
	return batch
}

func (b *AdaptiveBatcher) collectStandardLocked() *models.BatchRequest {
	n := b.currentBatchSize
	if n > len(b.standardQueue) {
		n = len(b.standardQueue)
	}
	requests := b.standardQueue[:n:n]
	b.standardQueue = b.standardQueue[n:]

	batch := models.NewBatchRequest(requests, b.strategy)
	b.logger.Info("standard batch collected", map[string]interface{}{
		"batch_id":    batch.ID.String(),
		"size":        batch.Size(),
		"target_size": b.currentBatchSize,
	})
	return batch
}

func (b *AdaptiveBatcher) collectBatchLaneLocked() *models.BatchRequest {
	n := b.strategy.MaxBatchSize
	if n > len(b.batchQueue) {
		n = len(b.batchQueue)
	}
	requests := b.batchQueue[:n:n]
	b.batchQueue = b.batchQueue[n:]

	batch := models.NewBatchRequest(requests, b.strategy)
	b.logger.Info("batch lane collected", map[string]interface{}{
		"batch_id": batch.ID.String(),
		"size":     batch.Size(),
	})
	return batch
}

func (b *AdaptiveBatcher) collectMixedLocked() *models.BatchRequest {
	oldestAge := b.oldestRequestAgeMSLocked()
	if oldestAge < int64(b.strategy.MaxWaitMS) {
		return nil
	}

	var requests []*models.Request
	for len(requests) < b.currentBatchSize && len(b.standardQueue) > 0 {
		requests = append(requests, b.standardQueue[0])
		b.standardQueue = b.standardQueue[1:]
	}
	for len(requests) < b.currentBatchSize && len(b.batchQueue) > 0 {
		requests = append(requests, b.batchQueue[0])
		b.batchQueue = b.batchQueue[1:]
	}
	if len(requests) == 0 {
		return nil
	}

	batch := models.NewBatchRequest(requests, b.strategy)
	b.logger.Info("mixed batch collected", map[string]interface{}{
		"batch_id":      batch.ID.String(),
		"size":          batch.Size(),
		"oldest_age_ms": oldestAge,
	})
	return batch
}

func (b *AdaptiveBatcher) oldestRequestAgeMSLocked() int64 {
	var oldest *models.Request
	for _, q := range [][]*models.Request{b.expressQueue, b.standardQueue, b.batchQueue} {
		if len(q) == 0 {
			continue
		}
		if oldest == nil || q[0].CreatedAt.Before(oldest.CreatedAt) {
			oldest = q[0]
		}
	}
	if oldest == nil {
		return 0
	}
	return time.Since(oldest.CreatedAt).Milliseconds()
}

// RecordBatchMetrics feeds a completed batch's latency into the sliding
// window and adjusts the current batch size against the p95 target.
func (b *AdaptiveBatcher) RecordBatchMetrics(metrics models.BatchMetrics) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.recentLatencies = append(b.recentLatencies, metrics.ProcessingTimeMS)
	if len(b.recentLatencies) > latencyWindowSize {
		b.recentLatencies = b.recentLatencies[len(b.recentLatencies)-latencyWindowSize:]
	}
	b.totalBatches++
	b.totalRequests += uint64(metrics.Size)

	b.adjustBatchSizeLocked()
}

func (b *AdaptiveBatcher) adjustBatchSizeLocked() {
	if len(b.recentLatencies) == 0 {
		return
	}
	sorted := make([]int, len(b.recentLatencies))
	copy(sorted, b.recentLatencies)
	sort.Ints(sorted)
	idx := int(float64(len(sorted)) * 0.95)
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	p95 := sorted[idx]

	target := b.strategy.TargetLatencyP95MS
	switch {
	case float64(p95) < 0.8*float64(target):
		grown := int(float64(b.currentBatchSize) * 1.2)
		if grown == b.currentBatchSize {
			grown++
		}
		if grown > b.strategy.MaxBatchSize {
			grown = b.strategy.MaxBatchSize
		}
		b.currentBatchSize = grown
	case p95 > target:
		shrunk := int(float64(b.currentBatchSize) * 0.8)
		if shrunk == b.currentBatchSize {
			shrunk--
		}
		if shrunk < b.strategy.MinBatchSize {
			shrunk = b.strategy.MinBatchSize
		}
		b.currentBatchSize = shrunk
	}
	b.logger.Debug("batch size adjusted", map[string]interface{}{
		"current_size":   b.currentBatchSize,
		"p95_latency_ms": p95,
		"target_ms":      target,
	})
}

// CurrentBatchSize returns the adaptive target size.
func (b *AdaptiveBatcher) CurrentBatchSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentBatchSize
}

// QueueStats returns queue depths and counters.
func (b *AdaptiveBatcher) QueueStats() QueueStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return QueueStats{
		Express:          len(b.expressQueue),
		Standard:         len(b.standardQueue),
		Batch:            len(b.batchQueue),
		Total:            len(b.expressQueue) + len(b.standardQueue) + len(b.batchQueue),
		CurrentBatchSize: b.currentBatchSize,
		TotalBatches:     b.totalBatches,
		TotalRequests:    b.totalRequests,
	}
}
