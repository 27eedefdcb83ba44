package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BatchStrategy configures batching behavior. Construct with
// NewBatchStrategy so the size bounds are checked.
type BatchStrategy struct {
	MinBatchSize int `json:"min_batch_size"`
	MaxBatchSize int `json:"max_batch_size"`
	MaxWaitMS    int `json:"max_wait_ms"`

	// Adaptive parameters.
	TargetLatencyP95MS     int     `json:"target_latency_p95_ms"`
	EnableSemanticGrouping bool    `json:"enable_semantic_grouping"`
	SimilarityThreshold    float64 `json:"similarity_threshold"`

	// Priority handling.
	PriorityLanes    bool `json:"priority_lanes"`
	ExpressMaxWaitMS int  `json:"express_max_wait_ms"`
}

// DefaultBatchStrategy returns the stock strategy.
func DefaultBatchStrategy() BatchStrategy {
	return BatchStrategy{
		MinBatchSize:           4,
		MaxBatchSize:           64,
		MaxWaitMS:              50,
		TargetLatencyP95MS:     100,
		EnableSemanticGrouping: true,
		SimilarityThreshold:    0.85,
		PriorityLanes:          true,
		ExpressMaxWaitMS:       10,
	}
}

// NewBatchStrategy validates and returns a strategy based on the defaults
// with the given size bounds.
func NewBatchStrategy(minSize, maxSize int) (BatchStrategy, error) {
	s := DefaultBatchStrategy()
	s.MinBatchSize = minSize
	s.MaxBatchSize = maxSize
	if err := s.Validate(); err != nil {
		return BatchStrategy{}, err
	}
	return s, nil
}

// Validate checks the strategy invariants.
func (s BatchStrategy) Validate() error {
	if s.MinBatchSize < 1 {
		return fmt.Errorf("min_batch_size must be at least 1, got %d", s.MinBatchSize)
	}
	if s.MinBatchSize > s.MaxBatchSize {
		return fmt.Errorf("min_batch_size %d cannot exceed max_batch_size %d", s.MinBatchSize, s.MaxBatchSize)
	}
	return nil
}

// BatchState tracks a batch through its lifecycle:
// Forming -> Sealed -> Dispatched -> Completed | Failed.
type BatchState string

// Batch lifecycle states.
const (
	BatchForming    BatchState = "forming"
	BatchSealed     BatchState = "sealed"
	BatchDispatched BatchState = "dispatched"
	BatchCompleted  BatchState = "completed"
	BatchFailed     BatchState = "failed"
)

// BatchRequest is a group of requests processed as one unit. A sealed batch
// is immutable: its request list never grows or shrinks after emit.
type BatchRequest struct {
	ID        uuid.UUID     `json:"id"`
	Requests  []*Request    `json:"requests"`
	CreatedAt time.Time     `json:"created_at"`
	Strategy  BatchStrategy `json:"strategy"`
	State     BatchState    `json:"state"`

	// Semantic grouping metadata.
	CentroidEmbedding []float32 `json:"-"`
	CommonPrefix      string    `json:"common_prefix,omitempty"`
}

// NewBatchRequest seals the given requests into a batch.
func NewBatchRequest(requests []*Request, strategy BatchStrategy) *BatchRequest {
	return &BatchRequest{
		ID:        uuid.New(),
		Requests:  requests,
		CreatedAt: time.Now().UTC(),
		Strategy:  strategy,
		State:     BatchSealed,
	}
}

// Size is the number of requests in the batch.
func (b *BatchRequest) Size() int { return len(b.Requests) }

// Priority is the highest priority among member requests.
func (b *BatchRequest) Priority() Priority {
	best := PriorityBatch
	if len(b.Requests) == 0 {
		return PriorityStandard
	}
	for _, r := range b.Requests {
		if r.Priority.Rank() > best.Rank() {
			best = r.Priority
		}
	}
	return best
}

// EstimatedTokens sums member input token estimates.
func (b *BatchRequest) EstimatedTokens() int {
	total := 0
	for _, r := range b.Requests {
		total += r.EstimatedInputTokens()
	}
	return total
}

// AgeMS is the batch age in milliseconds.
func (b *BatchRequest) AgeMS() int64 {
	return time.Since(b.CreatedAt).Milliseconds()
}

// BatchMetrics records the outcome of one processed batch.
type BatchMetrics struct {
	BatchID          uuid.UUID `json:"batch_id"`
	Size             int       `json:"size"`
	TotalTokens      int       `json:"total_tokens"`
	ProcessingTimeMS int       `json:"processing_time_ms"`
	WaitTimeMS       int       `json:"wait_time_ms"`

	ThroughputTokensPerSec float64 `json:"throughput_tokens_per_sec"`
	EfficiencyScore        float64 `json:"efficiency_score"`

	Timestamp time.Time `json:"timestamp"`
}
