package models

import (
	"time"

	"github.com/google/uuid"
)

// Cache source tags reported in CacheInfo.
const (
	CacheSourceExact    = "exact"
	CacheSourceSemantic = "semantic"
	CacheSourcePrefix   = "prefix"
)

// CacheInfo describes how the cache hierarchy served a response.
type CacheInfo struct {
	Hit             bool    `json:"hit"`
	Source          string  `json:"source,omitempty"`
	SimilarityScore float64 `json:"similarity_score,omitempty"`
	TokensSaved     int     `json:"tokens_saved"`
	LatencySavedMS  int     `json:"latency_saved_ms"`
}

// Usage holds token counts and the dollar cost of a response.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CachedTokens     int     `json:"cached_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// CacheHitRate is the fraction of tokens served from cache.
func (u Usage) CacheHitRate() float64 {
	if u.TotalTokens == 0 {
		return 0
	}
	return float64(u.CachedTokens) / float64(u.TotalTokens)
}

// Response is a complete inference response. Immutable once returned.
type Response struct {
	ID           uuid.UUID `json:"id"`
	RequestID    uuid.UUID `json:"request_id"`
	Text         string    `json:"text"`
	FinishReason string    `json:"finish_reason"`
	ModelUsed    string    `json:"model_used"`

	Usage     Usage     `json:"usage"`
	CacheInfo CacheInfo `json:"cache_info"`
	LatencyMS int       `json:"latency_ms"`

	// Timing breakdown.
	QueueTimeMS       int `json:"queue_time_ms"`
	InferenceTimeMS   int `json:"inference_time_ms"`
	PostprocessTimeMS int `json:"postprocess_time_ms"`

	CreatedAt time.Time `json:"created_at"`
}
