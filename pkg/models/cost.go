package models

import (
	"time"

	"github.com/google/uuid"
)

// CostBreakdown splits a request's cost into components.
type CostBreakdown struct {
	InferenceCost       float64 `json:"inference_cost"`       // LLM API cost
	ComputeCost         float64 `json:"compute_cost"`         // gateway infrastructure cost
	CacheSavings        float64 `json:"cache_savings"`        // avoided via caching
	OptimizationSavings float64 `json:"optimization_savings"` // avoided via batching/routing
}

// TotalCost is the gross cost before savings.
func (c CostBreakdown) TotalCost() float64 {
	return c.InferenceCost + c.ComputeCost
}

// NetCost is the cost after savings.
func (c CostBreakdown) NetCost() float64 {
	return c.TotalCost() - c.CacheSavings - c.OptimizationSavings
}

// SavingsRate is the fraction of gross cost avoided.
func (c CostBreakdown) SavingsRate() float64 {
	total := c.TotalCost()
	if total == 0 {
		return 0
	}
	return (c.CacheSavings + c.OptimizationSavings) / total
}

// CostAttribution ties one request's cost to its attribution dimensions.
type CostAttribution struct {
	RequestID uuid.UUID `json:"request_id"`

	UserID       string `json:"user_id,omitempty"`
	FeatureName  string `json:"feature_name,omitempty"`
	ExperimentID string `json:"experiment_id,omitempty"`
	Application  string `json:"application"`
	ModelUsed    string `json:"model_used,omitempty"`

	Breakdown CostBreakdown `json:"cost_breakdown"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	CacheHits    int `json:"cache_hits"`

	LatencyMS int       `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// CostMetrics aggregates attributions over a period.
type CostMetrics struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	TotalRequests   int     `json:"total_requests"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	TotalSavingsUSD float64 `json:"total_savings_usd"`

	CostByUser    map[string]float64 `json:"cost_by_user"`
	CostByFeature map[string]float64 `json:"cost_by_feature"`
	CostByModel   map[string]float64 `json:"cost_by_model"`

	AvgCostPerRequest float64 `json:"avg_cost_per_request"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
}

// SavingsRate is savings over gross (cost + savings).
func (m CostMetrics) SavingsRate() float64 {
	denom := m.TotalCostUSD + m.TotalSavingsUSD
	if denom == 0 {
		return 0
	}
	return m.TotalSavingsUSD / denom
}

// CostDriver is one entry in a top-cost-drivers report.
type CostDriver struct {
	Type string  `json:"type"` // "user", "feature", "model"
	ID   string  `json:"id"`
	Cost float64 `json:"cost"`
}
