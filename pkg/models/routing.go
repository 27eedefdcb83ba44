package models

import (
	"time"

	"github.com/google/uuid"
)

// ModelTier groups models by capability and cost.
type ModelTier string

// Model tiers.
const (
	TierPremium  ModelTier = "premium"
	TierStandard ModelTier = "standard"
	TierEconomy  ModelTier = "economy"
)

// Rank orders tiers; higher means more capable.
func (t ModelTier) Rank() int {
	switch t {
	case TierPremium:
		return 3
	case TierStandard:
		return 2
	case TierEconomy:
		return 1
	default:
		return 0
	}
}

// RoutingStrategy names a model selection strategy.
type RoutingStrategy string

// Routing strategies.
const (
	RouteCostOptimal    RoutingStrategy = "cost_optimal"
	RouteLatencyOptimal RoutingStrategy = "latency_optimal"
	RouteBalanced       RoutingStrategy = "balanced"
	RouteRoundRobin     RoutingStrategy = "round_robin"
)

// ModelConfig describes one model backend. The health fields (Healthy,
// CircuitBreakerOpen, CurrentLoad) are mutated only through the routing
// registry; readers tolerate stale values.
type ModelConfig struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Tier ModelTier `json:"tier"`

	// Capabilities.
	MaxContextLength int  `json:"max_context_length"`
	SupportsStream   bool `json:"supports_streaming"`
	SupportsBatching bool `json:"supports_batching"`

	// Performance characteristics.
	AvgLatencyMS     int `json:"avg_latency_ms"`
	MaxThroughputRPS int `json:"max_throughput_rps"`

	// Cost per 1K tokens.
	CostPer1KInputTokens  float64 `json:"cost_per_1k_input_tokens"`
	CostPer1KOutputTokens float64 `json:"cost_per_1k_output_tokens"`

	// Availability.
	CurrentLoad        float64 `json:"current_load"`
	Healthy            bool    `json:"healthy"`
	CircuitBreakerOpen bool    `json:"circuit_breaker_open"`
}

// CalculateCost returns the dollar cost for the given token counts.
func (m *ModelConfig) CalculateCost(inputTokens, outputTokens int) float64 {
	inputCost := float64(inputTokens) / 1000 * m.CostPer1KInputTokens
	outputCost := float64(outputTokens) / 1000 * m.CostPer1KOutputTokens
	return inputCost + outputCost
}

// IsAvailable reports whether the model can take traffic.
func (m *ModelConfig) IsAvailable() bool {
	return m.Healthy && !m.CircuitBreakerOpen && m.CurrentLoad < 0.95
}

// ComplexityEstimate scores how demanding a request is, in [0,1].
type ComplexityEstimate struct {
	Score   float64            `json:"score"`
	Factors map[string]float64 `json:"factors"`

	InputLength             int  `json:"input_length"`
	EstimatedReasoningSteps int  `json:"estimated_reasoning_steps"`
	RequiresContext         bool `json:"requires_context"`
	DomainSpecific          bool `json:"domain_specific"`
}

// RecommendedTier maps the score to a model tier.
func (c ComplexityEstimate) RecommendedTier() ModelTier {
	switch {
	case c.Score > 0.7:
		return TierPremium
	case c.Score > 0.3:
		return TierStandard
	default:
		return TierEconomy
	}
}

// RoutingDecision records which model was selected for a request and why.
type RoutingDecision struct {
	ID        uuid.UUID `json:"id"`
	RequestID uuid.UUID `json:"request_id"`

	SelectedModel  *ModelConfig   `json:"selected_model"`
	FallbackModels []*ModelConfig `json:"fallback_models"`

	Strategy           RoutingStrategy     `json:"strategy"`
	ComplexityEstimate *ComplexityEstimate `json:"complexity_estimate,omitempty"`

	EstimatedCost         float64 `json:"estimated_cost"`
	EstimatedLatencyMS    int     `json:"estimated_latency_ms"`
	EstimatedQualityScore float64 `json:"estimated_quality_score"`

	DecisionReason   string   `json:"decision_reason"`
	ConsideredModels []string `json:"considered_models"`

	Timestamp time.Time `json:"timestamp"`
}
