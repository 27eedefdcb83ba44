package routing

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	gwerrors "github.com/TensorScholar/cost-optimized-inference/pkg/errors"
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

// Router produces a routing decision for a request.
type Router interface {
	Route(req *models.Request) (*models.RoutingDecision, error)
}

// CostAwareRouter scores available models by a weighted cost/quality/load
// function gated by a complexity estimate.
type CostAwareRouter struct {
	registry   *Registry
	estimator  *ComplexityEstimator
	costWeight float64

	logger observability.Logger
}

// NewCostAwareRouter creates a cost-aware router. costWeight in [0,1]
// shifts selection between pure quality (0) and pure cost (1).
func NewCostAwareRouter(registry *Registry, estimator *ComplexityEstimator, costWeight float64, logger observability.Logger) *CostAwareRouter {
	return &CostAwareRouter{
		registry:   registry,
		estimator:  estimator,
		costWeight: costWeight,
		logger:     logger,
	}
}

// Route estimates complexity, filters candidates, scores them and selects
// the minimum-score model with up to three fallbacks in scoring order.
func (r *CostAwareRouter) Route(req *models.Request) (*models.RoutingDecision, error) {
	complexity := r.estimator.Estimate(req)

	all := r.registry.List()
	candidates := make([]*models.ModelConfig, 0, len(all))
	for _, m := range all {
		if m.IsAvailable() && r.canHandle(m, req, complexity) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		// Degrade to any healthy model rather than failing outright.
		for _, m := range all {
			if m.Healthy {
				candidates = append(candidates, m)
			}
		}
		if len(candidates) == 0 {
			return nil, gwerrors.New(gwerrors.ClassNoHealthyBackend, "no healthy models available")
		}
	}

	scored := r.scoreCandidates(candidates, complexity)
	selected := scored[0].model

	fallbacks := make([]*models.ModelConfig, 0, 3)
	for _, s := range scored[1:] {
		if len(fallbacks) == 3 {
			break
		}
		fallbacks = append(fallbacks, s.model)
	}

	considered := make([]string, 0, len(candidates))
	for _, m := range candidates {
		considered = append(considered, m.ID)
	}

	estimatedCost := selected.CalculateCost(req.EstimatedInputTokens(), req.Parameters.MaxTokens)
	decision := &models.RoutingDecision{
		ID:                    uuid.New(),
		RequestID:             req.ID,
		SelectedModel:         selected,
		FallbackModels:        fallbacks,
		Strategy:              models.RouteCostOptimal,
		ComplexityEstimate:    &complexity,
		EstimatedCost:         estimatedCost,
		EstimatedLatencyMS:    selected.AvgLatencyMS,
		EstimatedQualityScore: r.estimateQuality(selected, complexity),
		DecisionReason:        r.decisionReason(selected, complexity),
		ConsideredModels:      considered,
		Timestamp:             time.Now().UTC(),
	}
	r.logger.Info("routing decision", map[string]interface{}{
		"request_id":       req.ID.String(),
		"selected_model":   selected.ID,
		"complexity_score": complexity.Score,
		"estimated_cost":   estimatedCost,
		"fallback_count":   len(fallbacks),
	})
	return decision, nil
}

func (r *CostAwareRouter) canHandle(m *models.ModelConfig, req *models.Request, complexity models.ComplexityEstimate) bool {
	totalTokens := req.EstimatedInputTokens() + req.Parameters.MaxTokens
	if totalTokens > m.MaxContextLength {
		return false
	}
	if complexity.RecommendedTier() == models.TierPremium && m.Tier == models.TierEconomy {
		return false
	}
	return true
}

type scoredModel struct {
	model *models.ModelConfig
	score float64
}

// scoreCandidates returns candidates ordered by ascending score. The sort
// is stable over configured order, so equal scores fall back to insertion
// order.
func (r *CostAwareRouter) scoreCandidates(candidates []*models.ModelConfig, complexity models.ComplexityEstimate) []scoredModel {
	const epsilon = 1e-6
	minCost, maxCost := candidates[0].CostPer1KInputTokens, candidates[0].CostPer1KInputTokens
	for _, m := range candidates[1:] {
		if m.CostPer1KInputTokens < minCost {
			minCost = m.CostPer1KInputTokens
		}
		if m.CostPer1KInputTokens > maxCost {
			maxCost = m.CostPer1KInputTokens
		}
	}

	scored := make([]scoredModel, 0, len(candidates))
	for _, m := range candidates {
		normalizedCost := (m.CostPer1KInputTokens - minCost) / (maxCost - minCost + epsilon)
		quality := r.estimateQuality(m, complexity)
		score := r.costWeight*normalizedCost + (1-r.costWeight)*(1-quality) + 0.2*m.CurrentLoad
		scored = append(scored, scoredModel{model: m, score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score < scored[j].score })
	return scored
}

func (r *CostAwareRouter) estimateQuality(m *models.ModelConfig, complexity models.ComplexityEstimate) float64 {
	var base float64
	switch m.Tier {
	case models.TierPremium:
		base = 1.0
	case models.TierStandard:
		base = 0.7
	case models.TierEconomy:
		base = 0.4
	default:
		base = 0.5
	}
	recommended := complexity.RecommendedTier()
	switch {
	case m.Tier == recommended:
		return base
	case m.Tier.Rank() > recommended.Rank():
		return clamp01(base + 0.1)
	default:
		return clamp01(base - 0.2)
	}
}

func (r *CostAwareRouter) decisionReason(m *models.ModelConfig, complexity models.ComplexityEstimate) string {
	reason := fmt.Sprintf("Selected %s (%s tier); complexity score: %.2f; cost: $%.4f/1K input tokens",
		m.Name, m.Tier, complexity.Score, m.CostPer1KInputTokens)
	switch {
	case complexity.Score < 0.3:
		reason += "; simple query, economy model sufficient"
	case complexity.Score < 0.7:
		reason += "; moderate complexity, standard model appropriate"
	default:
		reason += "; high complexity, premium model required"
	}
	if m.CurrentLoad > 0.7 {
		reason += fmt.Sprintf("; high load (%.0f%%), may queue", m.CurrentLoad*100)
	}
	return reason
}
