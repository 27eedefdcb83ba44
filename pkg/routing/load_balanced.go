package routing

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	gwerrors "github.com/TensorScholar/cost-optimized-inference/pkg/errors"
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

// LoadBalancedRouter round-robins over available models, ignoring
// complexity. The available set is recomputed per call so unavailable
// models are skipped without stalling the cursor.
type LoadBalancedRouter struct {
	registry *Registry
	cursor   atomic.Uint64

	logger observability.Logger
}

// NewLoadBalancedRouter creates a round-robin router over the registry.
func NewLoadBalancedRouter(registry *Registry, logger observability.Logger) *LoadBalancedRouter {
	return &LoadBalancedRouter{registry: registry, logger: logger}
}

// Route selects the next available model in rotation.
func (r *LoadBalancedRouter) Route(req *models.Request) (*models.RoutingDecision, error) {
	available := make([]*models.ModelConfig, 0)
	for _, m := range r.registry.List() {
		if m.IsAvailable() {
			available = append(available, m)
		}
	}
	if len(available) == 0 {
		return nil, gwerrors.New(gwerrors.ClassNoHealthyBackend, "no available models for routing")
	}

	idx := r.cursor.Add(1) - 1
	selected := available[idx%uint64(len(available))]

	considered := make([]string, 0, len(available))
	for _, m := range available {
		considered = append(considered, m.ID)
	}

	r.logger.Info("load balanced routing", map[string]interface{}{
		"request_id": req.ID.String(),
		"model":      selected.ID,
		"index":      idx,
	})
	return &models.RoutingDecision{
		ID:                    uuid.New(),
		RequestID:             req.ID,
		SelectedModel:         selected,
		FallbackModels:        nil,
		Strategy:              models.RouteRoundRobin,
		EstimatedCost:         selected.CalculateCost(req.EstimatedInputTokens(), req.Parameters.MaxTokens),
		EstimatedLatencyMS:    selected.AvgLatencyMS,
		EstimatedQualityScore: 0.7,
		DecisionReason:        fmt.Sprintf("Round-robin selection: %s", selected.ID),
		ConsideredModels:      considered,
		Timestamp:             time.Now().UTC(),
	}, nil
}
