package cost

import (
	"sync"
	"time"

	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

// Attributor accumulates per-request cost attributions. Records are
// indexed by user id; other dimensions are answered by scanning.
type Attributor struct {
	mu     sync.RWMutex
	byUser map[string][]*models.CostAttribution
	all    []*models.CostAttribution

	logger observability.Logger
}

// NewAttributor creates an empty attributor.
func NewAttributor(logger observability.Logger) *Attributor {
	return &Attributor{
		byUser: make(map[string][]*models.CostAttribution),
		logger: logger,
	}
}

// Attribute records one request's cost against its dimensions and returns
// the stored record.
func (a *Attributor) Attribute(attr *models.CostAttribution) *models.CostAttribution {
	if attr.Timestamp.IsZero() {
		attr.Timestamp = time.Now().UTC()
	}

	a.mu.Lock()
	a.all = append(a.all, attr)
	if attr.UserID != "" {
		a.byUser[attr.UserID] = append(a.byUser[attr.UserID], attr)
	}
	a.mu.Unlock()

	a.logger.Debug("cost attributed", map[string]interface{}{
		"request_id": attr.RequestID.String(),
		"user_id":    attr.UserID,
		"feature":    attr.FeatureName,
		"net_cost":   attr.Breakdown.NetCost(),
	})
	return attr
}

// UserCosts sums the net cost recorded for a user.
func (a *Attributor) UserCosts(userID string) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	total := 0.0
	for _, attr := range a.byUser[userID] {
		total += attr.Breakdown.NetCost()
	}
	return total
}

// FeatureCosts returns every attribution recorded for a feature, across
// all users.
func (a *Attributor) FeatureCosts(featureName string) []*models.CostAttribution {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []*models.CostAttribution
	for _, attr := range a.all {
		if attr.FeatureName == featureName {
			out = append(out, attr)
		}
	}
	return out
}

// Aggregate rolls the recorded attributions in [start, end) into
// CostMetrics for the optimizer and the metrics endpoints. Zero times mean
// unbounded.
func (a *Attributor) Aggregate(start, end time.Time) models.CostMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	m := models.CostMetrics{
		PeriodStart:   start,
		PeriodEnd:     end,
		CostByUser:    make(map[string]float64),
		CostByFeature: make(map[string]float64),
		CostByModel:   make(map[string]float64),
	}
	cacheHits := 0
	for _, attr := range a.all {
		if !start.IsZero() && attr.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !attr.Timestamp.Before(end) {
			continue
		}
		net := attr.Breakdown.NetCost()
		m.TotalRequests++
		m.TotalCostUSD += net
		m.TotalSavingsUSD += attr.Breakdown.CacheSavings + attr.Breakdown.OptimizationSavings
		if attr.UserID != "" {
			m.CostByUser[attr.UserID] += net
		}
		if attr.FeatureName != "" {
			m.CostByFeature[attr.FeatureName] += net
		}
		if attr.ModelUsed != "" {
			m.CostByModel[attr.ModelUsed] += net
		}
		if attr.CacheHits > 0 {
			cacheHits++
		}
	}
	if m.TotalRequests > 0 {
		m.AvgCostPerRequest = m.TotalCostUSD / float64(m.TotalRequests)
		m.CacheHitRate = float64(cacheHits) / float64(m.TotalRequests)
	}
	return m
}
