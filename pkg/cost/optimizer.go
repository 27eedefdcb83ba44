package cost

import (
	"fmt"
	"sort"

	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

// Optimizer turns aggregated cost metrics into trend statistics, top cost
// drivers, and actionable recommendations.
type Optimizer struct {
	logger observability.Logger
}

// NewOptimizer creates an optimizer.
func NewOptimizer(logger observability.Logger) *Optimizer {
	return &Optimizer{logger: logger}
}

// TrendStats summarizes a series of per-period metrics.
type TrendStats struct {
	AvgDailyCost    float64 `json:"avg_daily_cost"`
	AvgDailySavings float64 `json:"avg_daily_savings"`
	AvgSavingsRate  float64 `json:"avg_savings_rate"`
	TotalCost       float64 `json:"total_cost"`
	TotalSavings    float64 `json:"total_savings"`
}

// AnalyzeTrends averages cost and savings over the given periods.
func (o *Optimizer) AnalyzeTrends(metricsList []models.CostMetrics) TrendStats {
	var stats TrendStats
	if len(metricsList) == 0 {
		return stats
	}
	for _, m := range metricsList {
		stats.TotalCost += m.TotalCostUSD
		stats.TotalSavings += m.TotalSavingsUSD
		stats.AvgSavingsRate += m.SavingsRate()
	}
	n := float64(len(metricsList))
	stats.AvgDailyCost = stats.TotalCost / n
	stats.AvgDailySavings = stats.TotalSavings / n
	stats.AvgSavingsRate /= n
	return stats
}

// TopCostDrivers returns the `limit` most expensive users, features and
// models, sorted by descending cost.
func (o *Optimizer) TopCostDrivers(metrics models.CostMetrics, limit int) []models.CostDriver {
	var drivers []models.CostDriver
	appendDrivers := func(kind string, byDim map[string]float64) {
		for id, c := range byDim {
			drivers = append(drivers, models.CostDriver{Type: kind, ID: id, Cost: c})
		}
	}
	appendDrivers("user", metrics.CostByUser)
	appendDrivers("feature", metrics.CostByFeature)
	appendDrivers("model", metrics.CostByModel)

	sort.Slice(drivers, func(i, j int) bool {
		if drivers[i].Cost != drivers[j].Cost {
			return drivers[i].Cost > drivers[j].Cost
		}
		if drivers[i].Type != drivers[j].Type {
			return drivers[i].Type < drivers[j].Type
		}
		return drivers[i].ID < drivers[j].ID
	})
	if limit > 0 && len(drivers) > limit {
		drivers = drivers[:limit]
	}
	return drivers
}

// Recommend generates optimization recommendations from the aggregate.
func (o *Optimizer) Recommend(metrics models.CostMetrics) []string {
	var recommendations []string

	if metrics.CacheHitRate < 0.4 {
		recommendations = append(recommendations,
			"Cache hit rate is low. Consider enabling semantic caching or reviewing prompts.")
	}

	if len(metrics.CostByUser) > 0 {
		var topUserCost float64
		for _, c := range metrics.CostByUser {
			if c > topUserCost {
				topUserCost = c
			}
		}
		avgUserCost := metrics.TotalCostUSD / float64(len(metrics.CostByUser))
		if topUserCost > avgUserCost*5 {
			recommendations = append(recommendations,
				"High variance in user costs detected. Implement per-user throttling.")
		}
	}

	if len(metrics.CostByModel) > 0 {
		mostExpensive, mostCost := "", -1.0
		for id, c := range metrics.CostByModel {
			if c > mostCost || (c == mostCost && id < mostExpensive) {
				mostExpensive, mostCost = id, c
			}
		}
		recommendations = append(recommendations, fmt.Sprintf(
			"Consider routing more requests away from %s to cheaper models.", mostExpensive))
	}

	o.logger.Info("optimization recommendations", map[string]interface{}{
		"count": len(recommendations),
	})
	return recommendations
}
