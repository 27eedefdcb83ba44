// Package cost computes, attributes and analyzes the dollar cost of
// inference traffic.
package cost

import (
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
)

// ModelPricing is the per-1K-token price pair for one model.
type ModelPricing struct {
	Input  float64
	Output float64
}

// Calculator prices token usage against model configurations, falling
// back to a static pricing table for models routed outside the registry.
type Calculator struct {
	pricing map[string]ModelPricing
}

// NewCalculator creates a calculator with the default pricing table.
func NewCalculator() *Calculator {
	return &Calculator{pricing: defaultPricing()}
}

// NewCalculatorWithPricing creates a calculator with a custom table.
func NewCalculatorWithPricing(pricing map[string]ModelPricing) *Calculator {
	return &Calculator{pricing: pricing}
}

// Calculate returns the dollar cost for token usage on the given model.
func (c *Calculator) Calculate(model *models.ModelConfig, inputTokens, outputTokens int) float64 {
	return model.CalculateCost(inputTokens, outputTokens)
}

// CalculateByID prices usage from the static table; zero for unknown
// models.
func (c *Calculator) CalculateByID(modelID string, inputTokens, outputTokens int) float64 {
	p, ok := c.pricing[modelID]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*p.Input + float64(outputTokens)/1000*p.Output
}

// CalculateSavings returns the cost avoided by using alternative instead
// of base, never negative.
func (c *Calculator) CalculateSavings(base, alternative *models.ModelConfig, inputTokens, outputTokens int) float64 {
	saved := c.Calculate(base, inputTokens, outputTokens) - c.Calculate(alternative, inputTokens, outputTokens)
	if saved < 0 {
		return 0
	}
	return saved
}

func defaultPricing() map[string]ModelPricing {
	return map[string]ModelPricing{
		"gpt-4":           {Input: 0.03, Output: 0.06},
		"gpt-3.5-turbo":   {Input: 0.0015, Output: 0.002},
		"claude-3-opus":   {Input: 0.015, Output: 0.075},
		"claude-3-sonnet": {Input: 0.003, Output: 0.015},
	}
}
