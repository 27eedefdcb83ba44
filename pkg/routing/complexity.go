// Package routing selects one model backend and an ordered fallback list
// per request, gated by a complexity estimate and per-model health state.
package routing

import (
	"strings"

	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
)

// Complexity factor weights.
var complexityWeights = map[string]float64{
	"length":        0.2,
	"reasoning":     0.3,
	"domain":        0.2,
	"context":       0.15,
	"output_length": 0.15,
}

// ComplexityEstimator scores requests to guide tier selection.
type ComplexityEstimator struct {
	reasoningKeywords []string
	technicalDomains  []string
}

// NewComplexityEstimator creates an estimator with the stock keyword
// vocabularies.
func NewComplexityEstimator() *ComplexityEstimator {
	return &ComplexityEstimator{
		reasoningKeywords: []string{
			"analyze", "explain", "compare", "evaluate", "argue", "reason",
			"deduce", "infer", "conclude", "synthesize", "in detail",
			"step by step", "think through", "let me break down",
		},
		technicalDomains: []string{
			"code", "programming", "algorithm", "mathematics", "science",
			"physics", "chemistry", "biology", "legal", "medical",
			"financial", "engineering", "quantum", "computing",
		},
	}
}

// Estimate computes the complexity of a request from five clamped factors:
// input length, reasoning keywords, technical domain keywords, chat
// context depth, and requested output length.
func (e *ComplexityEstimator) Estimate(req *models.Request) models.ComplexityEstimate {
	text := strings.ToLower(req.Text())
	factors := make(map[string]float64, len(complexityWeights))

	inputLength := len(text)
	factors["length"] = clamp01(float64(inputLength) / 2000)

	reasoningCount := 0
	for _, kw := range e.reasoningKeywords {
		if strings.Contains(text, kw) {
			reasoningCount++
		}
	}
	factors["reasoning"] = clamp01(float64(reasoningCount) / 3)

	domainCount := 0
	for _, kw := range e.technicalDomains {
		if strings.Contains(text, kw) {
			domainCount++
		}
	}
	factors["domain"] = clamp01(float64(domainCount) / 2)

	hasContext := len(req.Messages) > 2
	if hasContext {
		factors["context"] = 0.5
	} else {
		factors["context"] = 0
	}

	factors["output_length"] = clamp01(float64(req.Parameters.MaxTokens) / 2000)

	score := 0.0
	for name, weight := range complexityWeights {
		score += factors[name] * weight
	}

	return models.ComplexityEstimate{
		Score:                   score,
		Factors:                 factors,
		InputLength:             inputLength,
		EstimatedReasoningSteps: reasoningCount,
		RequiresContext:         hasContext,
		DomainSpecific:          domainCount > 0,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
