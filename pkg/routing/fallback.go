package routing

import (
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
)

// FallbackChain walks a routing decision's alternatives: the primary on
// the first call, then the fallbacks in rotation, up to maxAttempts total.
// Not safe for concurrent use; one chain serves one dispatch.
type FallbackChain struct {
	primary     *models.ModelConfig
	fallbacks   []*models.ModelConfig
	maxAttempts int
	attempts    int
}

// NewFallbackChain creates a chain with the given attempt budget.
func NewFallbackChain(primary *models.ModelConfig, fallbacks []*models.ModelConfig, maxAttempts int) *FallbackChain {
	return &FallbackChain{
		primary:     primary,
		fallbacks:   fallbacks,
		maxAttempts: maxAttempts,
	}
}

// NextModel returns the next model to try, nil when the budget is spent.
func (c *FallbackChain) NextModel() *models.ModelConfig {
	if c.attempts >= c.maxAttempts {
		return nil
	}
	var m *models.ModelConfig
	if c.attempts == 0 || len(c.fallbacks) == 0 {
		m = c.primary
	} else {
		m = c.fallbacks[(c.attempts-1)%len(c.fallbacks)]
	}
	c.attempts++
	return m
}

// HasMoreAttempts reports whether the chain can still produce a model.
func (c *FallbackChain) HasMoreAttempts() bool {
	return c.attempts < c.maxAttempts
}

// Reset rewinds the chain.
func (c *FallbackChain) Reset() {
	c.attempts = 0
}
