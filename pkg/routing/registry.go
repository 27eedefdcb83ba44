package routing

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

// Circuit breaker defaults: trip after this many consecutive failures,
// retry after the reset timeout.
const (
	breakerFailureThreshold = 5
	breakerResetTimeout     = 30 * time.Second
)

// Registry owns the model configurations and their circuit breakers. All
// mutation of health, load and breaker state flows through here; routers
// only read. The configured insertion order is preserved and used as the
// routing tie-breaker.
type Registry struct {
	mu       sync.RWMutex
	models   map[string]*models.ModelConfig
	order    []string
	breakers map[string]*gobreaker.CircuitBreaker

	logger observability.Logger
}

// NewRegistry creates a registry over the given model configurations,
// wiring a circuit breaker per model.
func NewRegistry(configs []*models.ModelConfig, logger observability.Logger) *Registry {
	r := &Registry{
		models:   make(map[string]*models.ModelConfig, len(configs)),
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(configs)),
		logger:   logger,
	}
	for _, cfg := range configs {
		cfg := cfg
		r.models[cfg.ID] = cfg
		r.order = append(r.order, cfg.ID)
		r.breakers[cfg.ID] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    cfg.ID,
			Timeout: breakerResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				r.onBreakerStateChange(name, from, to)
			},
		})
	}
	return r
}

func (r *Registry) onBreakerStateChange(name string, from, to gobreaker.State) {
	r.mu.Lock()
	if m, ok := r.models[name]; ok {
		// Half-open admits trial traffic, so only fully open excludes the
		// model from routing.
		m.CircuitBreakerOpen = to == gobreaker.StateOpen
	}
	r.mu.Unlock()
	r.logger.Info("circuit breaker state changed", map[string]interface{}{
		"model": name,
		"from":  from.String(),
		"to":    to.String(),
	})
}

// Execute runs fn under the model's circuit breaker. A success closes the
// breaker and resets its failure count; consecutive failures trip it.
func (r *Registry) Execute(modelID string, fn func() (interface{}, error)) (interface{}, error) {
	r.mu.RLock()
	cb, ok := r.breakers[modelID]
	r.mu.RUnlock()
	if !ok {
		return fn()
	}
	return cb.Execute(fn)
}

// Get returns the model config for id.
func (r *Registry) Get(id string) (*models.ModelConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	return m, ok
}

// List returns the model configs in configured order.
func (r *Registry) List() []*models.ModelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.ModelConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}

// UpdateModelHealth sets a model's health flags.
func (r *Registry) UpdateModelHealth(id string, healthy, circuitBreakerOpen bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.models[id]; ok {
		m.Healthy = healthy
		m.CircuitBreakerOpen = circuitBreakerOpen
		r.logger.Info("model health updated", map[string]interface{}{
			"model":                id,
			"healthy":              healthy,
			"circuit_breaker_open": circuitBreakerOpen,
		})
	}
}

// UpdateModelLoad sets a model's load fraction in [0,1].
func (r *Registry) UpdateModelLoad(id string, load float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.models[id]; ok {
		m.CurrentLoad = load
	}
}
