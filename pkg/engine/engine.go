// Package engine wires the gateway subsystems and runs the per-request
// orchestration pipeline: cache lookup, routing, batch admission, dispatch,
// cache fill, and cost attribution.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TensorScholar/cost-optimized-inference/pkg/backends"
	"github.com/TensorScholar/cost-optimized-inference/pkg/batching"
	"github.com/TensorScholar/cost-optimized-inference/pkg/caching"
	"github.com/TensorScholar/cost-optimized-inference/pkg/common/config"
	"github.com/TensorScholar/cost-optimized-inference/pkg/cost"
	"github.com/TensorScholar/cost-optimized-inference/pkg/embedding"
	gwerrors "github.com/TensorScholar/cost-optimized-inference/pkg/errors"
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
	"github.com/TensorScholar/cost-optimized-inference/pkg/routing"
	"github.com/TensorScholar/cost-optimized-inference/pkg/vectorstore"
)

// drainPollInterval is how long a drain loop sleeps when its batcher has
// nothing ready.
const drainPollInterval = 2 * time.Millisecond

// Options carries everything needed to assemble an Engine.
type Options struct {
	Settings *config.Settings
	Logger   observability.Logger
	Metrics  observability.MetricsClient

	EmbeddingProvider embedding.Provider
	VectorStore       vectorstore.Store

	Models   []*models.ModelConfig
	Backends map[string]backends.ModelBackend // keyed by model id
}

// modelWorker pairs one backend with its batcher and drain loop.
type modelWorker struct {
	model   *models.ModelConfig
	batcher batching.Batcher
	backend backends.ModelBackend
}

type dispatchResult struct {
	resp *models.Response
	err  error
}

type pendingRequest struct {
	req        *models.Request
	decision   *models.RoutingDecision
	prefixHint *models.PrefixCacheEntry
	enqueuedAt time.Time
	done       chan dispatchResult
}

// Engine owns one instance of each collaborator and serves concurrent
// Infer calls. Start launches one drain loop per model backend; Stop tears
// them down in reverse wiring order.
type Engine struct {
	settings *config.Settings
	logger   observability.Logger
	metrics  observability.MetricsClient

	hierarchy *caching.Hierarchy
	registry  *routing.Registry
	router    routing.Router

	attributor *cost.Attributor
	calculator *cost.Calculator
	optimizer  *cost.Optimizer

	workers map[string]*modelWorker

	pendingMu sync.Mutex
	pending   map[uuid.UUID]*pendingRequest

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New assembles an engine from the given options.
func New(opts Options) (*Engine, error) {
	if opts.Settings == nil {
		opts.Settings = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewStandardLogger("engine")
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewNoopMetricsClient()
	}
	s := opts.Settings

	strategy := models.BatchStrategy{
		MinBatchSize:           s.BatchMinSize,
		MaxBatchSize:           s.BatchMaxSize,
		MaxWaitMS:              s.BatchMaxWaitMS,
		TargetLatencyP95MS:     s.BatchTargetLatencyP95,
		EnableSemanticGrouping: s.EnableSemanticGrouping,
		SimilarityThreshold:    s.CacheSimilarityThreshold,
		PriorityLanes:          s.PriorityLanes,
		ExpressMaxWaitMS:       10,
	}
	if err := strategy.Validate(); err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.ClassInvalidRequest, "invalid batch strategy")
	}

	exact := caching.NewExactCache(s.CacheMaxSize, opts.Logger.WithPrefix("cache.exact"))
	var semantic *caching.SemanticCache
	if s.SemanticCacheEnabled && opts.EmbeddingProvider != nil && opts.VectorStore != nil {
		semCfg := caching.DefaultSemanticConfig()
		semCfg.SimilarityThreshold = s.CacheSimilarityThreshold
		semCfg.MaxCacheSize = s.CacheMaxSize
		semCfg.VectorDimension = opts.EmbeddingProvider.Dimension()
		semantic = caching.NewSemanticCache(semCfg, opts.EmbeddingProvider, opts.VectorStore, opts.Logger.WithPrefix("cache.semantic"))
	}
	var prefix *caching.PrefixCache
	if s.PrefixCacheEnabled {
		prefix = caching.NewPrefixCache(1000, opts.Logger.WithPrefix("cache.prefix"))
	}
	hierarchy := caching.NewHierarchy(exact, semantic, prefix, opts.Logger.WithPrefix("cache"), opts.Metrics)

	registry := routing.NewRegistry(opts.Models, opts.Logger.WithPrefix("routing"))
	estimator := routing.NewComplexityEstimator()
	var router routing.Router
	switch models.RoutingStrategy(s.RoutingStrategy) {
	case models.RouteRoundRobin:
		router = routing.NewLoadBalancedRouter(registry, opts.Logger.WithPrefix("routing"))
	case models.RouteBalanced:
		router = routing.NewCostAwareRouter(registry, estimator, 0.5, opts.Logger.WithPrefix("routing"))
	case models.RouteLatencyOptimal:
		// Latency bias maps to quality-heavy scoring.
		router = routing.NewCostAwareRouter(registry, estimator, 0.2, opts.Logger.WithPrefix("routing"))
	default:
		router = routing.NewCostAwareRouter(registry, estimator, s.CostWeight, opts.Logger.WithPrefix("routing"))
	}

	e := &Engine{
		settings:   s,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		hierarchy:  hierarchy,
		registry:   registry,
		router:     router,
		attributor: cost.NewAttributor(opts.Logger.WithPrefix("cost")),
		calculator: cost.NewCalculator(),
		optimizer:  cost.NewOptimizer(opts.Logger.WithPrefix("cost")),
		workers:    make(map[string]*modelWorker, len(opts.Backends)),
		pending:    make(map[uuid.UUID]*pendingRequest),
		stopCh:     make(chan struct{}),
	}

	for _, m := range opts.Models {
		backend, ok := opts.Backends[m.ID]
		if !ok {
			continue
		}
		var batcher batching.Batcher
		switch {
		case strategy.EnableSemanticGrouping && opts.EmbeddingProvider != nil:
			batcher = batching.NewSemanticBatcher(strategy, opts.EmbeddingProvider, opts.Logger.WithPrefix("batch."+m.ID))
		case strategy.PriorityLanes:
			batcher = batching.NewPriorityBatcher(strategy, opts.Logger.WithPrefix("batch."+m.ID))
		default:
			batcher = batching.NewAdaptiveBatcher(strategy, opts.Logger.WithPrefix("batch."+m.ID))
		}
		e.workers[m.ID] = &modelWorker{model: m, batcher: batcher, backend: backend}
	}
	return e, nil
}

// Start launches the drain loops. Safe to call once; later calls no-op.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		for _, w := range e.workers {
			w := w
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.drainLoop(w)
			}()
		}
		e.logger.Info("engine started", map[string]interface{}{
			"workers": len(e.workers),
		})
	})
}

// Stop halts the drain loops and waits for in-flight batches to finish.
func (e *Engine) Stop(ctx context.Context) {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		e.wg.Wait()
		e.logger.Info("engine stopped", nil)
	})
}

// Registry exposes the model registry for the management API.
func (e *Engine) Registry() *routing.Registry { return e.registry }

// CacheStats returns per-tier cache statistics.
func (e *Engine) CacheStats() map[string]models.CacheStats { return e.hierarchy.Stats() }

// InvalidateCache removes matching cache entries across all tiers.
func (e *Engine) InvalidateCache(ctx context.Context, pattern string) int {
	return e.hierarchy.Invalidate(ctx, pattern)
}

// QueueStats returns per-model batcher statistics.
func (e *Engine) QueueStats() map[string]batching.QueueStats {
	stats := make(map[string]batching.QueueStats, len(e.workers))
	for id, w := range e.workers {
		stats[id] = w.batcher.QueueStats()
	}
	return stats
}

// CostReport aggregates attributions and derives recommendations.
func (e *Engine) CostReport() (models.CostMetrics, []models.CostDriver, []string) {
	metrics := e.attributor.Aggregate(time.Time{}, time.Time{})
	drivers := e.optimizer.TopCostDrivers(metrics, 10)
	recommendations := e.optimizer.Recommend(metrics)
	return metrics, drivers, recommendations
}

// UserCosts returns the accumulated net cost for one user.
func (e *Engine) UserCosts(userID string) float64 { return e.attributor.UserCosts(userID) }

// Healthy reports whether at least one backend passes its health check.
func (e *Engine) Healthy(ctx context.Context) bool {
	for _, w := range e.workers {
		if w.backend.HealthCheck(ctx) {
			return true
		}
	}
	return false
}
