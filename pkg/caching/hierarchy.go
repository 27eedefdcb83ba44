package caching

import (
	"context"
	"time"

	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

// Result is the outcome of a hierarchy probe. Response is non-nil on a
// full hit (exact or semantic). PrefixHint is set when only the prefix tier
// matched; it is not a response but a batching hint for KV-cache reuse.
type Result struct {
	Response   *models.Response
	PrefixHint *models.PrefixCacheEntry
	ProbeTime  time.Duration
}

// Hierarchy probes the cache tiers in order exact, semantic, prefix; the
// first full hit short-circuits. Tier errors are logged and treated as
// misses so a cache failure is never user-visible.
type Hierarchy struct {
	exact    *ExactCache
	semantic *SemanticCache
	prefix   *PrefixCache

	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewHierarchy assembles the cache hierarchy. The semantic and prefix
// tiers may be nil when disabled.
func NewHierarchy(exact *ExactCache, semantic *SemanticCache, prefix *PrefixCache, logger observability.Logger, metrics observability.MetricsClient) *Hierarchy {
	return &Hierarchy{
		exact:    exact,
		semantic: semantic,
		prefix:   prefix,
		logger:   logger,
		metrics:  metrics,
	}
}

// Get probes the tiers for the request. The returned Result's ProbeTime is
// the measured wall time of the whole probe.
func (h *Hierarchy) Get(ctx context.Context, req *models.Request) Result {
	start := time.Now()
	defer func() {
		h.metrics.RecordLatency("cache_hierarchy_probe", time.Since(start))
	}()

	if resp, ok := h.exact.Get(ctx, req); ok {
		h.metrics.IncrementCounter("cache_hits_exact", 1)
		resp.LatencyMS = int(time.Since(start).Milliseconds())
		return Result{Response: resp, ProbeTime: time.Since(start)}
	}

	if h.semantic != nil {
		resp, ok, err := h.semantic.Get(ctx, req)
		if err != nil {
			h.logger.Warn("semantic cache probe failed", map[string]interface{}{
				"request_id": req.ID.String(),
				"error":      err.Error(),
			})
		} else if ok {
			h.metrics.IncrementCounter("cache_hits_semantic", 1)
			resp.LatencyMS = int(time.Since(start).Milliseconds())
			return Result{Response: resp, ProbeTime: time.Since(start)}
		}
	}

	if h.prefix != nil {
		if entry := h.prefix.GetPrefix(req.Text()); entry != nil {
			h.metrics.IncrementCounter("cache_hits_prefix", 1)
			return Result{PrefixHint: entry, ProbeTime: time.Since(start)}
		}
	}

	h.metrics.IncrementCounter("cache_misses", 1)
	return Result{ProbeTime: time.Since(start)}
}

// Store inserts the response into every tier it is eligible for. Errors
// are logged and swallowed.
func (h *Hierarchy) Store(ctx context.Context, req *models.Request, resp *models.Response) {
	if err := h.exact.Set(ctx, req, resp); err != nil {
		h.logger.Warn("exact cache store failed", map[string]interface{}{
			"request_id": req.ID.String(),
			"error":      err.Error(),
		})
	}
	if h.semantic != nil {
		if err := h.semantic.Set(ctx, req, resp); err != nil {
			h.logger.Warn("semantic cache store failed", map[string]interface{}{
				"request_id": req.ID.String(),
				"error":      err.Error(),
			})
		}
	}
}

// StorePrefix records a reusable prompt prefix.
func (h *Hierarchy) StorePrefix(prefixText string, kvStates any) {
	if h.prefix == nil {
		return
	}
	h.prefix.SetPrefix(prefixText, kvStates)
}

// Invalidate removes matching entries from every tier and returns the
// total deleted. Empty pattern clears everything.
func (h *Hierarchy) Invalidate(ctx context.Context, pattern string) int {
	count := h.exact.Invalidate(pattern)
	if h.semantic != nil {
		count += h.semantic.Invalidate(ctx, pattern)
	}
	if h.prefix != nil {
		count += h.prefix.Invalidate(pattern)
	}
	h.logger.Info("cache invalidated", map[string]interface{}{
		"pattern": pattern,
		"count":   count,
	})
	return count
}

// Stats returns per-tier snapshots keyed by tier name.
func (h *Hierarchy) Stats() map[string]models.CacheStats {
	stats := map[string]models.CacheStats{
		"exact": h.exact.Stats(),
	}
	if h.semantic != nil {
		stats["semantic"] = h.semantic.Stats()
	}
	if h.prefix != nil {
		stats["prefix"] = h.prefix.Stats()
	}
	return stats
}
