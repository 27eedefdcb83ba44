package engine

import (
	"context"
	"time"

	gwerrors "github.com/TensorScholar/cost-optimized-inference/pkg/errors"
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

// Infer runs the full pipeline for one request: cache probe, routing,
// batch admission, and result delivery. Cache and attribution failures are
// never surfaced to the caller.
func (e *Engine) Infer(ctx context.Context, req *models.Request) (*models.Response, error) {
	ctx, span := observability.StartSpan(ctx, "engine.infer")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.ClassInvalidRequest, "invalid request")
	}
	observability.SpanAttributes(ctx, map[string]string{
		"request_id": req.ID.String(),
		"priority":   string(req.Priority),
	})
	start := time.Now()
	e.metrics.IncrementCounter("requests_total", 1)

	var prefixHint *models.PrefixCacheEntry
	if req.UseCache {
		result := e.hierarchy.Get(ctx, req)
		if result.Response != nil {
			e.attributeCacheHit(req, result.Response)
			return result.Response, nil
		}
		prefixHint = result.PrefixHint
	}

	decision, err := e.route(req)
	if err != nil {
		return nil, err
	}
	observability.SpanAttributes(ctx, map[string]string{
		"selected_model": decision.SelectedModel.ID,
	})

	worker, ok := e.workers[decision.SelectedModel.ID]
	if !ok {
		return nil, gwerrors.Newf(gwerrors.ClassNoHealthyBackend,
			"no backend wired for model %s", decision.SelectedModel.ID)
	}

	p := &pendingRequest{
		req:        req,
		decision:   decision,
		prefixHint: prefixHint,
		enqueuedAt: time.Now(),
		done:       make(chan dispatchResult, 1),
	}
	e.pendingMu.Lock()
	e.pending[req.ID] = p
	e.pendingMu.Unlock()

	if err := worker.batcher.AddRequest(ctx, req); err != nil {
		e.pendingMu.Lock()
		delete(e.pending, req.ID)
		e.pendingMu.Unlock()
		return nil, gwerrors.Wrap(err, gwerrors.ClassInternal, "batch admission failed")
	}

	select {
	case result := <-p.done:
		if result.err != nil {
			return nil, result.err
		}
		e.metrics.RecordLatency("infer", time.Since(start))
		return result.resp, nil
	case <-ctx.Done():
		// The caller disconnected; the batch still completes and fills the
		// caches, the buffered done channel absorbs the late delivery.
		return nil, gwerrors.Wrap(ctx.Err(), gwerrors.ClassInternal, "request canceled")
	}
}

// route honors a valid preferred model before consulting the router.
func (e *Engine) route(req *models.Request) (*models.RoutingDecision, error) {
	decision, err := e.router.Route(req)
	if err != nil {
		return nil, err
	}
	if req.PreferredModel == "" || decision.SelectedModel.ID == req.PreferredModel {
		return decision, nil
	}
	preferred, ok := e.registry.Get(req.PreferredModel)
	if !ok || !preferred.IsAvailable() {
		return decision, nil
	}
	// Keep the router's alternatives; the old selection becomes the first
	// fallback.
	fallbacks := append([]*models.ModelConfig{decision.SelectedModel}, decision.FallbackModels...)
	if len(fallbacks) > 3 {
		fallbacks = fallbacks[:3]
	}
	decision.SelectedModel = preferred
	decision.FallbackModels = fallbacks
	decision.DecisionReason = "Caller-preferred model: " + preferred.ID
	return decision, nil
}

// Stream routes the request and streams tokens straight from the backend,
// bypassing the batcher.
func (e *Engine) Stream(ctx context.Context, req *models.Request) (<-chan string, error) {
	if err := req.Validate(); err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.ClassInvalidRequest, "invalid request")
	}
	decision, err := e.route(req)
	if err != nil {
		return nil, err
	}
	worker, ok := e.workers[decision.SelectedModel.ID]
	if !ok {
		return nil, gwerrors.Newf(gwerrors.ClassNoHealthyBackend,
			"no backend wired for model %s", decision.SelectedModel.ID)
	}
	return worker.backend.Stream(ctx, req)
}

// WarmUp pushes common prompts through the pipeline so the caches are
// populated before live traffic arrives. Failures are logged and skipped.
func (e *Engine) WarmUp(ctx context.Context, prompts []string) int {
	warmed := 0
	for _, prompt := range prompts {
		req, err := models.NewRequest(prompt, nil, models.DefaultParameters())
		if err != nil {
			continue
		}
		req.Priority = models.PriorityBatch
		if _, err := e.Infer(ctx, req); err != nil {
			e.logger.Warn("warmup prompt failed", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		warmed++
	}
	e.logger.Info("cache warmup complete", map[string]interface{}{
		"prompts": len(prompts),
		"warmed":  warmed,
	})
	return warmed
}

func (e *Engine) attributeCacheHit(req *models.Request, resp *models.Response) {
	saved := e.calculator.CalculateByID(resp.ModelUsed, 0, resp.CacheInfo.TokensSaved)
	if saved == 0 {
		if m, ok := e.registry.Get(resp.ModelUsed); ok {
			saved = m.CalculateCost(0, resp.CacheInfo.TokensSaved)
		}
	}
	e.attributor.Attribute(&models.CostAttribution{
		RequestID:    req.ID,
		UserID:       req.Metadata.UserID,
		FeatureName:  req.Metadata.FeatureName,
		ExperimentID: req.Metadata.ExperimentID,
		Application:  req.Metadata.Application,
		ModelUsed:    resp.ModelUsed,
		Breakdown: models.CostBreakdown{
			CacheSavings: saved,
		},
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		CacheHits:    1,
		LatencyMS:    resp.LatencyMS,
	})
	e.metrics.IncrementCounter("cache_hit_responses", 1)
}
