package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	gwerrors "github.com/TensorScholar/cost-optimized-inference/pkg/errors"
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/routing"
)

// maxDispatchAttempts bounds a batch's tries across the fallback chain.
const maxDispatchAttempts = 3

// drainLoop repeatedly collects ready batches from the worker's batcher
// and dispatches them until the engine stops.
func (e *Engine) drainLoop(w *modelWorker) {
	ctx := context.Background()
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		batch, err := w.batcher.CollectBatch(ctx)
		if err != nil {
			e.logger.Error("batch collection failed", map[string]interface{}{
				"model": w.model.ID,
				"error": err.Error(),
			})
			continue
		}
		if batch == nil || batch.Size() == 0 {
			select {
			case <-e.stopCh:
				return
			case <-time.After(drainPollInterval):
			}
			continue
		}
		e.dispatchBatch(ctx, w, batch)
	}
}

// dispatchBatch sends a sealed batch to its backend, walking the fallback
// chain with exponential backoff (50/250/1000 ms) on failure, then splits
// the result back into per-request responses, fills the caches, and
// records cost attributions.
func (e *Engine) dispatchBatch(ctx context.Context, w *modelWorker, batch *models.BatchRequest) {
	dispatchStart := time.Now()
	waitMS := int(batch.AgeMS())
	batch.State = models.BatchDispatched

	pendings := e.takePending(batch)
	e.attachPrefixHint(batch, pendings)

	fallbacks := e.fallbacksFor(pendings)
	chain := routing.NewFallbackChain(w.model, fallbacks, maxDispatchAttempts)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.RandomizationFactor = 0
	bo.Multiplier = 5
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = 0

	var responses []*models.Response
	var usedModel *models.ModelConfig
	var lastErr error

	for {
		m := chain.NextModel()
		if m == nil {
			break
		}
		wk, ok := e.workers[m.ID]
		if !ok {
			lastErr = gwerrors.Newf(gwerrors.ClassNoHealthyBackend, "no backend wired for model %s", m.ID)
			continue
		}
		result, err := e.registry.Execute(m.ID, func() (interface{}, error) {
			return wk.backend.InferBatch(ctx, batch)
		})
		if err == nil {
			resps := result.([]*models.Response)
			if len(resps) != batch.Size() {
				err = gwerrors.Newf(gwerrors.ClassBackendError,
					"backend %s returned %d responses for batch of %d", m.ID, len(resps), batch.Size())
			} else {
				responses = resps
				usedModel = m
				break
			}
		}
		lastErr = err
		e.logger.Warn("batch dispatch attempt failed", map[string]interface{}{
			"batch_id": batch.ID.String(),
			"model":    m.ID,
			"error":    err.Error(),
		})
		if !chain.HasMoreAttempts() {
			break
		}
		select {
		case <-time.After(bo.NextBackOff()):
		case <-e.stopCh:
			// Shutdown mid-retry; fail the batch so callers unblock.
			chain = routing.NewFallbackChain(w.model, nil, 0)
		}
	}

	elapsed := time.Since(dispatchStart)

	if responses == nil {
		batch.State = models.BatchFailed
		e.metrics.IncrementCounter("batches_failed", 1)
		failure := gwerrors.Wrap(lastErr, gwerrors.ClassBackendError, "all dispatch attempts exhausted")
		for _, p := range pendings {
			if p == nil {
				continue
			}
			p.done <- dispatchResult{err: failure}
		}
		return
	}

	batch.State = models.BatchCompleted
	e.metrics.IncrementCounter("batches_completed", 1)
	w.batcher.RecordBatchMetrics(models.BatchMetrics{
		BatchID:                batch.ID,
		Size:                   batch.Size(),
		TotalTokens:            batch.EstimatedTokens(),
		ProcessingTimeMS:       int(elapsed.Milliseconds()),
		WaitTimeMS:             waitMS,
		ThroughputTokensPerSec: throughput(batch.EstimatedTokens(), elapsed),
		EfficiencyScore:        float64(batch.Size()) / float64(batch.Strategy.MaxBatchSize),
		Timestamp:              time.Now().UTC(),
	})

	if batch.CommonPrefix != "" {
		e.hierarchy.StorePrefix(batch.CommonPrefix, nil)
	}

	for i, req := range batch.Requests {
		resp := responses[i]
		resp.ModelUsed = usedModel.ID
		resp.Usage.CostUSD = usedModel.CalculateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		resp.InferenceTimeMS = int(elapsed.Milliseconds())

		p := pendings[i]
		if p != nil {
			resp.QueueTimeMS = int(dispatchStart.Sub(p.enqueuedAt).Milliseconds())
		}
		resp.LatencyMS = resp.QueueTimeMS + resp.InferenceTimeMS

		// Cache writes happen only on successful dispatch, so abandoned
		// callers never leave the caches inconsistent.
		if req.UseCache {
			e.hierarchy.Store(ctx, req, resp)
		}
		e.attributeDispatch(req, resp)

		if p != nil {
			p.done <- dispatchResult{resp: resp}
		}
	}
}

// takePending removes and returns the pending entries for the batch
// members, index-aligned with batch.Requests.
func (e *Engine) takePending(batch *models.BatchRequest) []*pendingRequest {
	pendings := make([]*pendingRequest, batch.Size())
	e.pendingMu.Lock()
	for i, req := range batch.Requests {
		if p, ok := e.pending[req.ID]; ok {
			pendings[i] = p
			delete(e.pending, req.ID)
		}
	}
	e.pendingMu.Unlock()
	return pendings
}

// attachPrefixHint promotes a member's prefix-cache hint to the batch when
// the batcher did not already find a common prefix.
func (e *Engine) attachPrefixHint(batch *models.BatchRequest, pendings []*pendingRequest) {
	if batch.CommonPrefix != "" {
		return
	}
	for _, p := range pendings {
		if p != nil && p.prefixHint != nil {
			batch.CommonPrefix = p.prefixHint.PrefixText
			return
		}
	}
}

// fallbacksFor picks the fallback list recorded at routing time; the first
// member's decision stands for the batch, which was assembled per model.
func (e *Engine) fallbacksFor(pendings []*pendingRequest) []*models.ModelConfig {
	for _, p := range pendings {
		if p != nil && p.decision != nil {
			return p.decision.FallbackModels
		}
	}
	return nil
}

func (e *Engine) attributeDispatch(req *models.Request, resp *models.Response) {
	e.attributor.Attribute(&models.CostAttribution{
		RequestID:    req.ID,
		UserID:       req.Metadata.UserID,
		FeatureName:  req.Metadata.FeatureName,
		ExperimentID: req.Metadata.ExperimentID,
		Application:  req.Metadata.Application,
		ModelUsed:    resp.ModelUsed,
		Breakdown: models.CostBreakdown{
			InferenceCost: resp.Usage.CostUSD,
		},
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		LatencyMS:    resp.LatencyMS,
	})
}

func throughput(tokens int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(tokens) / elapsed.Seconds()
}
