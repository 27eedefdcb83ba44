package caching

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TensorScholar/cost-optimized-inference/pkg/embedding"
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
	"github.com/TensorScholar/cost-optimized-inference/pkg/vectorstore"
)

// SemanticConfig configures the semantic cache tier.
type SemanticConfig struct {
	Enabled             bool
	SimilarityThreshold float64
	MaxDistance         float64
	VectorDimension     int
	MaxCacheSize        int
	NominalLatencyMS    int
}

// DefaultSemanticConfig returns the stock semantic cache configuration.
func DefaultSemanticConfig() SemanticConfig {
	return SemanticConfig{
		Enabled:             true,
		SimilarityThreshold: 0.90,
		MaxDistance:         0.15,
		VectorDimension:     embedding.DefaultDimension,
		MaxCacheSize:        10000,
		NominalLatencyMS:    DefaultNominalBackendLatencyMS,
	}
}

// SemanticCache serves near-duplicate requests by embedding similarity.
// The entry map and the vector store are kept consistent: every entry id
// present in one is present in the other.
type SemanticCache struct {
	config   SemanticConfig
	provider embedding.Provider
	store    vectorstore.Store

	mu      sync.Mutex
	entries map[string]*models.CacheEntry

	hits      uint64
	misses    uint64
	evictions uint64

	logger observability.Logger
}

// NewSemanticCache creates a semantic cache over the given provider and
// vector store.
func NewSemanticCache(config SemanticConfig, provider embedding.Provider, store vectorstore.Store, logger observability.Logger) *SemanticCache {
	if config.NominalLatencyMS == 0 {
		config.NominalLatencyMS = DefaultNominalBackendLatencyMS
	}
	return &SemanticCache{
		config:   config,
		provider: provider,
		store:    store,
		entries:  make(map[string]*models.CacheEntry),
		logger:   logger,
	}
}

// Get embeds the request text and searches for a stored entry within the
// similarity threshold. The top search result decides hit or miss.
func (c *SemanticCache) Get(ctx context.Context, req *models.Request) (*models.Response, bool, error) {
	if !c.config.Enabled {
		c.recordMiss()
		return nil, false, nil
	}

	query, err := c.provider.Embed(ctx, req.Text())
	if err != nil {
		c.recordMiss()
		return nil, false, err
	}
	results, err := c.store.Search(ctx, query, 5, c.config.MaxDistance)
	if err != nil {
		c.recordMiss()
		return nil, false, err
	}
	if len(results) == 0 {
		c.recordMiss()
		return nil, false, nil
	}

	best := results[0]
	similarity := 1 - best.Distance
	if similarity < c.config.SimilarityThreshold {
		c.recordMiss()
		c.logger.Debug("semantic cache below threshold", map[string]interface{}{
			"request_id": req.ID.String(),
			"similarity": similarity,
			"threshold":  c.config.SimilarityThreshold,
		})
		return nil, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[best.ID]
	if !ok || entry.IsExpired() {
		c.misses++
		return nil, false, nil
	}
	entry.Touch()
	c.hits++

	resp := &models.Response{
		ID:           uuid.New(),
		RequestID:    req.ID,
		Text:         entry.Response,
		FinishReason: "stop",
		ModelUsed:    entry.ModelUsed,
		Usage: models.Usage{
			PromptTokens:     entry.TokensPrompt,
			CompletionTokens: entry.TokensCompletion,
			TotalTokens:      entry.TokensPrompt + entry.TokensCompletion,
			CachedTokens:     entry.TokensCompletion,
			CostUSD:          0,
		},
		CacheInfo: models.CacheInfo{
			Hit:             true,
			Source:          models.CacheSourceSemantic,
			SimilarityScore: similarity,
			TokensSaved:     entry.TokensCompletion,
			LatencySavedMS:  c.config.NominalLatencyMS,
		},
		LatencyMS: 5,
		CreatedAt: time.Now().UTC(),
	}
	c.logger.Debug("semantic cache hit", map[string]interface{}{
		"request_id": req.ID.String(),
		"entry_id":   best.ID,
		"similarity": similarity,
	})
	return resp, true, nil
}

// Set embeds the request and stores the entry in both the entry map and
// the vector store, evicting by least-recent access when over capacity.
func (c *SemanticCache) Set(ctx context.Context, req *models.Request, resp *models.Response) error {
	if !c.config.Enabled {
		return nil
	}
	text := req.Text()
	vec, err := c.provider.Embed(ctx, text)
	if err != nil {
		return err
	}

	entry := models.NewCacheEntry(models.CacheKeyFromRequest(req), text, resp.Text)
	entry.Embedding = vec
	entry.ModelUsed = resp.ModelUsed
	entry.TokensPrompt = resp.Usage.PromptTokens
	entry.TokensCompletion = resp.Usage.CompletionTokens
	entry.CostUSD = resp.Usage.CostUSD
	entry.Strategy = models.CacheStrategySemantic
	entry.TTLSeconds = req.CacheTTLSeconds
	id := entry.ID.String()

	if err := c.store.Add(ctx, id, vec, map[string]string{
		"model": resp.ModelUsed,
	}); err != nil {
		return err
	}

	c.mu.Lock()
	c.entries[id] = entry
	victims := c.collectVictimsLocked()
	c.mu.Unlock()

	// Vector store deletes happen outside the entry lock; the ids are
	// already gone from the map so no reader can hit them.
	for _, victimID := range victims {
		if err := c.store.Delete(ctx, victimID); err != nil {
			c.logger.Warn("semantic cache evict failed in vector store", map[string]interface{}{
				"entry_id": victimID,
				"error":    err.Error(),
			})
		}
	}
	return nil
}

func (c *SemanticCache) collectVictimsLocked() []string {
	var victims []string
	for len(c.entries) > c.config.MaxCacheSize {
		var lru *models.CacheEntry
		for _, e := range c.entries {
			if lru == nil || e.LastAccessed().Before(lru.LastAccessed()) {
				lru = e
			}
		}
		if lru == nil {
			break
		}
		id := lru.ID.String()
		delete(c.entries, id)
		victims = append(victims, id)
		c.evictions++
	}
	return victims
}

// Invalidate removes entries whose prompt or response contains pattern
// from both the entry map and the vector store; empty pattern clears all.
func (c *SemanticCache) Invalidate(ctx context.Context, pattern string) int {
	c.mu.Lock()
	var removed []string
	if pattern == "" {
		for id := range c.entries {
			removed = append(removed, id)
		}
		c.entries = make(map[string]*models.CacheEntry)
	} else {
		for id, e := range c.entries {
			if strings.Contains(e.Prompt, pattern) || strings.Contains(e.Response, pattern) {
				delete(c.entries, id)
				removed = append(removed, id)
			}
		}
	}
	c.mu.Unlock()

	if pattern == "" {
		if err := c.store.Clear(ctx); err != nil {
			c.logger.Warn("vector store clear failed", map[string]interface{}{"error": err.Error()})
		}
		return len(removed)
	}
	for _, id := range removed {
		if err := c.store.Delete(ctx, id); err != nil {
			c.logger.Warn("vector store delete failed", map[string]interface{}{
				"entry_id": id,
				"error":    err.Error(),
			})
		}
	}
	return len(removed)
}

func (c *SemanticCache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// Stats returns a snapshot of cache counters.
func (c *SemanticCache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CacheStats{
		Size:      len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		HitRate:   models.HitRateOf(c.hits, c.misses),
		Evictions: c.evictions,
	}
}
