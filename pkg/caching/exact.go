package caching

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

// DefaultNominalBackendLatencyMS is the latency a cache hit is credited
// with saving when no per-backend measurement is configured.
const DefaultNominalBackendLatencyMS = 500

// ExactCache serves byte-identical repeats of earlier requests, keyed by
// the request cache key.
type ExactCache struct {
	mu               sync.RWMutex
	maxEntries       int
	entries          map[string]*models.CacheEntry
	policy           EvictionPolicy
	nominalLatencyMS int

	hits      uint64
	misses    uint64
	evictions uint64

	logger observability.Logger
}

// ExactCacheOption configures an ExactCache.
type ExactCacheOption func(*ExactCache)

// WithEvictionPolicy overrides the default LRU policy.
func WithEvictionPolicy(p EvictionPolicy) ExactCacheOption {
	return func(c *ExactCache) { c.policy = p }
}

// WithNominalLatency sets the latency-saved credit for hits, in ms.
func WithNominalLatency(ms int) ExactCacheOption {
	return func(c *ExactCache) { c.nominalLatencyMS = ms }
}

// NewExactCache creates an exact-match cache holding at most maxEntries.
func NewExactCache(maxEntries int, logger observability.Logger, opts ...ExactCacheOption) *ExactCache {
	c := &ExactCache{
		maxEntries:       maxEntries,
		entries:          make(map[string]*models.CacheEntry),
		policy:           LRUPolicy{},
		nominalLatencyMS: DefaultNominalBackendLatencyMS,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached response for the request, or (nil, false) on miss.
// Expired entries count as misses and stay in place until evicted.
func (c *ExactCache) Get(ctx context.Context, req *models.Request) (*models.Response, bool) {
	key := req.CacheKey()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.IsExpired() {
		c.misses++
		return nil, false
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
			Source:          models.CacheSourceExact,
			SimilarityScore: 1.0,
			TokensSaved:     entry.TokensCompletion,
			LatencySavedMS:  c.nominalLatencyMS,
		},
		LatencyMS: 1,
		CreatedAt: time.Now().UTC(),
	}
	c.logger.Debug("exact cache hit", map[string]interface{}{
		"request_id":   req.ID.String(),
		"cache_key":    key[:16],
		"tokens_saved": entry.TokensCompletion,
	})
	return resp, true
}

// Set stores the response under the request's cache key, evicting per the
// configured policy when over capacity.
func (c *ExactCache) Set(ctx context.Context, req *models.Request, resp *models.Response) error {
	key := req.CacheKey()
	entry := models.NewCacheEntry(models.CacheKeyFromRequest(req), req.Text(), resp.Text)
	entry.ModelUsed = resp.ModelUsed
	entry.TokensPrompt = resp.Usage.PromptTokens
	entry.TokensCompletion = resp.Usage.CompletionTokens
	entry.CostUSD = resp.Usage.CostUSD
	entry.Strategy = models.CacheStrategyExact
	entry.TTLSeconds = req.CacheTTLSeconds

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry
	for len(c.entries) > c.maxEntries {
		c.evictLocked()
	}
	return nil
}

func (c *ExactCache) evictLocked() {
	if len(c.entries) == 0 {
		return
	}
	candidates := make([]*models.CacheEntry, 0, len(c.entries))
	byEntry := make(map[*models.CacheEntry]string, len(c.entries))
	for k, e := range c.entries {
		candidates = append(candidates, e)
		byEntry[e] = k
	}
	victim := c.policy.SelectVictim(candidates)
	if victim == nil {
		return
	}
	delete(c.entries, byEntry[victim])
	c.evictions++
	c.logger.Debug("exact cache evicted", map[string]interface{}{
		"cache_key": byEntry[victim][:16],
		"policy":    string(c.policy.Name()),
	})
}

// Invalidate removes entries whose prompt or response contains pattern; an
// empty pattern clears everything. Returns the number deleted.
func (c *ExactCache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" {
		count := len(c.entries)
		c.entries = make(map[string]*models.CacheEntry)
		return count
	}
	removed := 0
	for k, e := range c.entries {
		if strings.Contains(e.Prompt, pattern) || strings.Contains(e.Response, pattern) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of cache counters.
func (c *ExactCache) Stats() models.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return models.CacheStats{
		Size:      len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		HitRate:   models.HitRateOf(c.hits, c.misses),
		Evictions: c.evictions,
	}
}
