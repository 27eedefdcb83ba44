package caching

import (
	"sort"
	"strings"
	"sync"

	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

// PrefixCache tracks reusable prompt prefixes so backends can reuse their
// KV-cache state. Lookup is longest-match: entries are scanned in
// descending prefix length and the first prefix of the probe text wins.
type PrefixCache struct {
	mu         sync.Mutex
	maxEntries int
	byHash     map[string]*models.PrefixCacheEntry
	ordered    []*models.PrefixCacheEntry // sorted by PrefixLength descending

	hits      uint64
	misses    uint64
	evictions uint64

	logger observability.Logger
}

// NewPrefixCache creates a prefix cache holding at most maxEntries.
func NewPrefixCache(maxEntries int, logger observability.Logger) *PrefixCache {
	return &PrefixCache{
		maxEntries: maxEntries,
		byHash:     make(map[string]*models.PrefixCacheEntry),
		logger:     logger,
	}
}

// GetPrefix returns the longest stored prefix of text, or nil.
func (c *PrefixCache) GetPrefix(text string) *models.PrefixCacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.ordered {
		if strings.HasPrefix(text, entry.PrefixText) {
			entry.Touch()
			c.hits++
			c.logger.Debug("prefix cache hit", map[string]interface{}{
				"prefix_hash":   entry.PrefixHash,
				"prefix_length": entry.PrefixLength,
				"usage_count":   entry.UsageCount(),
			})
			return entry
		}
	}
	c.misses++
	return nil
}

// SetPrefix stores a prefix with its optional backend KV handle, evicting
// the least-used entry when over capacity. Among entries with equal usage
// counts the least recently used one goes.
func (c *PrefixCache) SetPrefix(prefixText string, kvStates any) {
	entry := models.NewPrefixCacheEntry(prefixText, kvStates)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byHash[entry.PrefixHash]; exists {
		return
	}
	c.byHash[entry.PrefixHash] = entry
	c.ordered = append(c.ordered, entry)
	sort.SliceStable(c.ordered, func(i, j int) bool {
		return c.ordered[i].PrefixLength > c.ordered[j].PrefixLength
	})

	for len(c.byHash) > c.maxEntries {
		c.evictLFULocked()
	}
}

func (c *PrefixCache) evictLFULocked() {
	var victim *models.PrefixCacheEntry
	for _, e := range c.byHash {
		if victim == nil || e.UsageCount() < victim.UsageCount() ||
			(e.UsageCount() == victim.UsageCount() && e.LastUsed().Before(victim.LastUsed())) {
			victim = e
		}
	}
	if victim == nil {
		return
	}
	delete(c.byHash, victim.PrefixHash)
	for i, e := range c.ordered {
		if e == victim {
			c.ordered = append(c.ordered[:i], c.ordered[i+1:]...)
			break
		}
	}
	c.evictions++
	c.logger.Debug("prefix cache evicted", map[string]interface{}{
		"prefix_hash": victim.PrefixHash,
	})
}

// Invalidate removes entries whose prefix text contains pattern; empty
// pattern clears everything. Returns the number deleted.
func (c *PrefixCache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" {
		count := len(c.byHash)
		c.byHash = make(map[string]*models.PrefixCacheEntry)
		c.ordered = nil
		return count
	}
	removed := 0
	kept := c.ordered[:0]
	for _, e := range c.ordered {
		if strings.Contains(e.PrefixText, pattern) {
			delete(c.byHash, e.PrefixHash)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	c.ordered = kept
	return removed
}

// Stats returns a snapshot of cache counters, including the cumulative
// tokens saved across stored prefixes.
func (c *PrefixCache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var tokensSaved int64
	for _, e := range c.byHash {
		tokensSaved += int64(e.TokensSavedPerUse * e.UsageCount())
	}
	return models.CacheStats{
		Size:        len(c.byHash),
		Hits:        c.hits,
		Misses:      c.misses,
		HitRate:     models.HitRateOf(c.hits, c.misses),
		Evictions:   c.evictions,
		TokensSaved: tokensSaved,
	}
}
