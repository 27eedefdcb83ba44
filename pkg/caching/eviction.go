// Package caching implements the tiered cache hierarchy: exact-match,
// semantic-similarity, and prefix caches with pluggable eviction policies.
package caching

import (
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
)

// EvictionPolicy selects which entry to drop when a cache is over capacity.
type EvictionPolicy interface {
	Name() models.EvictionPolicyName
	SelectVictim(entries []*models.CacheEntry) *models.CacheEntry
}

// PolicyForName maps a policy name to an implementation, defaulting to LRU.
func PolicyForName(name models.EvictionPolicyName) EvictionPolicy {
	switch name {
	case models.EvictionLFU:
		return LFUPolicy{}
	case models.EvictionTTL:
		return TTLPolicy{}
	case models.EvictionCostAware:
		return CostAwarePolicy{}
	default:
		return LRUPolicy{}
	}
}

// LRUPolicy evicts the entry with the oldest last access.
type LRUPolicy struct{}

func (LRUPolicy) Name() models.EvictionPolicyName { return models.EvictionLRU }

func (LRUPolicy) SelectVictim(entries []*models.CacheEntry) *models.CacheEntry {
	var victim *models.CacheEntry
	for _, e := range entries {
		if victim == nil || e.LastAccessed().Before(victim.LastAccessed()) {
			victim = e
		}
	}
	return victim
}

// LFUPolicy evicts the entry with the fewest accesses.
type LFUPolicy struct{}

func (LFUPolicy) Name() models.EvictionPolicyName { return models.EvictionLFU }

func (LFUPolicy) SelectVictim(entries []*models.CacheEntry) *models.CacheEntry {
	var victim *models.CacheEntry
	for _, e := range entries {
		if victim == nil || e.AccessCount() < victim.AccessCount() {
			victim = e
		}
	}
	return victim
}

// TTLPolicy evicts an expired entry when one exists (oldest expired first),
// otherwise the oldest entry by creation time.
type TTLPolicy struct{}

func (TTLPolicy) Name() models.EvictionPolicyName { return models.EvictionTTL }

func (TTLPolicy) SelectVictim(entries []*models.CacheEntry) *models.CacheEntry {
	var oldestExpired, oldest *models.CacheEntry
	for _, e := range entries {
		if oldest == nil || e.CreatedAt.Before(oldest.CreatedAt) {
			oldest = e
		}
		if e.IsExpired() {
			if oldestExpired == nil || e.CreatedAt.Before(oldestExpired.CreatedAt) {
				oldestExpired = e
			}
		}
	}
	if oldestExpired != nil {
		return oldestExpired
	}
	return oldest
}

// CostAwarePolicy evicts the entry with the smallest realized savings per
// second of residency, breaking ties toward the oldest entry.
type CostAwarePolicy struct{}

func (CostAwarePolicy) Name() models.EvictionPolicyName { return models.EvictionCostAware }

func (CostAwarePolicy) SelectVictim(entries []*models.CacheEntry) *models.CacheEntry {
	const epsilon = 1e-9
	var victim *models.CacheEntry
	var victimScore float64
	for _, e := range entries {
		age := e.AgeSeconds()
		if age < epsilon {
			age = epsilon
		}
		score := e.CostSavings() / age
		switch {
		case victim == nil:
			victim, victimScore = e, score
		case score < victimScore:
			victim, victimScore = e, score
		case score == victimScore && e.CreatedAt.Before(victim.CreatedAt):
			victim = e
		}
	}
	return victim
}
