package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CacheStrategy tags which tier created a cache entry.
type CacheStrategy string

// Cache storage strategies.
const (
	CacheStrategyExact    CacheStrategy = "exact"
	CacheStrategySemantic CacheStrategy = "semantic"
	CacheStrategyPrefix   CacheStrategy = "prefix"
)

// EvictionPolicyName selects a pluggable eviction policy.
type EvictionPolicyName string

// Eviction policy names.
const (
	EvictionLRU       EvictionPolicyName = "lru"
	EvictionLFU       EvictionPolicyName = "lfu"
	EvictionTTL       EvictionPolicyName = "ttl"
	EvictionCostAware EvictionPolicyName = "cost_aware"
)

// CacheKey is the composite key of an exact cache entry.
type CacheKey struct {
	ContentHash string  `json:"content_hash"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// CacheKeyFromRequest derives the composite key for a request.
func CacheKeyFromRequest(r *Request) CacheKey {
	sum := sha256.Sum256([]byte(r.Text()))
	model := r.PreferredModel
	if model == "" {
		model = "default"
	}
	return CacheKey{
		ContentHash: hex.EncodeToString(sum[:])[:16],
		Model:       model,
		Temperature: r.Parameters.Temperature,
		MaxTokens:   r.Parameters.MaxTokens,
	}
}

// String renders the composite key as a single map key.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s:%g:%d", k.ContentHash, k.Model, k.Temperature, k.MaxTokens)
}

// CacheEntry is a stored response. All fields are fixed at creation except
// the access bookkeeping, which is mutated only through Touch by the owning
// cache (under that cache's lock).
type CacheEntry struct {
	ID  uuid.UUID `json:"id"`
	Key CacheKey  `json:"key"`

	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Embedding []float32 `json:"-"`

	ModelUsed        string  `json:"model_used"`
	TokensPrompt     int     `json:"tokens_prompt"`
	TokensCompletion int     `json:"tokens_completion"`
	CostUSD          float64 `json:"cost_usd"`

	Strategy        CacheStrategy `json:"strategy"`
	CreatedAt       time.Time     `json:"created_at"`
	TTLSeconds      int           `json:"ttl_seconds,omitempty"` // 0 means no expiry
	ConfidenceScore float64       `json:"confidence_score"`

	lastAccessed time.Time
	accessCount  int
}

// NewCacheEntry builds an entry with bookkeeping initialized.
func NewCacheEntry(key CacheKey, prompt, response string) *CacheEntry {
	now := time.Now().UTC()
	return &CacheEntry{
		ID:              uuid.New(),
		Key:             key,
		Prompt:          prompt,
		Response:        response,
		CreatedAt:       now,
		ConfidenceScore: 1.0,
		lastAccessed:    now,
	}
}

// Touch records an access. Callers must hold the owning cache's lock.
func (e *CacheEntry) Touch() {
	e.lastAccessed = time.Now().UTC()
	e.accessCount++
}

// LastAccessed returns the last access time.
func (e *CacheEntry) LastAccessed() time.Time { return e.lastAccessed }

// AccessCount returns how many times the entry was served.
func (e *CacheEntry) AccessCount() int { return e.accessCount }

// IsExpired reports whether the entry's TTL has elapsed.
func (e *CacheEntry) IsExpired() bool {
	if e.TTLSeconds <= 0 {
		return false
	}
	return e.AgeSeconds() > float64(e.TTLSeconds)
}

// AgeSeconds is the entry age in seconds.
func (e *CacheEntry) AgeSeconds() float64 {
	return time.Since(e.CreatedAt).Seconds()
}

// CostSavings is the cumulative dollar value served from this entry.
func (e *CacheEntry) CostSavings() float64 {
	return e.CostUSD * float64(e.accessCount)
}

// PrefixCacheEntry records a reusable prompt prefix. KVStates is an opaque
// backend handle (a KV-cache reference for vLLM/TGI style backends) and may
// be nil. Usage bookkeeping is mutated only by the owning prefix cache.
type PrefixCacheEntry struct {
	PrefixHash   string `json:"prefix_hash"`
	PrefixText   string `json:"prefix_text"`
	PrefixLength int    `json:"prefix_length"`

	KVStates any `json:"-"`

	TokensSavedPerUse int `json:"tokens_saved_per_use"`

	usageCount int
	lastUsed   time.Time
}

// NewPrefixCacheEntry builds a prefix entry keyed by the first 16 hex chars
// of the prefix's SHA-256.
func NewPrefixCacheEntry(prefixText string, kvStates any) *PrefixCacheEntry {
	sum := sha256.Sum256([]byte(prefixText))
	return &PrefixCacheEntry{
		PrefixHash:        hex.EncodeToString(sum[:])[:16],
		PrefixText:        prefixText,
		PrefixLength:      len(prefixText),
		KVStates:          kvStates,
		TokensSavedPerUse: len(prefixText) / 4,
		lastUsed:          time.Now().UTC(),
	}
}

// Touch records a use. Callers must hold the owning cache's lock.
func (e *PrefixCacheEntry) Touch() {
	e.lastUsed = time.Now().UTC()
	e.usageCount++
}

// UsageCount returns how many times this prefix matched.
func (e *PrefixCacheEntry) UsageCount() int { return e.usageCount }

// LastUsed returns the last match time.
func (e *PrefixCacheEntry) LastUsed() time.Time { return e.lastUsed }

// CacheStats is a point-in-time snapshot of one cache tier.
type CacheStats struct {
	Size        int     `json:"size"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Evictions   uint64  `json:"evictions"`
	TokensSaved int64   `json:"tokens_saved,omitempty"`
}

// HitRateOf computes hits/(hits+misses), zero when there were no lookups.
func HitRateOf(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
