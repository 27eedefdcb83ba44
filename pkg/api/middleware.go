package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/TensorScholar/cost-optimized-inference/pkg/kvstore"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

// RateLimitConfig defines rate limiting behavior.
type RateLimitConfig struct {
	RPS   int
	Burst int

	// Cleanup of idle per-client limiters.
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

// DefaultRateLimitConfig returns the stock limits.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:             100,
		Burst:           200,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          time.Hour,
	}
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter applies a global token bucket plus per-client buckets keyed
// by the X-Client-ID header. When a key-value store is wired, per-client
// counting is shared across gateway replicas; otherwise buckets are local.
type RateLimiter struct {
	config RateLimitConfig
	global *rate.Limiter

	mu       sync.Mutex
	limiters map[string]*limiterEntry

	store  kvstore.Store // optional
	logger observability.Logger

	stopCh chan struct{}
}

// NewRateLimiter creates a rate limiter. store may be nil.
func NewRateLimiter(config RateLimitConfig, store kvstore.Store, logger observability.Logger) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		global:   rate.NewLimiter(rate.Limit(config.RPS), config.Burst),
		limiters: make(map[string]*limiterEntry),
		store:    store,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop halts the cleanup goroutine.
func (rl *RateLimiter) Stop() { close(rl.stopCh) }

// Middleware returns the gin handler enforcing the limits.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.global.Allow() {
			rl.reject(c, "rate limit exceeded")
			return
		}
		clientID := c.GetHeader("X-Client-ID")
		if clientID != "" && !rl.allowClient(c, clientID) {
			rl.reject(c, "client rate limit exceeded")
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allowClient(c *gin.Context, clientID string) bool {
	if rl.store != nil {
		key := "ratelimit:" + clientID
		count, err := rl.store.IncrWindow(c.Request.Context(), key, time.Second)
		if err != nil {
			// The shared store being down must not take the gateway with
			// it; fall through to the local bucket.
			rl.logger.Warn("distributed rate limit unavailable", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			return count <= int64(rl.config.RPS)
		}
	}

	rl.mu.Lock()
	entry, ok := rl.limiters[clientID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.config.RPS), rl.config.Burst)}
		rl.limiters[clientID] = entry
	}
	entry.lastAccess = time.Now()
	rl.mu.Unlock()
	return entry.limiter.Allow()
}

func (rl *RateLimiter) reject(c *gin.Context, msg string) {
	c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.RPS))
	c.Header("X-RateLimit-Remaining", "0")
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":       msg,
		"retry_after": 1,
	})
	c.Abort()
}

func (rl *RateLimiter) cleanupLoop() {
	interval := rl.config.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.config.MaxAge)
			rl.mu.Lock()
			for id, entry := range rl.limiters {
				if entry.lastAccess.Before(cutoff) {
					delete(rl.limiters, id)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// RequestLogger logs each request with its latency and status.
func RequestLogger(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request handled", map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		})
	}
}
