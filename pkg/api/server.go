// Package api exposes the gateway over HTTP: the inference endpoints and
// the management surface (models, cache, metrics, health).
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TensorScholar/cost-optimized-inference/pkg/common/config"
	"github.com/TensorScholar/cost-optimized-inference/pkg/engine"
	"github.com/TensorScholar/cost-optimized-inference/pkg/kvstore"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

// Server hosts the HTTP surface over one engine.
type Server struct {
	engine   *engine.Engine
	settings *config.Settings
	logger   observability.Logger
	metrics  *observability.InMemoryMetrics

	router  *gin.Engine
	limiter *RateLimiter
	http    *http.Server
}

// NewServer builds the HTTP server. store may be nil (local rate limiting
// only).
func NewServer(eng *engine.Engine, settings *config.Settings, store kvstore.Store, logger observability.Logger, metrics *observability.InMemoryMetrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger.WithPrefix("api")))

	limitCfg := DefaultRateLimitConfig()
	if settings.RateLimitRPS > 0 {
		limitCfg.RPS = settings.RateLimitRPS
	}
	if settings.RateLimitBurst > 0 {
		limitCfg.Burst = settings.RateLimitBurst
	}
	limiter := NewRateLimiter(limitCfg, store, logger.WithPrefix("ratelimit"))

	s := &Server{
		engine:   eng,
		settings: settings,
		logger:   logger,
		metrics:  metrics,
		router:   router,
		limiter:  limiter,
	}
	s.registerRoutes()
	return s
}

// Router exposes the gin engine; used by tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	v1 := s.router.Group("/v1")
	v1.Use(s.limiter.Middleware())
	{
		v1.POST("/inference", s.handleInference)
		v1.POST("/batch", s.handleBatch)
		v1.GET("/models", s.handleListModels)
		v1.GET("/cache/stats", s.handleCacheStats)
		v1.DELETE("/cache", s.handleCacheInvalidate)
		v1.GET("/metrics/summary", s.handleMetricsSummary)
		v1.GET("/metrics/cache", s.handleMetricsCache)
		v1.GET("/metrics/cost", s.handleMetricsCost)
	}

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/health/ready", s.handleHealthReady)
	s.router.GET("/health/live", s.handleHealthLive)
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.settings.APIHost, s.settings.APIPort)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", map[string]interface{}{"addr": addr})
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.limiter.Stop()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.http.Shutdown(shutdownCtx)
		s.limiter.Stop()
		return err
	}
}
