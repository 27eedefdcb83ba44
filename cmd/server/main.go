// Command server runs the cost-optimized inference gateway.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/TensorScholar/cost-optimized-inference/pkg/api"
	"github.com/TensorScholar/cost-optimized-inference/pkg/backends"
	"github.com/TensorScholar/cost-optimized-inference/pkg/common/config"
	"github.com/TensorScholar/cost-optimized-inference/pkg/embedding"
	"github.com/TensorScholar/cost-optimized-inference/pkg/engine"
	"github.com/TensorScholar/cost-optimized-inference/pkg/kvstore"
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
	"github.com/TensorScholar/cost-optimized-inference/pkg/vectorstore"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		observability.NewStandardLogger("server").Errorf("failed to load config: %v", err)
		os.Exit(1)
	}

	logger := observability.NewStandardLoggerWithLevel("gateway", observability.LogLevel(settings.LogLevel))
	metrics := observability.NewInMemoryMetrics()

	provider := buildEmbeddingProvider(settings)
	modelConfigs, modelBackends := buildBackends(settings)

	eng, err := engine.New(engine.Options{
		Settings:          settings,
		Logger:            logger,
		Metrics:           metrics,
		EmbeddingProvider: provider,
		VectorStore:       vectorstore.NewMemoryStore(provider.Dimension()),
		Models:            modelConfigs,
		Backends:          modelBackends,
	})
	if err != nil {
		logger.Errorf("failed to build engine: %v", err)
		os.Exit(1)
	}

	var store kvstore.Store
	if settings.RedisURL != "" {
		redisStore, err := kvstore.NewRedisStore(settings.RedisURL, settings.RedisMaxConnections)
		if err != nil {
			logger.Warn("redis unavailable, falling back to local rate limiting", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			store = redisStore
			defer func() { _ = redisStore.Close() }()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Lifecycle order: caches and router are wired at construction, the
	// engine's drain loops start here, backends serve once traffic lands.
	eng.Start(ctx)
	defer eng.Stop(context.Background())

	server := api.NewServer(eng, settings, store, logger, metrics)
	if err := server.Run(ctx); err != nil {
		logger.Errorf("server exited with error: %v", err)
		os.Exit(1)
	}
}

// buildEmbeddingProvider picks the OpenAI embedding API when a key is
// configured, the deterministic local embedder otherwise, and memoizes
// either behind an LRU.
func buildEmbeddingProvider(settings *config.Settings) embedding.Provider {
	var inner embedding.Provider
	if settings.OpenAIAPIKey != "" {
		inner = embedding.NewOpenAIProvider(settings.OpenAIAPIKey, "text-embedding-3-small", settings.EmbeddingDimension)
	} else {
		inner = embedding.NewLocalProvider(settings.EmbeddingDimension)
	}
	cached, err := embedding.NewCachingProvider(inner, 4096)
	if err != nil {
		return inner
	}
	return cached
}

// buildBackends assembles the model pool. With an OpenAI key the gpt-4 and
// gpt-3.5-turbo entries call the OpenAI API; local-economy calls the vLLM
// server when one is configured. Every other entry gets a mock backend, so
// local runs and demos work end to end.
func buildBackends(settings *config.Settings) ([]*models.ModelConfig, map[string]backends.ModelBackend) {
	configs := []*models.ModelConfig{
		{
			ID: "gpt-4", Name: "GPT-4", Tier: models.TierPremium,
			MaxContextLength: 8192, SupportsStream: true, SupportsBatching: true,
			AvgLatencyMS: 2000, MaxThroughputRPS: 50,
			CostPer1KInputTokens: 0.03, CostPer1KOutputTokens: 0.06,
			Healthy: true,
		},
		{
			ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Tier: models.TierStandard,
			MaxContextLength: 16384, SupportsStream: true, SupportsBatching: true,
			AvgLatencyMS: 800, MaxThroughputRPS: 200,
			CostPer1KInputTokens: 0.0015, CostPer1KOutputTokens: 0.002,
			Healthy: true,
		},
		{
			ID: "local-economy", Name: "Local Economy", Tier: models.TierEconomy,
			MaxContextLength: 4096, SupportsStream: true, SupportsBatching: true,
			AvgLatencyMS: 300, MaxThroughputRPS: 400,
			CostPer1KInputTokens: 0.0002, CostPer1KOutputTokens: 0.0004,
			Healthy: true,
		},
	}

	pool := make(map[string]backends.ModelBackend, len(configs))
	for _, cfg := range configs {
		switch {
		case cfg.ID == "local-economy" && settings.VLLMBaseURL != "":
			pool[cfg.ID] = backends.NewOpenAIBackend(cfg.ID, "").WithBaseURL(settings.VLLMBaseURL)
		case settings.OpenAIAPIKey != "" && cfg.ID != "local-economy":
			pool[cfg.ID] = backends.NewOpenAIBackend(cfg.ID, settings.OpenAIAPIKey)
		default:
			pool[cfg.ID] = backends.NewMockBackend(cfg.ID)
		}
	}
	return configs, pool
}
