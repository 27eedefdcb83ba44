// Package config loads gateway settings from the environment.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Settings holds every tunable of the gateway, loaded from environment
// variables (e.g. BATCH_MIN_SIZE, CACHE_SIMILARITY_THRESHOLD).
type Settings struct {
	// Redis.
	RedisURL            string `mapstructure:"redis_url"`
	RedisMaxConnections int    `mapstructure:"redis_max_connections"`

	// Model providers.
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	VLLMBaseURL     string `mapstructure:"vllm_base_url"`
	TGIBaseURL      string `mapstructure:"tgi_base_url"`

	// Batching.
	BatchMinSize           int  `mapstructure:"batch_min_size"`
	BatchMaxSize           int  `mapstructure:"batch_max_size"`
	BatchMaxWaitMS         int  `mapstructure:"batch_max_wait_ms"`
	BatchTargetLatencyP95  int  `mapstructure:"batch_target_latency_p95"`
	EnableSemanticGrouping bool `mapstructure:"enable_semantic_grouping"`
	PriorityLanes          bool `mapstructure:"priority_lanes"`

	// Caching.
	SemanticCacheEnabled     bool    `mapstructure:"semantic_cache_enabled"`
	CacheSimilarityThreshold float64 `mapstructure:"cache_similarity_threshold"`
	CacheMaxSize             int     `mapstructure:"cache_max_size"`
	CacheTTLSeconds          int     `mapstructure:"cache_ttl_seconds"`
	PrefixCacheEnabled       bool    `mapstructure:"prefix_cache_enabled"`
	EmbeddingDimension       int     `mapstructure:"embedding_dimension"`

	// Routing.
	RoutingStrategy string  `mapstructure:"routing_strategy"`
	CostWeight      float64 `mapstructure:"cost_weight"`
	FallbackEnabled bool    `mapstructure:"fallback_enabled"`

	// Rate limiting.
	RateLimitRPS   int `mapstructure:"rate_limit_rps"`
	RateLimitBurst int `mapstructure:"rate_limit_burst"`

	// Monitoring.
	LogLevel      string `mapstructure:"log_level"`
	EnableTracing bool   `mapstructure:"enable_tracing"`

	// API.
	APIHost string `mapstructure:"api_host"`
	APIPort int    `mapstructure:"api_port"`
}

// Load reads settings from the environment, applying defaults for anything
// unset.
func Load() (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so bind
	// every defaulted key explicitly.
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Default returns the stock settings without touching the environment.
func Default() *Settings {
	v := viper.New()
	setDefaults(v)
	var s Settings
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(&s)
	return &s
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis_url", "redis://localhost:6379")
	v.SetDefault("redis_max_connections", 50)

	v.SetDefault("openai_api_key", "")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("vllm_base_url", "")
	v.SetDefault("tgi_base_url", "")

	v.SetDefault("batch_min_size", 4)
	v.SetDefault("batch_max_size", 64)
	v.SetDefault("batch_max_wait_ms", 50)
	v.SetDefault("batch_target_latency_p95", 100)
	v.SetDefault("enable_semantic_grouping", true)
	v.SetDefault("priority_lanes", true)

	v.SetDefault("semantic_cache_enabled", true)
	v.SetDefault("cache_similarity_threshold", 0.90)
	v.SetDefault("cache_max_size", 10000)
	v.SetDefault("cache_ttl_seconds", 3600)
	v.SetDefault("prefix_cache_enabled", true)
	v.SetDefault("embedding_dimension", 384)

	v.SetDefault("routing_strategy", "cost_optimal")
	v.SetDefault("cost_weight", 0.7)
	v.SetDefault("fallback_enabled", true)

	v.SetDefault("rate_limit_rps", 100)
	v.SetDefault("rate_limit_burst", 200)

	v.SetDefault("log_level", "INFO")
	v.SetDefault("enable_tracing", true)

	v.SetDefault("api_host", "0.0.0.0")
	v.SetDefault("api_port", 8080)
}
