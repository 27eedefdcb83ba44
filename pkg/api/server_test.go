package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TensorScholar/cost-optimized-inference/pkg/backends"
	"github.com/TensorScholar/cost-optimized-inference/pkg/common/config"
	"github.com/TensorScholar/cost-optimized-inference/pkg/embedding"
	"github.com/TensorScholar/cost-optimized-inference/pkg/engine"
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
	"github.com/TensorScholar/cost-optimized-inference/pkg/vectorstore"
)

func newServerFixture(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	settings := config.Default()
	settings.BatchMinSize = 1
	settings.BatchMaxSize = 8
	settings.BatchMaxWaitMS = 5
	settings.EnableSemanticGrouping = false
	settings.RateLimitRPS = 1000
	settings.RateLimitBurst = 1000

	provider := embedding.NewLocalProvider(32)
	modelConfigs := []*models.ModelConfig{{
		ID: "economy-1", Name: "Economy", Tier: models.TierEconomy,
		MaxContextLength: 4096, AvgLatencyMS: 100,
		CostPer1KInputTokens: 0.0002, CostPer1KOutputTokens: 0.0004,
		Healthy: true,
	}}
	eng, err := engine.New(engine.Options{
		Settings:          settings,
		Logger:            observability.NewNoopLogger(),
		Metrics:           observability.NewNoopMetricsClient(),
		EmbeddingProvider: provider,
		VectorStore:       vectorstore.NewMemoryStore(provider.Dimension()),
		Models:            modelConfigs,
		Backends: map[string]backends.ModelBackend{
			"economy-1": backends.NewMockBackend("economy-1"),
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	eng.Start(ctx)
	t.Cleanup(func() { eng.Stop(ctx) })

	srv := NewServer(eng, settings, nil, observability.NewNoopLogger(), observability.NewInMemoryMetrics())
	t.Cleanup(srv.limiter.Stop)
	return srv, eng
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestInferenceEndpoint(t *testing.T) {
	srv, _ := newServerFixture(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/inference", InferenceRequestDTO{
		Prompt:      "What is 2+2?",
		MaxTokens:   50,
		Temperature: 0.7,
		Priority:    "standard",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp InferenceResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "Echo: What is 2+2?", resp.Text)
	assert.Equal(t, "economy-1", resp.ModelUsed)
	assert.False(t, resp.CacheHit)

	// The same payload again is served from cache.
	rec = doJSON(t, srv, http.MethodPost, "/v1/inference", InferenceRequestDTO{
		Prompt:      "What is 2+2?",
		MaxTokens:   50,
		Temperature: 0.7,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.CacheHit)
}

func TestInferenceValidation(t *testing.T) {
	srv, _ := newServerFixture(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/inference", map[string]any{"max_tokens": 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "a missing prompt is rejected")

	rec = doJSON(t, srv, http.MethodPost, "/v1/inference", InferenceRequestDTO{
		Prompt:      "hello",
		Temperature: 3.0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "temperature above 2 is rejected")

	rec = doJSON(t, srv, http.MethodPost, "/v1/inference", InferenceRequestDTO{
		Prompt:   "hello",
		Priority: "urgent",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown priorities are rejected")
}

func TestBatchEndpointPreservesOrder(t *testing.T) {
	srv, _ := newServerFixture(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/batch", []InferenceRequestDTO{
		{Prompt: "first question", MaxTokens: 20},
		{Prompt: "second question", MaxTokens: 20},
		{Prompt: "third question", MaxTokens: 20},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resps []InferenceResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resps))
	require.Len(t, resps, 3)
	assert.Equal(t, "Echo: first question", resps[0].Text)
	assert.Equal(t, "Echo: second question", resps[1].Text)
	assert.Equal(t, "Echo: third question", resps[2].Text)
}

func TestModelsEndpoint(t *testing.T) {
	srv, _ := newServerFixture(t)

	rec := doJSON(t, srv, http.MethodGet, "/v1/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "economy-1")
}

func TestCacheStatsAndInvalidate(t *testing.T) {
	srv, _ := newServerFixture(t)

	doJSON(t, srv, http.MethodPost, "/v1/inference", InferenceRequestDTO{Prompt: "cache me", MaxTokens: 20})

	rec := doJSON(t, srv, http.MethodGet, "/v1/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]models.CacheStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats["exact"].Size)

	rec = doJSON(t, srv, http.MethodDelete, "/v1/cache?pattern=cache+me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Greater(t, result["deleted"], 0)
}

func TestMetricsEndpoints(t *testing.T) {
	srv, _ := newServerFixture(t)

	for _, path := range []string{"/v1/metrics/summary", "/v1/metrics/cache", "/v1/metrics/cost"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newServerFixture(t)

	for _, path := range []string{"/health", "/health/ready", "/health/live"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRateLimitReturns429(t *testing.T) {
	srv, _ := newServerFixture(t)
	srv.limiter.global.SetLimit(0)
	srv.limiter.global.SetBurst(0)

	rec := doJSON(t, srv, http.MethodGet, "/v1/models", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}
