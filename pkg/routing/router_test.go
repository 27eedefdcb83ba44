package routing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/TensorScholar/cost-optimized-inference/pkg/errors"
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

func testModels() []*models.ModelConfig {
	return []*models.ModelConfig{
		{
			ID: "gpt-4", Name: "GPT-4", Tier: models.TierPremium,
			MaxContextLength: 8192, AvgLatencyMS: 2000,
			CostPer1KInputTokens: 0.03, CostPer1KOutputTokens: 0.06,
			Healthy: true,
		},
		{
			ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Tier: models.TierStandard,
			MaxContextLength: 16384, AvgLatencyMS: 800,
			CostPer1KInputTokens: 0.0015, CostPer1KOutputTokens: 0.002,
			Healthy: true,
		},
	}
}

func newRouterFixture(t *testing.T, costWeight float64, configs []*models.ModelConfig) (*CostAwareRouter, *Registry) {
	t.Helper()
	logger := observability.NewNoopLogger()
	registry := NewRegistry(configs, logger)
	router := NewCostAwareRouter(registry, NewComplexityEstimator(), costWeight, logger)
	return router, registry
}

func routedRequest(t *testing.T, prompt string, maxTokens int) *models.Request {
	t.Helper()
	params := models.DefaultParameters()
	params.MaxTokens = maxTokens
	req, err := models.NewRequest(prompt, nil, params)
	require.NoError(t, err)
	return req
}

func TestCostWeightedSelectionPrefersCheapModel(t *testing.T) {
	router, _ := newRouterFixture(t, 0.9, testModels())

	decision, err := router.Route(routedRequest(t, "Hello world", 10))
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo", decision.SelectedModel.ID,
		"cost_weight 0.9 routes the trivial prompt to the cheaper model")
	assert.True(t, decision.SelectedModel.IsAvailable())
	assert.Contains(t, decision.ConsideredModels, "gpt-4")
}

func TestPureQualityRouting(t *testing.T) {
	router, _ := newRouterFixture(t, 0, testModels())

	decision, err := router.Route(routedRequest(t, "Hello world", 10))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", decision.SelectedModel.ID,
		"cost_weight 0 ignores price and takes the highest quality")
}

func TestPureCostRouting(t *testing.T) {
	router, _ := newRouterFixture(t, 1, testModels())

	decision, err := router.Route(routedRequest(t, "Hello world", 10))
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo", decision.SelectedModel.ID,
		"cost_weight 1 is pure cost routing")
}

func TestContextLengthBoundary(t *testing.T) {
	small := []*models.ModelConfig{{
		ID: "tiny", Name: "Tiny", Tier: models.TierStandard,
		MaxContextLength: 100, CostPer1KInputTokens: 0.001, CostPer1KOutputTokens: 0.001,
		Healthy: true,
	}}
	router, _ := newRouterFixture(t, 0.5, small)

	// 200 characters estimate to 50 input tokens; 50 more max_tokens lands
	// exactly on the context limit.
	prompt := make([]byte, 200)
	for i := range prompt {
		prompt[i] = 'x'
	}
	decision, err := router.Route(routedRequest(t, string(prompt), 50))
	require.NoError(t, err)
	assert.Equal(t, "tiny", decision.SelectedModel.ID, "an exact fit is allowed")

	// One extra output token pushes past the limit; the only model fails
	// can_handle and the router degrades to the healthy fallback path.
	decision, err = router.Route(routedRequest(t, string(prompt), 51))
	require.NoError(t, err)
	assert.Equal(t, "tiny", decision.SelectedModel.ID)
	assert.True(t, decision.SelectedModel.Healthy)
}

func TestNoHealthyBackend(t *testing.T) {
	configs := testModels()
	for _, m := range configs {
		m.Healthy = false
	}
	router, _ := newRouterFixture(t, 0.5, configs)

	_, err := router.Route(routedRequest(t, "anything", 10))
	require.Error(t, err)
	assert.True(t, gwerrors.IsClass(err, gwerrors.ClassNoHealthyBackend))
}

func TestUnavailableModelExcluded(t *testing.T) {
	configs := testModels()
	router, registry := newRouterFixture(t, 1, configs)

	// The cheap model circuit-breaks open; selection must avoid it.
	registry.UpdateModelHealth("gpt-3.5-turbo", true, true)

	decision, err := router.Route(routedRequest(t, "Hello world", 10))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", decision.SelectedModel.ID)
	assert.True(t, decision.SelectedModel.IsAvailable())
}

func TestOverloadedModelExcluded(t *testing.T) {
	configs := testModels()
	router, registry := newRouterFixture(t, 1, configs)
	registry.UpdateModelLoad("gpt-3.5-turbo", 0.97)

	decision, err := router.Route(routedRequest(t, "Hello world", 10))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", decision.SelectedModel.ID, "load at 0.97 makes a model unavailable")
}

func TestFallbacksInScoringOrder(t *testing.T) {
	configs := append(testModels(), &models.ModelConfig{
		ID: "claude-3-sonnet", Name: "Claude 3 Sonnet", Tier: models.TierStandard,
		MaxContextLength: 200000, AvgLatencyMS: 900,
		CostPer1KInputTokens: 0.003, CostPer1KOutputTokens: 0.015,
		Healthy: true,
	})
	router, _ := newRouterFixture(t, 1, configs)

	decision, err := router.Route(routedRequest(t, "Hello world", 10))
	require.NoError(t, err)
	require.Len(t, decision.FallbackModels, 2)
	assert.Equal(t, "claude-3-sonnet", decision.FallbackModels[0].ID,
		"the next-cheapest model is the first fallback under pure cost routing")
	assert.Equal(t, "gpt-4", decision.FallbackModels[1].ID)
}

func TestFallbackChainCycles(t *testing.T) {
	ms := testModels()
	chain := NewFallbackChain(ms[0], []*models.ModelConfig{ms[1]}, 3)

	assert.Equal(t, "gpt-4", chain.NextModel().ID)
	assert.Equal(t, "gpt-3.5-turbo", chain.NextModel().ID)
	assert.Equal(t, "gpt-3.5-turbo", chain.NextModel().ID, "fallbacks cycle modulo their length")
	assert.Nil(t, chain.NextModel(), "the attempt budget is spent")
	assert.False(t, chain.HasMoreAttempts())

	chain.Reset()
	assert.Equal(t, "gpt-4", chain.NextModel().ID)
}

func TestFallbackChainWithoutFallbacks(t *testing.T) {
	ms := testModels()
	chain := NewFallbackChain(ms[0], nil, 2)
	assert.Equal(t, "gpt-4", chain.NextModel().ID)
	assert.Equal(t, "gpt-4", chain.NextModel().ID, "no fallbacks means retrying the primary")
	assert.Nil(t, chain.NextModel())
}

func TestRegistryCircuitBreakerTripsAndRecovers(t *testing.T) {
	configs := testModels()
	registry := NewRegistry(configs, observability.NewNoopLogger())
	boom := errors.New("backend exploded")

	for i := 0; i < breakerFailureThreshold; i++ {
		m, ok := registry.Get("gpt-4")
		require.True(t, ok)
		assert.False(t, m.CircuitBreakerOpen, "breaker holds below the failure threshold")
		_, err := registry.Execute("gpt-4", func() (interface{}, error) { return nil, boom })
		require.Error(t, err)
	}

	m, ok := registry.Get("gpt-4")
	require.True(t, ok)
	assert.True(t, m.CircuitBreakerOpen, "five consecutive failures open the breaker")
	assert.False(t, m.IsAvailable())

	// While open, calls are rejected without reaching the backend.
	called := false
	_, err := registry.Execute("gpt-4", func() (interface{}, error) { called = true; return nil, nil })
	require.Error(t, err)
	assert.False(t, called)
}

func TestRegistrySuccessResetsFailureCount(t *testing.T) {
	registry := NewRegistry(testModels(), observability.NewNoopLogger())
	boom := errors.New("flaky")

	for i := 0; i < breakerFailureThreshold-1; i++ {
		_, _ = registry.Execute("gpt-4", func() (interface{}, error) { return nil, boom })
	}
	_, err := registry.Execute("gpt-4", func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)

	// The earlier failures no longer count toward tripping.
	for i := 0; i < breakerFailureThreshold-1; i++ {
		_, _ = registry.Execute("gpt-4", func() (interface{}, error) { return nil, boom })
	}
	m, ok := registry.Get("gpt-4")
	require.True(t, ok)
	assert.False(t, m.CircuitBreakerOpen)
}

func TestLoadBalancedRoundRobin(t *testing.T) {
	logger := observability.NewNoopLogger()
	registry := NewRegistry(testModels(), logger)
	router := NewLoadBalancedRouter(registry, logger)

	var seen []string
	for i := 0; i < 4; i++ {
		decision, err := router.Route(routedRequest(t, "spread me", 10))
		require.NoError(t, err)
		seen = append(seen, decision.SelectedModel.ID)
	}
	assert.Equal(t, []string{"gpt-4", "gpt-3.5-turbo", "gpt-4", "gpt-3.5-turbo"}, seen)
}

func TestLoadBalancedSkipsUnavailable(t *testing.T) {
	logger := observability.NewNoopLogger()
	registry := NewRegistry(testModels(), logger)
	registry.UpdateModelHealth("gpt-4", false, false)
	router := NewLoadBalancedRouter(registry, logger)

	for i := 0; i < 3; i++ {
		decision, err := router.Route(routedRequest(t, "spread me", 10))
		require.NoError(t, err)
		assert.Equal(t, "gpt-3.5-turbo", decision.SelectedModel.ID)
	}

	registry.UpdateModelHealth("gpt-4", false, false)
	registry.UpdateModelHealth("gpt-3.5-turbo", false, false)
	_, err := router.Route(routedRequest(t, "nowhere to go", 10))
	require.Error(t, err)
	assert.True(t, gwerrors.IsClass(err, gwerrors.ClassNoHealthyBackend))
}
