package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	gwerrors "github.com/TensorScholar/cost-optimized-inference/pkg/errors"
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
)

// InferenceRequestDTO is the wire shape of POST /v1/inference.
type InferenceRequestDTO struct {
	Prompt      string  `json:"prompt" binding:"required"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Priority    string  `json:"priority"`
	UseCache    *bool   `json:"use_cache"`

	UserID      string `json:"user_id,omitempty"`
	FeatureName string `json:"feature_name,omitempty"`
}

// InferenceResponseDTO is the wire shape of an inference result.
type InferenceResponseDTO struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	ModelUsed  string  `json:"model_used"`
	TokensUsed int     `json:"tokens_used"`
	CostUSD    float64 `json:"cost_usd"`
	LatencyMS  int     `json:"latency_ms"`
	CacheHit   bool    `json:"cache_hit"`
}

func (dto *InferenceRequestDTO) toRequest() (*models.Request, error) {
	params := models.DefaultParameters()
	if dto.MaxTokens > 0 {
		params.MaxTokens = dto.MaxTokens
	}
	if dto.Temperature != 0 {
		params.Temperature = dto.Temperature
	}
	req, err := models.NewRequest(dto.Prompt, nil, params)
	if err != nil {
		return nil, err
	}
	if dto.Priority != "" {
		req.Priority = models.Priority(dto.Priority)
		if err := req.Validate(); err != nil {
			return nil, err
		}
	}
	if dto.UseCache != nil {
		req.UseCache = *dto.UseCache
	}
	req.Metadata.UserID = dto.UserID
	req.Metadata.FeatureName = dto.FeatureName
	return req, nil
}

func toResponseDTO(resp *models.Response) InferenceResponseDTO {
	return InferenceResponseDTO{
		ID:         resp.ID.String(),
		Text:       resp.Text,
		ModelUsed:  resp.ModelUsed,
		TokensUsed: resp.Usage.TotalTokens,
		CostUSD:    resp.Usage.CostUSD,
		LatencyMS:  resp.LatencyMS,
		CacheHit:   resp.CacheInfo.Hit,
	}
}

func (s *Server) handleInference(c *gin.Context) {
	var dto InferenceRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := dto.toRequest()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.engine.Infer(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, req.ID.String(), err)
		return
	}
	c.JSON(http.StatusOK, toResponseDTO(resp))
}

func (s *Server) handleBatch(c *gin.Context) {
	var dtos []InferenceRequestDTO
	if err := c.ShouldBindJSON(&dtos); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	responses := make([]InferenceResponseDTO, len(dtos))
	for i := range dtos {
		req, err := dtos[i].toRequest()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "index": i})
			return
		}
		resp, err := s.engine.Infer(c.Request.Context(), req)
		if err != nil {
			s.writeError(c, req.ID.String(), err)
			return
		}
		responses[i] = toResponseDTO(resp)
	}
	c.JSON(http.StatusOK, responses)
}

func (s *Server) handleListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": s.engine.Registry().List()})
}

func (s *Server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.CacheStats())
}

func (s *Server) handleCacheInvalidate(c *gin.Context) {
	pattern := c.Query("pattern")
	deleted := s.engine.InvalidateCache(c.Request.Context(), pattern)
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (s *Server) handleMetricsSummary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics": s.metrics.Snapshot(),
		"queues":  s.engine.QueueStats(),
	})
}

func (s *Server) handleMetricsCache(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.CacheStats())
}

func (s *Server) handleMetricsCost(c *gin.Context) {
	metrics, drivers, recommendations := s.engine.CostReport()
	c.JSON(http.StatusOK, gin.H{
		"metrics":         metrics,
		"top_drivers":     drivers,
		"recommendations": recommendations,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleHealthReady(c *gin.Context) {
	if !s.engine.Healthy(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "no healthy backend"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleHealthLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// writeError maps classified gateway errors onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, requestID string, err error) {
	status := http.StatusInternalServerError
	switch gwerrors.ClassOf(err) {
	case gwerrors.ClassInvalidRequest:
		status = http.StatusBadRequest
	case gwerrors.ClassRateLimited:
		status = http.StatusTooManyRequests
	case gwerrors.ClassNoHealthyBackend:
		status = http.StatusServiceUnavailable
	case gwerrors.ClassBackendTimeout, gwerrors.ClassBackendError:
		status = http.StatusBadGateway
	}
	body := gin.H{"error": err.Error()}
	if status == http.StatusInternalServerError {
		body["request_id"] = requestID
	}
	c.JSON(status, body)
}
