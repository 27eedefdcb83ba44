package backends

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	gwerrors "github.com/TensorScholar/cost-optimized-inference/pkg/errors"
	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
)

// OpenAIBackend speaks the OpenAI-compatible completions wire format.
// vLLM and TGI's OpenAI-compatible frontends satisfy the same shape, so a
// base URL override covers local deployments.
type OpenAIBackend struct {
	modelID    string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIBackend creates a backend against api.openai.com for the given
// model id.
func NewOpenAIBackend(modelID, apiKey string) *OpenAIBackend {
	return &OpenAIBackend{
		modelID: modelID,
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// WithBaseURL points the backend at a compatible server (vLLM, TGI).
func (b *OpenAIBackend) WithBaseURL(baseURL string) *OpenAIBackend {
	b.baseURL = strings.TrimSuffix(baseURL, "/")
	return b
}

// ModelID returns the backing model id.
func (b *OpenAIBackend) ModelID() string { return b.modelID }

type completionRequest struct {
	Model            string   `json:"model"`
	Prompt           any      `json:"prompt"` // string or []string for batches
	MaxTokens        int      `json:"max_tokens"`
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p,omitempty"`
	FrequencyPenalty float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64  `json:"presence_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	Stream           bool     `json:"stream,omitempty"`
}

type completionChoice struct {
	Text         string `json:"text"`
	Index        int    `json:"index"`
	FinishReason string `json:"finish_reason"`
}

type completionResponse struct {
	ID      string             `json:"id"`
	Choices []completionChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Infer runs a single completion.
func (b *OpenAIBackend) Infer(ctx context.Context, req *models.Request) (*models.Response, error) {
	start := time.Now()
	parsed, err := b.complete(ctx, req.Parameters, req.Text(), false)
	if err != nil {
		return nil, err
	}
	if len(parsed.Choices) == 0 {
		return nil, gwerrors.New(gwerrors.ClassBackendError, "completion returned no choices")
	}
	return b.toResponse(req, parsed.Choices[0], parsed, 1, time.Since(start)), nil
}

// InferBatch sends all prompts in one completions call. The API returns
// choices tagged with their prompt index, which restores alignment.
func (b *OpenAIBackend) InferBatch(ctx context.Context, batch *models.BatchRequest) ([]*models.Response, error) {
	start := time.Now()
	prompts := make([]string, len(batch.Requests))
	for i, r := range batch.Requests {
		prompts[i] = r.Text()
	}
	// Generation parameters are taken from the first request. The batchers
	// do not group requests by parameters, so the other members' parameters
	// are not applied.
	parsed, err := b.completeMulti(ctx, batch.Requests[0].Parameters, prompts)
	if err != nil {
		return nil, err
	}
	if len(parsed.Choices) != len(batch.Requests) {
		return nil, gwerrors.Newf(gwerrors.ClassBackendError,
			"completion returned %d choices for %d prompts", len(parsed.Choices), len(batch.Requests))
	}
	sort.Slice(parsed.Choices, func(i, j int) bool {
		return parsed.Choices[i].Index < parsed.Choices[j].Index
	})

	elapsed := time.Since(start)
	responses := make([]*models.Response, len(batch.Requests))
	for i, choice := range parsed.Choices {
		responses[i] = b.toResponse(batch.Requests[i], choice, parsed, len(batch.Requests), elapsed)
	}
	return responses, nil
}

// Stream yields completion chunks from a server-sent-events stream and
// closes the channel when the stream ends.
func (b *OpenAIBackend) Stream(ctx context.Context, req *models.Request) (<-chan string, error) {
	httpResp, err := b.post(ctx, completionRequest{
		Model:            b.modelID,
		Prompt:           req.Text(),
		MaxTokens:        req.Parameters.MaxTokens,
		Temperature:      req.Parameters.Temperature,
		TopP:             req.Parameters.TopP,
		FrequencyPenalty: req.Parameters.FrequencyPenalty,
		PresencePenalty:  req.Parameters.PresencePenalty,
		Stop:             req.Parameters.StopSequences,
		Stream:           true,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer func() { _ = httpResp.Body.Close() }()
		scanner := bufio.NewScanner(httpResp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}
			var chunk completionResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			select {
			case out <- chunk.Choices[0].Text:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// HealthCheck probes the models listing endpoint.
func (b *OpenAIBackend) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (b *OpenAIBackend) complete(ctx context.Context, params models.Parameters, prompt string, stream bool) (*completionResponse, error) {
	return b.roundTrip(ctx, completionRequest{
		Model:            b.modelID,
		Prompt:           prompt,
		MaxTokens:        params.MaxTokens,
		Temperature:      params.Temperature,
		TopP:             params.TopP,
		FrequencyPenalty: params.FrequencyPenalty,
		PresencePenalty:  params.PresencePenalty,
		Stop:             params.StopSequences,
		Stream:           stream,
	})
}

func (b *OpenAIBackend) completeMulti(ctx context.Context, params models.Parameters, prompts []string) (*completionResponse, error) {
	return b.roundTrip(ctx, completionRequest{
		Model:            b.modelID,
		Prompt:           prompts,
		MaxTokens:        params.MaxTokens,
		Temperature:      params.Temperature,
		TopP:             params.TopP,
		FrequencyPenalty: params.FrequencyPenalty,
		PresencePenalty:  params.PresencePenalty,
		Stop:             params.StopSequences,
	})
}

func (b *OpenAIBackend) roundTrip(ctx context.Context, body completionRequest) (*completionResponse, error) {
	httpResp, err := b.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.ClassBackendError, "failed to read completion response")
	}
	if httpResp.StatusCode != http.StatusOK {
		class := gwerrors.ClassBackendError
		if httpResp.StatusCode == http.StatusRequestTimeout || httpResp.StatusCode == http.StatusGatewayTimeout {
			class = gwerrors.ClassBackendTimeout
		}
		return nil, gwerrors.Newf(class, "completion API returned status %d: %s", httpResp.StatusCode, string(raw))
	}
	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.ClassBackendError, "failed to parse completion response")
	}
	return &parsed, nil
}

func (b *OpenAIBackend) post(ctx context.Context, body completionRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.ClassInternal, "failed to marshal completion request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.ClassInternal, "failed to create completion request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gwerrors.Wrap(err, gwerrors.ClassBackendTimeout, "completion request canceled")
		}
		return nil, gwerrors.Wrap(err, gwerrors.ClassBackendError, "completion request failed")
	}
	return resp, nil
}

func (b *OpenAIBackend) toResponse(req *models.Request, choice completionChoice, parsed *completionResponse, batchSize int, elapsed time.Duration) *models.Response {
	// Usage is reported per call; apportion it evenly across the batch.
	promptTokens := parsed.Usage.PromptTokens / batchSize
	completionTokens := parsed.Usage.CompletionTokens / batchSize
	finish := choice.FinishReason
	if finish == "" {
		finish = "stop"
	}
	return &models.Response{
		ID:           uuid.New(),
		RequestID:    req.ID,
		Text:         choice.Text,
		FinishReason: finish,
		ModelUsed:    b.modelID,
		Usage: models.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		LatencyMS: int(elapsed.Milliseconds()),
		CreatedAt: time.Now().UTC(),
	}
}
