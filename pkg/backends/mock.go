package backends

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
)

const mockStreamChunkSize = 10

// MockBackend answers every prompt with an echo. Deterministic, instant,
// and dependency-free: it backs tests and air-gapped local runs.
type MockBackend struct {
	modelID string
	latency time.Duration

	// failNext makes the next n calls fail; used to exercise fallback and
	// circuit breaker paths in tests.
	failNext atomic.Int32
}

// NewMockBackend creates a mock backend for the given model id.
func NewMockBackend(modelID string) *MockBackend {
	return &MockBackend{modelID: modelID}
}

// WithLatency makes each call sleep for d, simulating backend work.
func (b *MockBackend) WithLatency(d time.Duration) *MockBackend {
	b.latency = d
	return b
}

// FailNext arms the backend to fail its next n calls.
func (b *MockBackend) FailNext(n int) {
	b.failNext.Store(int32(n))
}

// ModelID returns the backing model id.
func (b *MockBackend) ModelID() string { return b.modelID }

// Infer echoes the prompt.
func (b *MockBackend) Infer(ctx context.Context, req *models.Request) (*models.Response, error) {
	if err := b.simulate(ctx); err != nil {
		return nil, err
	}
	return b.respond(req), nil
}

// InferBatch echoes each request, preserving index alignment.
func (b *MockBackend) InferBatch(ctx context.Context, batch *models.BatchRequest) ([]*models.Response, error) {
	if err := b.simulate(ctx); err != nil {
		return nil, err
	}
	responses := make([]*models.Response, len(batch.Requests))
	for i, req := range batch.Requests {
		responses[i] = b.respond(req)
	}
	return responses, nil
}

// Stream yields the echoed text in fixed-size chunks and closes the
// channel when done.
func (b *MockBackend) Stream(ctx context.Context, req *models.Request) (<-chan string, error) {
	if err := b.simulate(ctx); err != nil {
		return nil, err
	}
	resp := b.respond(req)
	out := make(chan string)
	go func() {
		defer close(out)
		text := resp.Text
		for i := 0; i < len(text); i += mockStreamChunkSize {
			end := i + mockStreamChunkSize
			if end > len(text) {
				end = len(text)
			}
			select {
			case out <- text[i:end]:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// HealthCheck always reports healthy.
func (b *MockBackend) HealthCheck(ctx context.Context) bool { return true }

func (b *MockBackend) simulate(ctx context.Context) error {
	if n := b.failNext.Load(); n > 0 && b.failNext.CompareAndSwap(n, n-1) {
		return fmt.Errorf("mock backend %s: simulated failure", b.modelID)
	}
	if b.latency > 0 {
		select {
		case <-time.After(b.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MockBackend) respond(req *models.Request) *models.Response {
	text := req.Text()
	if len(text) > 200 {
		text = text[:200]
	}
	echoed := "Echo: " + text
	promptTokens := req.EstimatedInputTokens()
	completionTokens := len(echoed) / 4
	return &models.Response{
		ID:           uuid.New(),
		RequestID:    req.ID,
		Text:         echoed,
		FinishReason: "stop",
		ModelUsed:    b.modelID,
		Usage: models.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		LatencyMS: int(b.latency.Milliseconds()),
		CreatedAt: time.Now().UTC(),
	}
}
