// Package backends defines the model backend contract and the concrete
// backends the gateway ships with: an OpenAI-compatible HTTP backend and a
// deterministic mock for tests and local runs.
package backends

import (
	"context"

	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
)

// ModelBackend is the contract a model server must satisfy. InferBatch is
// length-preserving and index-aligned: response i answers request i.
type ModelBackend interface {
	ModelID() string
	Infer(ctx context.Context, req *models.Request) (*models.Response, error)
	InferBatch(ctx context.Context, batch *models.BatchRequest) ([]*models.Response, error)
	Stream(ctx context.Context, req *models.Request) (<-chan string, error)
	HealthCheck(ctx context.Context) bool
}
