// Package models contains the shared value types of the inference gateway:
// requests, responses, cache entries, batches, routing and cost records.
// Types here are immutable after construction except where a field is
// explicitly documented as access bookkeeping owned by a single component.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority controls which batching lane a request is admitted to.
type Priority string

// Priority lanes, highest first.
const (
	PriorityExpress  Priority = "express"  // minimal batching, lowest latency target
	PriorityStandard Priority = "standard" // moderate batching
	PriorityBatch    Priority = "batch"    // best effort, maximum batching
)

// Rank orders priorities for comparison; higher means more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityExpress:
		return 3
	case PriorityStandard:
		return 2
	case PriorityBatch:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is one of the known priority lanes.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Parameters are the model generation parameters attached to a request.
type Parameters struct {
	Temperature      float64  `json:"temperature"`
	MaxTokens        int      `json:"max_tokens"`
	TopP             float64  `json:"top_p"`
	TopK             int      `json:"top_k"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	PresencePenalty  float64  `json:"presence_penalty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`
}

// DefaultParameters returns the generation defaults used when the caller
// omits parameters.
func DefaultParameters() Parameters {
	return Parameters{
		Temperature: 0.7,
		MaxTokens:   1024,
		TopP:        0.9,
		TopK:        50,
	}
}

// Validate checks parameter ranges.
func (p Parameters) Validate() error {
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", p.Temperature)
	}
	if p.TopP < 0 || p.TopP > 1 {
		return fmt.Errorf("top_p must be between 0 and 1, got %g", p.TopP)
	}
	if p.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", p.MaxTokens)
	}
	if p.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1, got %d", p.TopK)
	}
	return nil
}

// Metadata carries attribution dimensions for a request.
type Metadata struct {
	UserID       string            `json:"user_id,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
	FeatureName  string            `json:"feature_name,omitempty"`
	ExperimentID string            `json:"experiment_id,omitempty"`
	Application  string            `json:"application"`
	Environment  string            `json:"environment"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// Request is a complete inference request. Immutable after construction.
type Request struct {
	ID         uuid.UUID  `json:"id"`
	Prompt     string     `json:"prompt,omitempty"`
	Messages   []Message  `json:"messages,omitempty"`
	Parameters Parameters `json:"parameters"`
	Priority   Priority   `json:"priority"`
	Metadata   Metadata   `json:"metadata"`

	UseCache        bool `json:"use_cache"`
	CacheTTLSeconds int  `json:"cache_ttl_seconds,omitempty"` // 0 means no TTL

	PreferredModel string `json:"preferred_model,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewRequest builds a request with defaults applied and invariants checked.
func NewRequest(prompt string, messages []Message, params Parameters) (*Request, error) {
	r := &Request{
		ID:         uuid.New(),
		Prompt:     prompt,
		Messages:   messages,
		Parameters: params,
		Priority:   PriorityStandard,
		Metadata:   Metadata{Application: "default", Environment: "production"},
		UseCache:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the request invariants: non-empty content and parameter
// ranges.
func (r *Request) Validate() error {
	if r.Prompt == "" && len(r.Messages) == 0 {
		return fmt.Errorf("either prompt or messages must be provided")
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", r.Priority)
	}
	return r.Parameters.Validate()
}

// Text returns the request content: the prompt, or the joined message
// contents for chat requests.
func (r *Request) Text() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	parts := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, " ")
}

// EstimatedInputTokens is a rough token estimate at four characters per
// token.
func (r *Request) EstimatedInputTokens() int {
	return len(r.Text()) / 4
}

// CacheKey derives the exact-match cache key:
// SHA-256(content + "_" + temperature + "_" + max_tokens).
func (r *Request) CacheKey() string {
	content := r.Text()
	key := content + "_" + strconv.FormatFloat(r.Parameters.Temperature, 'g', -1, 64) +
		"_" + strconv.Itoa(r.Parameters.MaxTokens)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// AgeMS is the time since the request was created, in milliseconds.
func (r *Request) AgeMS() int64 {
	return time.Since(r.CreatedAt).Milliseconds()
}
