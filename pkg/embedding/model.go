// Package embedding implements the five-sector embedding engine (C3) and
// the EmbeddingModel contract it depends on (C2).
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/memnexus/memcore/internal/memerr"
	"github.com/memnexus/memcore/pkg/common"
)

// Model is the contract spec.md §4.2/§6 names C2: an opaque text → vector
// function with a fixed dimension and an optional batch mode. Everything
// downstream of Model.Generate already receives an L2-normalised vector —
// normalisation is Model's responsibility, mirroring the "every returned
// vector is L2-normalised before use" line in spec.md §6.
type Model interface {
	// Generate returns the embedding for a single augmented text.
	Generate(ctx context.Context, text string) ([]float32, error)

	// GenerateBatch returns one embedding per input text, in order. A
	// model that does not support batching should embed this by looping
	// over Generate; HTTPModel does exactly that when the batch endpoint
	// is unavailable.
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the fixed length of every vector this model returns.
	Dimension() int

	// Name identifies the model for storage (memory_embeddings.model).
	Name() string
}

// HTTPModel implements Model against the embedding-model HTTP contract
// named in spec.md §6:
//
//	POST <host>/api/embeddings {model, prompt}  -> {embedding: number[]}
//	POST <host>/api/embed      {model, input: []string} -> {embeddings: number[][]}
//
// A 404 means the model name is unknown (not retryable); any other non-2xx
// is treated as transient. A circuit breaker trips after repeated failures
// so a down embedding server fails fast instead of being hammered by every
// queue worker.
type HTTPModel struct {
	baseURL   string
	modelName string
	dimension int
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
}

// NewHTTPModel constructs an HTTPModel. dimension is the model's declared
// output length, fixed for the lifetime of the instance (spec.md §3: "the
// dimension is fixed by the active model").
func NewHTTPModel(baseURL, modelName string, dimension int, client *http.Client) *HTTPModel {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding-model:" + modelName,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &HTTPModel{
		baseURL:   baseURL,
		modelName: modelName,
		dimension: dimension,
		client:    client,
		breaker:   breaker,
	}
}

func (m *HTTPModel) Dimension() int { return m.dimension }
func (m *HTTPModel) Name() string   { return m.modelName }

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float32 `json:"embedding"`
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (m *HTTPModel) Generate(ctx context.Context, text string) ([]float32, error) {
	result, err := m.breaker.Execute(func() (any, error) {
		return m.doGenerate(ctx, text)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, memerr.Network("embedding model circuit open", 0, err)
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (m *HTTPModel) doGenerate(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Model: m.modelName, Prompt: text})
	if err != nil {
		return nil, memerr.Validation(fmt.Sprintf("marshal embeddings request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, memerr.Network("build request", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, memerr.Network("embedding request failed", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, memerr.Validationf("unknown model %q", m.modelName)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, memerr.Network(fmt.Sprintf("embedding request returned %d", resp.StatusCode), resp.StatusCode, nil)
	}

	var out embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, memerr.Network("decode embedding response", 0, err)
	}

	return common.NormalizeVectorL2(out.Embedding), nil
}

// GenerateBatch calls POST /api/embed. If the server doesn't support it
// (404/405), falls back to N sequential Generate calls so callers can
// always rely on GenerateBatch succeeding against any conformant model.
func (m *HTTPModel) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := m.breaker.Execute(func() (any, error) {
		return m.doGenerateBatch(ctx, texts)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, memerr.Network("embedding model circuit open", 0, err)
		}
		return nil, err
	}
	return result.([][]float32), nil
}

func (m *HTTPModel) doGenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: m.modelName, Input: texts})
	if err != nil {
		return nil, memerr.Validation(fmt.Sprintf("marshal embed request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, memerr.Network("build request", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, memerr.Network("embed request failed", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
		return m.fallbackBatch(ctx, texts)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, memerr.Network(fmt.Sprintf("embed request returned %d", resp.StatusCode), resp.StatusCode, nil)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, memerr.Network("decode embed response", 0, err)
	}

	result := make([][]float32, len(out.Embeddings))
	for i, v := range out.Embeddings {
		result[i] = common.NormalizeVectorL2(v)
	}
	return result, nil
}

func (m *HTTPModel) fallbackBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.doGenerate(ctx, t)
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}
