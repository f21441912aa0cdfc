// Package embedding implements the batched embedding client (C3): contract
// embed(texts) -> vectors, preserving input order.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aihub-platform/backend/pkg/apperr"
)

// BatchSize matches spec §4.3's fixed batching parameter.
const BatchSize = 100

// Client calls a provider's embeddings endpoint in fixed-size batches,
// reordering responses by their returned index to guarantee the output is
// aligned with the input regardless of provider-side reordering. Upstream
// calls run through a circuit breaker so a failing provider trips open
// instead of piling up latency across every chunk in an ingest.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     func(ctx context.Context) (string, error)
	breaker    *gobreaker.CircuitBreaker
}

// New builds an embedding client. apiKey is resolved per-call (not cached)
// so key rotation in pkg/vault takes effect immediately.
func New(httpClient *http.Client, baseURL, model string, apiKey func(ctx context.Context) (string, error)) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding-provider",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{httpClient: httpClient, baseURL: baseURL, model: model, apiKey: apiKey, breaker: breaker}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingDatum struct {
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingResponse struct {
	Data []embeddingDatum `json:"data"`
}

// Embed embeds texts, preserving order. Each batch of BatchSize texts is an
// independent request; no internal retry — the caller decides (spec §4.3).
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))

	for start := 0; start < len(texts); start += BatchSize {
		end := start + BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		batchVectors, err := c.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		copy(vectors[start:end], batchVectors)
	}
	return vectors, nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float64, error) {
	key, err := c.apiKey(ctx)
	if err != nil {
		return nil, apperr.UpstreamUnavailable("resolving embedding provider key", err)
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: batch})
	if err != nil {
		return nil, fmt.Errorf("marshaling embedding request: %w", err)
	}

	batchCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(batchCtx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+key)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("embedding provider returned status %d", resp.StatusCode)
		}

		var parsed embeddingResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("decoding embedding response: %w", err)
		}
		return parsed, nil
	})
	if err != nil {
		return nil, apperr.UpstreamUnavailable("calling embedding provider", err)
	}
	parsed := result.(embeddingResponse)

	out := make([][]float64, len(batch))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue // tolerate a malformed index rather than panicking
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
