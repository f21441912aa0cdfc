// Package llmstream implements the LLM streaming client (C7): a single
// upstream streaming call fanned out as an ordered sequence of content,
// done, and error events, plus cost accounting against a cached pricing
// table. The channel-based event shape is grounded on the teacher's
// pkg/llm goroutine+channel client; the SSE framing and incremental token
// forwarding follow RAGbox's sendEvent/flush loop.
package llmstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aihub-platform/backend/pkg/apperr"
	"github.com/aihub-platform/backend/pkg/metrics"
)

// EventKind discriminates the three terminal/non-terminal event shapes the
// streamer emits.
type EventKind string

const (
	EventContent EventKind = "content"
	EventDone    EventKind = "done"
	EventError   EventKind = "error"
)

// TokensUsed mirrors the usage metadata an upstream provider may report,
// possibly only on its terminal frame.
type TokensUsed struct {
	Prompt     int
	Completion int
	Total      int
}

// Event is one item in the ordered sequence stream() contract produces.
// Content is populated on EventContent, Accumulated/Tokens on EventDone, and
// Err/ErrKind on EventError.
type Event struct {
	Kind    EventKind
	Content string

	Accumulated string
	Tokens      TokensUsed

	ErrKind string
	Err     error
}

type Message struct {
	Role    string
	Content string
}

type StreamRequest struct {
	Messages    []Message
	Model       string
	Temperature float64
	MaxTokens   int
}

// Pricer resolves a model's per-million-token prompt/completion price from
// a provider pricing table, refreshed at most once per 24h and cached
// process-wide; a pricing lookup failure degrades to zero cost rather than
// blocking the chat turn (spec §4.7).
type Pricer interface {
	Price(ctx context.Context, model string) (pricePromptPerM, priceCompletionPerM float64, err error)
}

type Streamer struct {
	httpClient *http.Client
	baseURL    string
	apiKey     func(ctx context.Context) (string, error)
	breaker    *gobreaker.CircuitBreaker
	pricer     Pricer
}

func New(httpClient *http.Client, baseURL string, apiKey func(ctx context.Context) (string, error), pricer Pricer) *Streamer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 0} // streaming: no overall deadline beyond ctx
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-provider",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Streamer{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey, breaker: breaker, pricer: pricer}
}

type chatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []Message       `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Stream      bool            `json:"stream"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Stream issues one upstream streaming call and sends ordered events to the
// returned channel, which is closed after the terminal done/error event.
func (s *Streamer) Stream(ctx context.Context, req StreamRequest) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)

		start := time.Now()
		firstTokenObserved := false

		resp, err := s.openUpstream(ctx, req)
		if err != nil {
			events <- Event{Kind: EventError, ErrKind: "UpstreamUnavailable", Err: err}
			return
		}
		defer resp.Body.Close()

		var accumulated strings.Builder
		var tokens TokensUsed

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				events <- Event{Kind: EventError, ErrKind: "Cancelled", Err: ctx.Err()}
				return
			default:
			}

			line := scanner.Text()
			data, ok := sseData(line)
			if !ok {
				continue
			}
			if data == "[DONE]" {
				break
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue // malformed frame: skip, per spec tolerance
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !firstTokenObserved {
					firstTokenObserved = true
					metrics.StreamLatencySeconds.WithLabelValues(req.Model).Observe(time.Since(start).Seconds())
				}
				accumulated.WriteString(choice.Delta.Content)
				events <- Event{Kind: EventContent, Content: choice.Delta.Content}
			}
			if chunk.Usage != nil {
				tokens = TokensUsed{
					Prompt:     chunk.Usage.PromptTokens,
					Completion: chunk.Usage.CompletionTokens,
					Total:      chunk.Usage.TotalTokens,
				}
			}
		}
		if err := scanner.Err(); err != nil {
			events <- Event{Kind: EventError, ErrKind: "UpstreamUnavailable", Err: err}
			return
		}

		events <- Event{Kind: EventDone, Accumulated: accumulated.String(), Tokens: tokens}
	}()

	return events
}

func sseData(line string) (string, bool) {
	const prefix = "data: "
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
}

func (s *Streamer) openUpstream(ctx context.Context, req StreamRequest) (*http.Response, error) {
	key, err := s.apiKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving provider key: %w", err)
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+key)
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := s.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

// Cost computes cost_usd per spec §4.7: prompt_tokens*price_prompt/1e6 +
// completion_tokens*price_completion/1e6, rounded to 6 decimal places.
// Pricing lookup failures degrade to zero cost.
func (s *Streamer) Cost(ctx context.Context, model string, tokens TokensUsed) float64 {
	if s.pricer == nil {
		return 0
	}
	pricePrompt, priceCompletion, err := s.pricer.Price(ctx, model)
	if err != nil {
		return 0
	}
	cost := float64(tokens.Prompt)*pricePrompt/1e6 + float64(tokens.Completion)*priceCompletion/1e6
	return roundTo6(cost)
}

func roundTo6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// CachedPricer wraps a provider pricing fetch with a 24h process-wide cache
// (spec §4.7): a mutex-guarded map keyed by model, where an entry older than
// the TTL is fetched again on its next lookup.
type CachedPricer struct {
	fetch func(ctx context.Context, model string) (promptPerM, completionPerM float64, err error)
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]priceEntry
}

type priceEntry struct {
	promptPerM, completionPerM float64
	fetchedAt                  time.Time
}

func NewCachedPricer(fetch func(ctx context.Context, model string) (float64, float64, error)) *CachedPricer {
	return &CachedPricer{fetch: fetch, ttl: 24 * time.Hour, entries: make(map[string]priceEntry)}
}

func (p *CachedPricer) Price(ctx context.Context, model string) (float64, float64, error) {
	p.mu.Lock()
	if e, ok := p.entries[model]; ok && time.Since(e.fetchedAt) < p.ttl {
		p.mu.Unlock()
		return e.promptPerM, e.completionPerM, nil
	}
	p.mu.Unlock()

	promptPerM, completionPerM, err := p.fetch(ctx, model)
	if err != nil {
		return 0, 0, apperr.UpstreamUnavailable("fetching provider pricing table", err)
	}

	p.mu.Lock()
	p.entries[model] = priceEntry{promptPerM: promptPerM, completionPerM: completionPerM, fetchedAt: time.Now()}
	p.mu.Unlock()

	return promptPerM, completionPerM, nil
}
