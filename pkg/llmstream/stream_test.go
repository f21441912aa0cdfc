package llmstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticKey(ctx context.Context) (string, error) { return "test-key", nil }

func TestStream_ConcatenatesDeltasAndEmitsDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: {"choices":[{"delta":{}}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
			`data: [DONE]`,
		}
		for _, f := range frames {
			_, _ = w.Write([]byte(f + "\n\n"))
		}
	}))
	defer srv.Close()

	s := New(srv.Client(), srv.URL, staticKey, nil)
	events := s.Stream(context.Background(), StreamRequest{Messages: []Message{{Role: "user", Content: "hi"}}, Model: "m"})

	var content string
	var done *Event
	for ev := range events {
		switch ev.Kind {
		case EventContent:
			content += ev.Content
		case EventDone:
			e := ev
			done = &e
		case EventError:
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}

	require.NotNil(t, done)
	assert.Equal(t, "Hello", content)
	assert.Equal(t, "Hello", done.Accumulated)
	assert.Equal(t, TokensUsed{Prompt: 5, Completion: 2, Total: 7}, done.Tokens)
}

func TestStream_SkipsMalformedFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		frames := []string{
			`data: not-json`,
			`data: {"choices":[{"delta":{"content":"ok"}}]}`,
			`data: [DONE]`,
		}
		for _, f := range frames {
			_, _ = w.Write([]byte(f + "\n\n"))
		}
	}))
	defer srv.Close()

	s := New(srv.Client(), srv.URL, staticKey, nil)
	events := s.Stream(context.Background(), StreamRequest{Messages: []Message{{Role: "user", Content: "hi"}}, Model: "m"})

	var content string
	for ev := range events {
		if ev.Kind == EventContent {
			content += ev.Content
		}
	}
	assert.Equal(t, "ok", content)
}

func TestStream_NonTwoXXYieldsErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := New(srv.Client(), srv.URL, staticKey, nil)
	events := s.Stream(context.Background(), StreamRequest{Messages: []Message{{Role: "user", Content: "hi"}}, Model: "m"})

	ev, ok := <-events
	require.True(t, ok)
	assert.Equal(t, EventError, ev.Kind)

	_, stillOpen := <-events
	assert.False(t, stillOpen)
}

func TestCost_RoundsToSixDecimals(t *testing.T) {
	pricer := NewCachedPricer(func(ctx context.Context, model string) (float64, float64, error) {
		return 1.0, 2.0, nil // $1/M prompt, $2/M completion
	})
	s := New(nil, "", staticKey, pricer)

	cost := s.Cost(context.Background(), "m", TokensUsed{Prompt: 1_000_000, Completion: 500_000})
	assert.Equal(t, 2.0, cost)
}

func TestCost_PricingFailureDegradesToZero(t *testing.T) {
	pricer := NewCachedPricer(func(ctx context.Context, model string) (float64, float64, error) {
		return 0, 0, assertError{}
	})
	s := New(nil, "", staticKey, pricer)
	assert.Equal(t, 0.0, s.Cost(context.Background(), "m", TokensUsed{Prompt: 100}))
}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestCachedPricer_CachesWithinTTL(t *testing.T) {
	calls := 0
	pricer := NewCachedPricer(func(ctx context.Context, model string) (float64, float64, error) {
		calls++
		return 1, 1, nil
	})
	_, _, _ = pricer.Price(context.Background(), "m")
	_, _, _ = pricer.Price(context.Background(), "m")
	assert.Equal(t, 1, calls)
}
