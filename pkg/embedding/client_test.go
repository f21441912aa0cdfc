package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub-platform/backend/pkg/apperr"
)

func staticKey(ctx context.Context) (string, error) { return "test-key", nil }

func TestEmbed_PreservesOrderWithinBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Respond deliberately out of order to exercise the reordering logic.
		data := make([]embeddingDatum, len(req.Input))
		for i := range req.Input {
			reversed := len(req.Input) - 1 - i
			data[i] = embeddingDatum{Index: reversed, Embedding: []float64{float64(reversed)}}
		}
		_ = json.NewEncoder(w).Encode(embeddingResponse{Data: data})
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "test-model", staticKey)
	vectors, err := c.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, []float64{float64(i)}, v)
	}
}

func TestEmbed_SplitsIntoBatches(t *testing.T) {
	var batchSizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batchSizes = append(batchSizes, len(req.Input))

		data := make([]embeddingDatum, len(req.Input))
		for i := range req.Input {
			data[i] = embeddingDatum{Index: i, Embedding: []float64{1}}
		}
		_ = json.NewEncoder(w).Encode(embeddingResponse{Data: data})
	}))
	defer srv.Close()

	texts := make([]string, BatchSize+1)
	for i := range texts {
		texts[i] = "x"
	}

	c := New(srv.Client(), srv.URL, "test-model", staticKey)
	vectors, err := c.Embed(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vectors, BatchSize+1)
	assert.Equal(t, []int{BatchSize, 1}, batchSizes)
}

func TestEmbed_NonTwoXXReturnsUpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "test-model", staticKey)
	_, err := c.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstreamUnavailable))
}
