package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub-platform/backend/pkg/vectorstore"
)

type stubEmbedder struct{ vector []float64 }

func (s stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

type stubStore struct{ matches []vectorstore.Match }

func (s stubStore) Query(ctx context.Context, assistantID string, queryVector []float64, topK int) ([]vectorstore.Match, error) {
	if topK > 0 && topK < len(s.matches) {
		return s.matches[:topK], nil
	}
	return s.matches, nil
}

func TestCompose_EmptyContextUsesPlainSystemPrompt(t *testing.T) {
	c := New(stubEmbedder{vector: []float64{1, 0}}, stubStore{matches: nil})
	result, err := c.Compose(context.Background(), Assistant{Name: "Helper", Instructions: "Be terse.", MaxRetrievalChunks: 5, MaxContextTokens: 1000}, "hello")
	require.NoError(t, err)
	assert.Equal(t, "You are Helper.\n\nBe terse.", result.SystemPrompt)
	assert.Equal(t, 0, result.SourcesUsed)
}

func TestCompose_DiscardsBelowSimilarityThreshold(t *testing.T) {
	matches := []vectorstore.Match{
		{Chunk: vectorstore.Chunk{Text: "close match"}, Distance: 0.2},  // similarity 0.9
		{Chunk: vectorstore.Chunk{Text: "far match"}, Distance: 1.0},    // similarity 0.5, discarded
	}
	c := New(stubEmbedder{vector: []float64{1, 0}}, stubStore{matches: matches})
	result, err := c.Compose(context.Background(), Assistant{Name: "Helper", Instructions: "x", MaxRetrievalChunks: 5, MaxContextTokens: 1000}, "q")
	require.NoError(t, err)
	assert.Equal(t, 1, result.SourcesUsed)
	assert.Contains(t, result.SystemPrompt, "close match")
	assert.NotContains(t, result.SystemPrompt, "far match")
}

func TestCompose_SortsBySimilarityDescending(t *testing.T) {
	matches := []vectorstore.Match{
		{Chunk: vectorstore.Chunk{Text: "second best"}, Distance: 0.4},
		{Chunk: vectorstore.Chunk{Text: "best"}, Distance: 0.1},
	}
	c := New(stubEmbedder{vector: []float64{1, 0}}, stubStore{matches: matches})
	result, err := c.Compose(context.Background(), Assistant{Name: "Helper", Instructions: "x", MaxRetrievalChunks: 5, MaxContextTokens: 1000}, "q")
	require.NoError(t, err)

	bestIdx := strings.Index(result.SystemPrompt, "best")
	secondIdx := strings.Index(result.SystemPrompt, "second best")
	assert.Less(t, bestIdx, secondIdx)
}

func TestCompose_PacksUnderCharBudget(t *testing.T) {
	longChunk := strings.Repeat("x", 100)
	matches := []vectorstore.Match{
		{Chunk: vectorstore.Chunk{Text: longChunk}, Distance: 0.1},
		{Chunk: vectorstore.Chunk{Text: longChunk}, Distance: 0.1},
		{Chunk: vectorstore.Chunk{Text: longChunk}, Distance: 0.1},
	}
	// budget of 40 tokens * 4 chars/token = 160 chars: only one ~110-char
	// "[Source N] xxxx..." entry fits.
	c := New(stubEmbedder{vector: []float64{1, 0}}, stubStore{matches: matches})
	result, err := c.Compose(context.Background(), Assistant{Name: "Helper", Instructions: "x", MaxRetrievalChunks: 5, MaxContextTokens: 40}, "q")
	require.NoError(t, err)
	assert.Equal(t, 1, result.SourcesUsed)
	assert.Equal(t, 2, result.ChunksSkipped)
}
