// Package rag implements the RAG composer (C6): embed the query, retrieve
// and rank chunks from the vector store, pack them under a token budget,
// and build the system prompt for a chat turn.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aihub-platform/backend/pkg/vectorstore"
)

// SimilarityThreshold is the minimum similarity a chunk must clear to be
// considered for packing (spec §4.6).
const SimilarityThreshold = 0.7

// CharsPerToken is the heuristic used to convert a token budget into a
// character budget when packing retrieved chunks.
const CharsPerToken = 4

const ragSystemPromptTemplate = `You are %s.

%s

You have access to the following reference material retrieved from the user's
uploaded documents. Use it only when it is relevant to the user's question.
If it is not relevant, answer from general knowledge and say so.

%s`

// Embedder embeds a single query string into a vector, reusing C3's batched
// contract with a one-element batch.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorQuerier is the subset of the vector store the composer needs.
type VectorQuerier interface {
	Query(ctx context.Context, assistantID string, queryVector []float64, topK int) ([]vectorstore.Match, error)
}

type Assistant struct {
	ID                 string
	Name               string
	Instructions       string
	MaxRetrievalChunks int
	MaxContextTokens   int
}

// Result is the composed output of a turn's retrieval pass.
type Result struct {
	SystemPrompt  string
	SourcesUsed   int
	ChunksSkipped int // surviving similarity threshold but dropped by the character budget
}

type Composer struct {
	embedder Embedder
	store    VectorQuerier
}

func New(embedder Embedder, store VectorQuerier) *Composer {
	return &Composer{embedder: embedder, store: store}
}

// Compose runs the full retrieve-rank-pack-prompt pipeline for one turn.
func (c *Composer) Compose(ctx context.Context, assistant Assistant, query string) (*Result, error) {
	vectors, err := c.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding query: no vector returned")
	}

	topK := assistant.MaxRetrievalChunks
	if topK <= 0 {
		topK = 5
	}

	matches, err := c.store.Query(ctx, assistant.ID, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("querying vector store: %w", err)
	}

	type ranked struct {
		text       string
		similarity float64
	}

	var candidates []ranked
	for _, m := range matches {
		similarity := 1 - m.Distance/2
		if similarity < SimilarityThreshold {
			continue
		}
		candidates = append(candidates, ranked{text: m.Text, similarity: similarity})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].similarity > candidates[j].similarity })

	// Pack greedily in ranked order until the next chunk would exceed the
	// character budget (spec §4.6), then stop: candidates are sorted by
	// similarity, so a later, weaker chunk fitting where an earlier,
	// stronger one didn't is not a packing we want. Source numbers count
	// only chunks actually packed, so there are no gaps from skipped ones.
	charBudget := assistant.MaxContextTokens * CharsPerToken
	var packed []string
	used := 0
	sourcesUsed := 0
	skipped := 0
	for i, cand := range candidates {
		source := fmt.Sprintf("[Source %d] %s", sourcesUsed+1, cand.text)
		if used+len(source) > charBudget {
			skipped += len(candidates) - i
			break
		}
		packed = append(packed, source)
		used += len(source)
		sourcesUsed++
	}

	packedContext := strings.Join(packed, "\n\n")

	var systemPrompt string
	if packedContext == "" {
		systemPrompt = fmt.Sprintf("You are %s.\n\n%s", assistant.Name, assistant.Instructions)
	} else {
		systemPrompt = fmt.Sprintf(ragSystemPromptTemplate, assistant.Name, assistant.Instructions, packedContext)
	}

	return &Result{SystemPrompt: systemPrompt, SourcesUsed: sourcesUsed, ChunksSkipped: skipped}, nil
}
