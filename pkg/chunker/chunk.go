package chunker

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultChunkSize and DefaultOverlap match spec §4.2's fixed chunking
// parameters.
const (
	DefaultChunkSize = 512
	DefaultOverlap   = 50
)

// Chunk is one token-bounded window of a document's text.
type Chunk struct {
	Text       string
	Index      int
	TokenCount int
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// encoding lazily loads the cl100k_base encoding used for token-bounded
// windows and token counting in this package.
func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	return enc, encErr
}

// ChunkText splits text into token-bounded overlapping windows. Empty input
// yields an empty slice. If overlap >= chunkSize the function still
// terminates (advance is clamped to at least 1 token) rather than looping
// forever, satisfying the boundary behavior in spec §8.
func ChunkText(text string, chunkSize, overlap int) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	tk, err := encoding()
	if err != nil {
		return nil, err
	}

	tokens := tk.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil, nil
	}

	advance := chunkSize - overlap
	if advance < 1 {
		advance = 1
	}

	var chunks []Chunk
	for start, idx := 0, 0; start < len(tokens); start, idx = start+advance, idx+1 {
		end := start + chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		decoded := strings.TrimSpace(tk.Decode(window))
		if decoded != "" {
			chunks = append(chunks, Chunk{Text: decoded, Index: idx, TokenCount: len(window)})
		}
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}

// CountTokens returns the cl100k token count for text. pkg/rag does not use
// it; its context budget is a characters-per-token estimate.
func CountTokens(text string) (int, error) {
	tk, err := encoding()
	if err != nil {
		return 0, err
	}
	return len(tk.Encode(text, nil, nil)), nil
}
