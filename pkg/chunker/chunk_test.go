package chunker

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_Empty(t *testing.T) {
	chunks, err := ChunkText("", DefaultChunkSize, DefaultOverlap)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkText_PreservesOrderAndBounds(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 200)
	chunks, err := ChunkText(text, DefaultChunkSize, DefaultOverlap)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, c.TokenCount, DefaultChunkSize)
	}
}

func TestChunkText_OverlapGreaterThanChunkSizeTerminates(t *testing.T) {
	text := strings.Repeat("word ", 1000)
	done := make(chan []Chunk, 1)
	go func() {
		chunks, _ := ChunkText(text, 10, 50)
		done <- chunks
	}()

	select {
	case chunks := <-done:
		assert.NotEmpty(t, chunks)
	case <-time.After(5 * time.Second):
		t.Fatal("ChunkText did not terminate when overlap >= chunkSize")
	}
}
