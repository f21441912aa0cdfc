// Package pipeline wires the chunker, embedding client, and vector store
// into the concrete ingestion.Processor the reaper drives, and a local-disk
// ingestion.BlobStore for the file bytes the processor reads. Kept as its
// own package rather than inside pkg/ingestion so the reaper's dependency
// on chunker/embedding/vectorstore stays an interface seam, not an import.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aihub-platform/backend/pkg/chunker"
	"github.com/aihub-platform/backend/pkg/models"
	"github.com/aihub-platform/backend/pkg/vectorstore"
)

// Embedder is the subset of pkg/embedding.Client the processor needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorWriter is the subset of pkg/vectorstore.Store the processor needs.
type VectorWriter interface {
	Upsert(ctx context.Context, assistantID, fileID string, chunks []vectorstore.Chunk) error
}

// Processor implements ingestion.Processor: extract text, chunk it, embed
// the chunks, and upsert them into the vector store.
type Processor struct {
	embedder Embedder
	store    VectorWriter
}

func NewProcessor(embedder Embedder, store VectorWriter) *Processor {
	return &Processor{embedder: embedder, store: store}
}

// Process implements ingestion.Processor. It never retries internally: a
// failure here is reported to the caller, which records it via
// ingestion.Store.MarkFailed and lets the reaper's backoff schedule decide
// when to try again.
func (p *Processor) Process(ctx context.Context, file *models.KnowledgeFile, content []byte) (int, error) {
	text, err := chunker.Extract(file.Filename, file.FileType, content, chunker.ExtractPDFText, chunker.ExtractDOCXText)
	if err != nil {
		return 0, err
	}

	chunks, err := chunker.ChunkText(text, chunker.DefaultChunkSize, chunker.DefaultOverlap)
	if err != nil {
		return 0, fmt.Errorf("chunking text: %w", err)
	}
	if len(chunks) == 0 {
		return 0, errors.New("No text content found in file")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding chunks: %w", err)
	}

	storeChunks := make([]vectorstore.Chunk, len(chunks))
	for i, c := range chunks {
		storeChunks[i] = vectorstore.Chunk{
			FileID:     file.ID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Embedding:  vectors[i],
			TokenCount: c.TokenCount,
			Filename:   file.Filename,
		}
	}

	assistantID := file.AssistantID
	if err := p.store.Upsert(ctx, assistantID, file.ID, storeChunks); err != nil {
		return 0, fmt.Errorf("storing vector chunks: %w", err)
	}

	return len(storeChunks), nil
}

// DiskBlobStore reads knowledge-file content from the local filesystem path
// recorded at upload time (pkg/api's handleUploadFile).
type DiskBlobStore struct{}

func NewDiskBlobStore() *DiskBlobStore { return &DiskBlobStore{} }

func (DiskBlobStore) Read(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}
