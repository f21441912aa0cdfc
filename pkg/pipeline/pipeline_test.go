package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub-platform/backend/pkg/models"
	"github.com/aihub-platform/backend/pkg/vectorstore"
)

type fakeEmbedder struct {
	calls [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.calls = append(f.calls, texts)
	vectors := make([][]float64, len(texts))
	for i := range texts {
		vectors[i] = []float64{float64(i)}
	}
	return vectors, nil
}

type fakeVectorWriter struct {
	assistantID, fileID string
	chunks              []vectorstore.Chunk
}

func (f *fakeVectorWriter) Upsert(_ context.Context, assistantID, fileID string, chunks []vectorstore.Chunk) error {
	f.assistantID, f.fileID, f.chunks = assistantID, fileID, chunks
	return nil
}

func TestProcessor_Process_ChunksEmbedsAndUpserts(t *testing.T) {
	embedder := &fakeEmbedder{}
	writer := &fakeVectorWriter{}
	p := NewProcessor(embedder, writer)

	file := &models.KnowledgeFile{ID: "file-1", AssistantID: "asst-1", Filename: "notes.txt", FileType: models.FileTypeTXT}
	content := []byte("hello world, this is a small plain text file.")

	count, err := p.Process(context.Background(), file, content)
	require.NoError(t, err)
	assert.Equal(t, len(writer.chunks), count)
	assert.Equal(t, "asst-1", writer.assistantID)
	assert.Equal(t, "file-1", writer.fileID)
	require.NotEmpty(t, writer.chunks)
	assert.Equal(t, "notes.txt", writer.chunks[0].Filename)
	assert.NotEmpty(t, writer.chunks[0].Embedding)
	require.Len(t, embedder.calls, 1)
}

func TestProcessor_Process_EmptyTextFailsForRetry(t *testing.T) {
	embedder := &fakeEmbedder{}
	writer := &fakeVectorWriter{}
	p := NewProcessor(embedder, writer)

	file := &models.KnowledgeFile{ID: "file-2", AssistantID: "asst-1", Filename: "empty.txt", FileType: models.FileTypeTXT}
	count, err := p.Process(context.Background(), file, []byte("   \n\t  "))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No text content found in file")
	assert.Equal(t, 0, count)
	assert.Empty(t, embedder.calls)
}

func TestDiskBlobStore_Read_ReturnsFileContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.txt")
	require.NoError(t, os.WriteFile(path, []byte("stored bytes"), 0o644))

	store := NewDiskBlobStore()
	got, err := store.Read(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "stored bytes", string(got))
}

func TestDiskBlobStore_Read_MissingFileErrors(t *testing.T) {
	store := NewDiskBlobStore()
	_, err := store.Read(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
