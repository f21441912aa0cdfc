// Package vectorstore implements C4: per-assistant vector collections over
// the vector_chunks table, with upsert/query/delete/drop operations. No
// pgvector extension is available in this deployment's dependency set, so
// embeddings are stored as a double precision array column and nearest
// neighbors are computed in application code after an assistant-scoped
// fetch, following the same "fetch then compute" shape as the teacher's
// in-memory alert correlation pass.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Chunk is one embedded, persisted unit of a knowledge file.
type Chunk struct {
	FileID     string
	ChunkIndex int
	Text       string
	Embedding  []float64
	TokenCount int
	Filename   string
}

// Match is a query result: a chunk plus its L2 distance to the query vector.
type Match struct {
	Chunk
	Distance float64
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Upsert replaces all chunks for a file in a single transaction: existing
// rows for the file are deleted, then the new set is inserted. This keeps
// the store's invariant that its (file_id, chunk_index) set for a ready
// file equals exactly the chunks that file's latest successful ingest
// produced — a stale partial set from a prior failed attempt can never
// linger.
func (s *Store) Upsert(ctx context.Context, assistantID, fileID string, chunks []Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM vector_chunks WHERE file_id = $1`, fileID); err != nil {
		return fmt.Errorf("clearing existing chunks: %w", err)
	}

	for _, c := range chunks {
		id := fmt.Sprintf("%s_%d", fileID, c.ChunkIndex)
		_, err := tx.Exec(ctx, `
			INSERT INTO vector_chunks (id, assistant_id, file_id, chunk_index, text, embedding, token_count, filename)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, assistantID, fileID, c.ChunkIndex, c.Text, c.Embedding, c.TokenCount, c.Filename)
		if err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.ChunkIndex, err)
		}
	}

	return tx.Commit(ctx)
}

// DeleteByFile removes every chunk belonging to a file, used when a file is
// deleted or re-ingested before its replacement chunks are written.
func (s *Store) DeleteByFile(ctx context.Context, fileID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM vector_chunks WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("deleting chunks for file %s: %w", fileID, err)
	}
	return nil
}

// Drop removes every chunk for an assistant, used when an assistant is
// deleted.
func (s *Store) Drop(ctx context.Context, assistantID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM vector_chunks WHERE assistant_id = $1`, assistantID)
	if err != nil {
		return fmt.Errorf("dropping collection for assistant %s: %w", assistantID, err)
	}
	return nil
}

// Query returns the topK chunks nearest to queryVector for an assistant, by
// ascending L2 distance. Distance is computed in Go after fetching every
// chunk row for the assistant, since no SQL-side vector index exists.
func (s *Store) Query(ctx context.Context, assistantID string, queryVector []float64, topK int) ([]Match, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT file_id, chunk_index, text, embedding, token_count, filename
		FROM vector_chunks
		WHERE assistant_id = $1
	`, assistantID)
	if err != nil {
		return nil, fmt.Errorf("fetching assistant chunks: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.FileID, &c.ChunkIndex, &c.Text, &c.Embedding, &c.TokenCount, &c.Filename); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		matches = append(matches, Match{Chunk: c, Distance: l2Distance(queryVector, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// ChunkCount reports how many chunks are currently stored for a file.
// KnowledgeFile.ChunkCount is set from pkg/pipeline's own count, not from this.
func (s *Store) ChunkCount(ctx context.Context, fileID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM vector_chunks WHERE file_id = $1`, fileID).Scan(&count)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("counting chunks for file %s: %w", fileID, err)
	}
	return count, nil
}

func l2Distance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
