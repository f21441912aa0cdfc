// Package ingestion implements the knowledge-file ingestion state machine
// and background reaper (C5): pending -> processing -> indexing ->
// ready/failed, with attempt accounting, exponential backoff, and stale-claim
// reclamation. The claim/heartbeat/backoff shape is grounded on the
// teacher's pkg/queue worker, adapted from ent transactions to raw pgx SQL
// since no ORM is wired into this deployment.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aihub-platform/backend/pkg/apperr"
	"github.com/aihub-platform/backend/pkg/metrics"
	"github.com/aihub-platform/backend/pkg/models"
)

// Backoff constants match original_source/backend/app/services/ingestion_reaper.py:
// backoff = BackoffBaseMinutes * BackoffMultiplier^(attempt-1) minutes (5, 15, 45, ...).
const (
	BackoffBaseMinutes    = 5
	BackoffMultiplier     = 3
	StuckThresholdMinutes = 15
	DefaultReaperInterval = 300 * time.Second
	DefaultPollJitter     = 15 * time.Second
)

var ErrNoFilesAvailable = errors.New("ingestion: no files available to claim")

// Processor turns raw file bytes into stored, embedded vector chunks. The
// concrete implementation wires together pkg/chunker and pkg/embedding;
// kept as an interface here so the reaper has no direct dependency on
// either, mirroring the teacher's SessionExecutor seam.
type Processor interface {
	Process(ctx context.Context, file *models.KnowledgeFile, content []byte) (chunkCount int, err error)
}

// BlobStore retrieves the raw bytes for a knowledge file's stored path.
type BlobStore interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Enqueue inserts a new knowledge_files row in the pending state.
func (s *Store) Enqueue(ctx context.Context, f *models.KnowledgeFile) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO knowledge_files (assistant_id, workspace_id, filename, file_type, file_path, size_bytes, status, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
		RETURNING id, created_at
	`, f.AssistantID, f.WorkspaceID, f.Filename, f.FileType, f.FilePath, f.SizeBytes, maxAttemptsOrDefault(f.MaxAttempts)).
		Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueuing knowledge file: %w", err)
	}
	f.Status = models.FileStatusPending
	return nil
}

func maxAttemptsOrDefault(n int) int {
	if n <= 0 {
		return 3
	}
	return n
}

// Get loads a knowledge file by ID, scoped to its owning assistant for the
// caller to enforce ownership.
func (s *Store) Get(ctx context.Context, id string) (*models.KnowledgeFile, error) {
	f, err := scanFile(s.pool.QueryRow(ctx, fileSelectColumns+` FROM knowledge_files WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("knowledge file not found")
		}
		return nil, fmt.Errorf("loading knowledge file %s: %w", id, err)
	}
	return f, nil
}

// ListByAssistant returns every knowledge file for an assistant, newest
// first.
func (s *Store) ListByAssistant(ctx context.Context, assistantID string) ([]*models.KnowledgeFile, error) {
	rows, err := s.pool.Query(ctx, fileSelectColumns+` FROM knowledge_files WHERE assistant_id = $1 ORDER BY created_at DESC`, assistantID)
	if err != nil {
		return nil, fmt.Errorf("listing knowledge files: %w", err)
	}
	defer rows.Close()

	var out []*models.KnowledgeFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning knowledge file row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Delete removes a knowledge file row; the caller is responsible for also
// clearing its vector chunks and blob.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM knowledge_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting knowledge file %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("knowledge file not found")
	}
	return nil
}

const fileSelectColumns = `
	SELECT id, assistant_id, workspace_id, filename, file_type, file_path, size_bytes,
	       chunk_count, status, attempt_count, max_attempts, processing_started_at,
	       next_retry_at, last_error, error_message, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*models.KnowledgeFile, error) {
	var f models.KnowledgeFile
	err := row.Scan(&f.ID, &f.AssistantID, &f.WorkspaceID, &f.Filename, &f.FileType, &f.FilePath, &f.SizeBytes,
		&f.ChunkCount, &f.Status, &f.AttemptCount, &f.MaxAttempts, &f.ProcessingStartedAt,
		&f.NextRetryAt, &f.LastError, &f.ErrorMessage, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ClaimNext atomically claims one pending-or-due-retry file using
// FOR UPDATE SKIP LOCKED, marks it processing, and bumps its attempt count.
func (s *Store) ClaimNext(ctx context.Context, now time.Time) (*models.KnowledgeFile, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id FROM knowledge_files
		WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, now)

	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoFilesAvailable
		}
		return nil, fmt.Errorf("claiming next file: %w", err)
	}

	f, err := scanFile(tx.QueryRow(ctx, fileSelectColumns+` FROM knowledge_files WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("loading claimed file: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE knowledge_files
		SET status = 'processing', attempt_count = attempt_count + 1, processing_started_at = $2, next_retry_at = NULL
		WHERE id = $1
	`, id, now)
	if err != nil {
		return nil, fmt.Errorf("marking file claimed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	f.Status = models.FileStatusProcessing
	f.AttemptCount++
	f.ProcessingStartedAt = &now
	return f, nil
}

// Heartbeat refreshes processing_started_at for a file being actively
// worked, so the reaper's stale-claim detector treats it as live. Reusing
// processing_started_at (rather than adding a column) mirrors the
// teacher's single last_interaction_at timestamp approach.
func (s *Store) Heartbeat(ctx context.Context, id string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE knowledge_files SET processing_started_at = $2 WHERE id = $1 AND status IN ('processing', 'indexing')`, id, now)
	if err != nil {
		return fmt.Errorf("heartbeat for file %s: %w", id, err)
	}
	return nil
}

// MarkIndexing transitions a file from processing (extraction/chunking
// done) to indexing (embedding + vector store writes underway).
func (s *Store) MarkIndexing(ctx context.Context, id string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE knowledge_files SET status = 'indexing', processing_started_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("marking file indexing: %w", err)
	}
	return nil
}

// MarkReady transitions a file to its terminal success state.
func (s *Store) MarkReady(ctx context.Context, id string, chunkCount int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE knowledge_files
		SET status = 'ready', chunk_count = $2, last_error = NULL, error_message = NULL, next_retry_at = NULL
		WHERE id = $1
	`, id, chunkCount)
	if err != nil {
		return fmt.Errorf("marking file ready: %w", err)
	}
	return nil
}

// MarkFailed records a failure. If the file has attempts remaining it
// returns to pending with next_retry_at scheduled by exponential backoff
// (§4.5); otherwise it moves to the terminal failed state with
// next_retry_at left null.
func (s *Store) MarkFailed(ctx context.Context, id string, attemptCount, maxAttempts int, cause error, now time.Time) error {
	msg := cause.Error()

	status := models.FileStatusFailed
	var nextRetry *time.Time
	if attemptCount < maxAttempts {
		status = models.FileStatusPending
		delay := BackoffDelay(attemptCount)
		t := now.Add(delay)
		nextRetry = &t
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE knowledge_files
		SET status = $4, last_error = $2, error_message = $2, next_retry_at = $3
		WHERE id = $1
	`, id, msg, nextRetry, status)
	if err != nil {
		return fmt.Errorf("marking file failed: %w", err)
	}
	return nil
}

// ReclaimStale resets any file stuck in processing/indexing for longer than
// StuckThresholdMinutes, per §4.5: records whose attempts are exhausted go
// to failed, the rest are demoted to pending with a backoff-scheduled
// next_retry_at, mirroring the same attempt accounting MarkFailed applies
// on an explicit failure. Records with a null processing_started_at use
// created_at as the stale reference. Runs in one transaction so a reaper
// tick's reclaim is atomic. Returns the number of files reclaimed.
func (s *Store) ReclaimStale(ctx context.Context, now time.Time) (int, error) {
	threshold := now.Add(-StuckThresholdMinutes * time.Minute)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning reclaim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, attempt_count, max_attempts
		FROM knowledge_files
		WHERE status IN ('processing', 'indexing')
		  AND COALESCE(processing_started_at, created_at) < $1
		FOR UPDATE SKIP LOCKED
	`, threshold)
	if err != nil {
		return 0, fmt.Errorf("selecting stale files: %w", err)
	}

	type stale struct {
		id                         string
		attemptCount, maxAttempts int
	}
	var candidates []stale
	for rows.Next() {
		var c stale
		if err := rows.Scan(&c.id, &c.attemptCount, &c.maxAttempts); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning stale file: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating stale files: %w", err)
	}
	rows.Close()

	const staleMsg = "file processing exceeded the stale-processing cutoff and was reclaimed"
	for _, c := range candidates {
		if c.attemptCount >= c.maxAttempts {
			_, err = tx.Exec(ctx, `
				UPDATE knowledge_files
				SET status = 'failed', last_error = $2, error_message = $2, next_retry_at = NULL
				WHERE id = $1
			`, c.id, staleMsg)
		} else {
			nextRetry := now.Add(BackoffDelay(c.attemptCount))
			_, err = tx.Exec(ctx, `
				UPDATE knowledge_files
				SET status = 'pending', processing_started_at = NULL, last_error = $2, next_retry_at = $3
				WHERE id = $1
			`, c.id, staleMsg, nextRetry)
		}
		if err != nil {
			return 0, fmt.Errorf("reclaiming stale file %s: %w", c.id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing reclaim: %w", err)
	}
	metrics.IngestionReclaimedTotal.Add(float64(len(candidates)))
	return len(candidates), nil
}

// QueueDepth reports the number of files waiting to be claimed, for the
// ingestion_queue_depth gauge the reaper refreshes each poll cycle.
func (s *Store) QueueDepth(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM knowledge_files
		WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= $1)
	`, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting queue depth: %w", err)
	}
	return n, nil
}

// BackoffDelay returns the retry delay for a file that has just failed its
// Nth attempt (1-indexed): 5, 15, 45, ... minutes.
func BackoffDelay(attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}
	minutes := BackoffBaseMinutes
	for i := 1; i < attemptCount; i++ {
		minutes *= BackoffMultiplier
	}
	return time.Duration(minutes) * time.Minute
}

// Reaper polls for claimable files and runs them through Processor,
// reclaiming stale claims on each cycle, in the style of the teacher's
// queue worker loop.
type Reaper struct {
	store        *Store
	blobs        BlobStore
	processor    Processor
	pollInterval time.Duration
	pollJitter   time.Duration

	stopCh chan struct{}
}

func NewReaper(store *Store, blobs BlobStore, processor Processor, pollInterval time.Duration) *Reaper {
	if pollInterval <= 0 {
		pollInterval = DefaultReaperInterval
	}
	return &Reaper{
		store:        store,
		blobs:        blobs,
		processor:    processor,
		pollInterval: pollInterval,
		pollJitter:   DefaultPollJitter,
		stopCh:       make(chan struct{}),
	}
}

// Run blocks, polling until ctx is cancelled or Stop is called.
func (r *Reaper) Run(ctx context.Context) {
	log := slog.With("component", "ingestion_reaper")
	log.Info("reaper started", "poll_interval", r.pollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Info("reaper stopping: context cancelled")
			return
		case <-r.stopCh:
			log.Info("reaper stopping")
			return
		default:
		}

		if n, err := r.store.ReclaimStale(ctx, time.Now()); err != nil {
			log.Error("reclaiming stale files failed", "error", err)
		} else if n > 0 {
			log.Info("reclaimed stale files", "count", n)
		}

		if depth, err := r.store.QueueDepth(ctx, time.Now()); err != nil {
			log.Error("measuring queue depth failed", "error", err)
		} else {
			metrics.IngestionQueueDepth.Set(float64(depth))
		}

		if err := r.processOne(ctx); err != nil {
			if errors.Is(err, ErrNoFilesAvailable) {
				r.sleep(r.jitteredInterval())
				continue
			}
			log.Error("processing file failed", "error", err)
			r.sleep(time.Second)
		}
	}
}

func (r *Reaper) Stop() { close(r.stopCh) }

func (r *Reaper) sleep(d time.Duration) {
	select {
	case <-r.stopCh:
	case <-time.After(d):
	}
}

func (r *Reaper) jitteredInterval() time.Duration {
	if r.pollJitter <= 0 {
		return r.pollInterval
	}
	offset := time.Duration(rand.Int64N(int64(2 * r.pollJitter)))
	return r.pollInterval - r.pollJitter + offset
}

func (r *Reaper) processOne(ctx context.Context) error {
	file, err := r.store.ClaimNext(ctx, time.Now())
	if err != nil {
		return err
	}

	log := slog.With("file_id", file.ID, "filename", file.Filename)
	log.Info("claimed file for ingestion")

	content, err := r.blobs.Read(ctx, file.FilePath)
	if err != nil {
		return r.fail(ctx, file, fmt.Errorf("reading blob: %w", err))
	}

	if err := r.store.MarkIndexing(ctx, file.ID, time.Now()); err != nil {
		log.Warn("failed to mark file indexing", "error", err)
	}

	chunkCount, err := r.processor.Process(ctx, file, content)
	if err != nil {
		return r.fail(ctx, file, err)
	}

	if err := r.store.MarkReady(ctx, file.ID, chunkCount); err != nil {
		return fmt.Errorf("marking file ready: %w", err)
	}
	log.Info("file ingestion complete", "chunk_count", chunkCount)
	return nil
}

func (r *Reaper) fail(ctx context.Context, file *models.KnowledgeFile, cause error) error {
	if err := r.store.MarkFailed(ctx, file.ID, file.AttemptCount, file.MaxAttempts, cause, time.Now()); err != nil {
		return fmt.Errorf("recording failure for file %s: %w", file.ID, err)
	}
	return nil
}
