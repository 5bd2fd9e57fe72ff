// Package store implements the durable relational layer over the four
// ingestion entities, using raw SQL against Postgres rather than an ORM —
// the same idiom the teacher repo's feature repositories use.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/SpasZahariev/rag-pulled/internal/ingestion"
)

// Store is the durable relational layer exposing the entity operations
// the queue and processor need as atomic units.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnqueueJob atomically inserts one job row and one document row per
// input, all within a single transaction: either all rows commit or none
// do.
func (s *Store) EnqueueJob(ctx context.Context, userID, uploadSessionID string, docs []ingestion.NewDocumentInput) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var jobID string
	jobQuery := `INSERT INTO ingestion_jobs (user_id, upload_session_id, status, attempt_count, max_attempts, next_run_at)
		VALUES ($1, $2, $3, 0, $4, NOW()) RETURNING id`
	err = tx.QueryRowContext(ctx, jobQuery, userID, uploadSessionID, ingestion.JobQueued, ingestion.DefaultMaxAttempts).Scan(&jobID)
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}

	docQuery := `INSERT INTO uploaded_documents (job_id, user_id, original_name, stored_name, stored_path, mime_type, size_bytes, structured_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, d := range docs {
		if _, err := tx.ExecContext(ctx, docQuery, jobID, userID, d.OriginalName, d.StoredName, d.StoredPath, d.MimeType, d.SizeBytes, ingestion.DocumentPending); err != nil {
			return "", fmt.Errorf("insert document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit enqueue tx: %w", err)
	}
	return jobID, nil
}

// ClaimNext selects the oldest eligible queued job and atomically
// transitions it to processing_structure via a conditional update
// (compare-and-swap on status=queued). Returns nil, nil if no job was
// claimed.
func (s *Store) ClaimNext(ctx context.Context) (*ingestion.IngestionJob, error) {
	const query = `
		UPDATE ingestion_jobs
		SET status = $1, attempt_count = attempt_count + 1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM ingestion_jobs
			WHERE status = $2 AND next_run_at <= NOW() AND attempt_count < max_attempts
			ORDER BY created_at ASC
			LIMIT 1
		)
		AND status = $2
		RETURNING id, user_id, upload_session_id, status, attempt_count, max_attempts, next_run_at, error, created_at, updated_at`

	row := s.db.QueryRowContext(ctx, query, ingestion.JobProcessingStructure, ingestion.JobQueued)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// GetDocumentsForJob returns all documents for a job ordered by
// createdAt ascending, so retried jobs reprocess in the same sequence.
func (s *Store) GetDocumentsForJob(ctx context.Context, jobID string) ([]ingestion.UploadedDocument, error) {
	const query = `SELECT id, job_id, user_id, original_name, stored_name, stored_path, mime_type, size_bytes, structured_status, error, created_at, updated_at
		FROM uploaded_documents WHERE job_id = $1 ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("get documents for job: %w", err)
	}
	defer rows.Close()

	var docs []ingestion.UploadedDocument
	for rows.Next() {
		var d ingestion.UploadedDocument
		if err := rows.Scan(&d.DocumentID, &d.JobID, &d.UserID, &d.OriginalName, &d.StoredName, &d.StoredPath, &d.MimeType, &d.SizeBytes, &d.StructuredStatus, &d.Error, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// SetJobStatus is an unconditional status write.
func (s *Store) SetJobStatus(ctx context.Context, jobID string, status ingestion.JobStatus, errMsg *string) error {
	const query = `UPDATE ingestion_jobs SET status = $1, error = $2, updated_at = NOW() WHERE id = $3`
	_, err := s.db.ExecContext(ctx, query, status, errMsg, jobID)
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

// SetDocumentStructuredStatus is an unconditional status write for a
// document.
func (s *Store) SetDocumentStructuredStatus(ctx context.Context, documentID string, status ingestion.DocumentStatus, errMsg *string) error {
	const query = `UPDATE uploaded_documents SET structured_status = $1, error = $2, updated_at = NOW() WHERE id = $3`
	_, err := s.db.ExecContext(ctx, query, status, errMsg, documentID)
	if err != nil {
		return fmt.Errorf("set document status: %w", err)
	}
	return nil
}

// FailWithRetry is read-then-write: if attempts remain it reschedules
// with exponential backoff, otherwise it fails the job terminally. A
// missing job row is a no-op. The returned bool reports whether the job
// was failed terminally, so callers can tell a terminal failure apart
// from a requeue when deciding what to publish/log.
func (s *Store) FailWithRetry(ctx context.Context, jobID string, errMsg string) (bool, error) {
	const selectQuery = `SELECT attempt_count, max_attempts FROM ingestion_jobs WHERE id = $1`
	var attemptCount, maxAttempts int
	err := s.db.QueryRowContext(ctx, selectQuery, jobID).Scan(&attemptCount, &maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read job for failWithRetry: %w", err)
	}

	if attemptCount >= maxAttempts {
		const query = `UPDATE ingestion_jobs SET status = $1, error = $2, updated_at = NOW() WHERE id = $3`
		_, err := s.db.ExecContext(ctx, query, ingestion.JobFailed, errMsg, jobID)
		if err != nil {
			return false, fmt.Errorf("fail job terminally: %w", err)
		}
		return true, nil
	}

	nextRunAt := time.Now().Add(ingestion.Backoff(attemptCount))
	const query = `UPDATE ingestion_jobs SET status = $1, error = $2, next_run_at = $3, updated_at = NOW() WHERE id = $4`
	_, err = s.db.ExecContext(ctx, query, ingestion.JobQueued, errMsg, nextRunAt, jobID)
	if err != nil {
		return false, fmt.Errorf("requeue job with backoff: %w", err)
	}
	return false, nil
}

// GetJobWithDocuments is the read side of the status boundary, scoped to
// userID.
func (s *Store) GetJobWithDocuments(ctx context.Context, jobID, userID string) (*ingestion.IngestionJob, []ingestion.UploadedDocument, error) {
	const query = `SELECT id, user_id, upload_session_id, status, attempt_count, max_attempts, next_run_at, error, created_at, updated_at
		FROM ingestion_jobs WHERE id = $1 AND user_id = $2`
	row := s.db.QueryRowContext(ctx, query, jobID, userID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get job with documents: %w", err)
	}

	docs, err := s.GetDocumentsForJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return job, docs, nil
}

// InsertChunks persists chunks in one transaction with their ChunkIndex
// and Text as given (the processor assigns the dense 0-based chunkIndex
// and trims text before calling it), and returns the persisted rows in
// insertion order. Empty input is a no-op.
func (s *Store) InsertChunks(ctx context.Context, documentID string, chunks []ingestion.DocumentChunk) ([]ingestion.DocumentChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert chunks tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO document_chunks (document_id, chunk_index, text, metadata) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	persisted := make([]ingestion.DocumentChunk, 0, len(chunks))
	for _, c := range chunks {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal chunk metadata: %w", err)
		}
		row := c
		row.DocumentID = documentID
		if err := tx.QueryRowContext(ctx, query, documentID, c.ChunkIndex, c.Text, metaJSON).Scan(&row.ChunkID, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert chunk: %w", err)
		}
		persisted = append(persisted, row)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert chunks tx: %w", err)
	}
	return persisted, nil
}

// DeleteChunksForDocument removes all chunks (and, via ON DELETE CASCADE,
// their embeddings) belonging to documentID. Used by the
// delete-before-reprocess retry policy (see DESIGN.md).
func (s *Store) DeleteChunksForDocument(ctx context.Context, documentID string) error {
	const query = `DELETE FROM document_chunks WHERE document_id = $1`
	_, err := s.db.ExecContext(ctx, query, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks for document: %w", err)
	}
	return nil
}

// InsertEmbedding persists one ChunkEmbedding row. The vector is stored
// as a JSON array per the persisted-state contract (no native vector
// type is assumed), not a Postgres ARRAY column.
func (s *Store) InsertEmbedding(ctx context.Context, e ingestion.ChunkEmbedding) (string, error) {
	const query = `INSERT INTO chunk_embeddings (chunk_id, embedding_model, embedding_dim, embedding) VALUES ($1, $2, $3, $4) RETURNING id`
	vecJSON, err := json.Marshal(e.Embedding)
	if err != nil {
		return "", fmt.Errorf("marshal embedding vector: %w", err)
	}
	var id string
	err = s.db.QueryRowContext(ctx, query, e.ChunkID, e.EmbeddingModel, e.EmbeddingDim, vecJSON).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert embedding: %w", err)
	}
	return id, nil
}

func scanJob(row *sql.Row) (*ingestion.IngestionJob, error) {
	var j ingestion.IngestionJob
	if err := row.Scan(&j.JobID, &j.UserID, &j.UploadSessionID, &j.Status, &j.AttemptCount, &j.MaxAttempts, &j.NextRunAt, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}
