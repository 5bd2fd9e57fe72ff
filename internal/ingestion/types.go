// Package ingestion holds the entity types and status machines shared by
// the store, queue, and processor layers of the document ingestion
// pipeline.
package ingestion

import "time"

// JobStatus is the lifecycle state of an IngestionJob.
type JobStatus string

const (
	JobQueued               JobStatus = "queued"
	JobProcessingStructure  JobStatus = "processing_structure"
	JobProcessingEmbeddings JobStatus = "processing_embeddings"
	JobCompleted            JobStatus = "completed"
	JobFailed               JobStatus = "failed"
)

// Terminal reports whether s is a terminal job status.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// DocumentStatus is the lifecycle state of an UploadedDocument's
// structuring progress.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentStructured DocumentStatus = "structured"
	DocumentUnsupported DocumentStatus = "unsupported"
	DocumentFailed     DocumentStatus = "failed"
)

// Terminal reports whether s is a terminal document structuring status.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case DocumentStructured, DocumentUnsupported, DocumentFailed:
		return true
	default:
		return false
	}
}

const DefaultMaxAttempts = 3

// IngestionJob spans one upload session's files.
type IngestionJob struct {
	JobID           string
	UserID          string
	UploadSessionID string
	Status          JobStatus
	AttemptCount    int
	MaxAttempts     int
	NextRunAt       time.Time
	Error           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UploadedDocument is one file within a job.
type UploadedDocument struct {
	DocumentID      string
	JobID           string
	UserID          string
	OriginalName    string
	StoredName      string
	StoredPath      string
	MimeType        string
	SizeBytes       int64
	StructuredStatus DocumentStatus
	Error           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewDocumentInput is the caller-supplied shape for one document at
// enqueue time.
type NewDocumentInput struct {
	OriginalName string
	StoredName   string
	StoredPath   string
	MimeType     string
	SizeBytes    int64
}

// DocumentChunk is one semantically coherent text unit extracted from a
// document.
type DocumentChunk struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Text       string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// ChunkEmbedding is a fixed-length vector produced by a model from a
// chunk's text.
type ChunkEmbedding struct {
	EmbeddingID   string
	ChunkID       string
	EmbeddingModel string
	EmbeddingDim  int
	Embedding     []float64
	CreatedAt     time.Time
}

// Backoff implements clamp(2^n * 1000ms, 5000ms, 60000ms).
func Backoff(attemptCount int) time.Duration {
	const (
		min = 5 * time.Second
		max = 60 * time.Second
	)
	if attemptCount < 0 {
		attemptCount = 0
	}
	// Guard against overflow for pathologically large attempt counts;
	// anything beyond ~16 doublings is already far past the clamp ceiling.
	shift := attemptCount
	if shift > 16 {
		shift = 16
	}
	d := time.Duration(1<<uint(shift)) * time.Second
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
