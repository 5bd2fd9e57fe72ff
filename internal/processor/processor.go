// Package processor implements the pure orchestration of one claimed
// job: structure -> persist chunks -> embed each chunk -> persist
// vectors, updating per-document status and returning (implicitly, via
// Queue calls) a job outcome. It never returns an error to its caller —
// every failure path terminates via a Queue call, per spec.md §4.3.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SpasZahariev/rag-pulled/internal/embedder"
	"github.com/SpasZahariev/rag-pulled/internal/ingestion"
	"github.com/SpasZahariev/rag-pulled/internal/structurer"
)

// Store is the persistence surface the processor needs beyond the plain
// Queue operations — chunk/embedding writes that don't belong on the
// Queue's job/document-status-only contract.
type Store interface {
	InsertChunks(ctx context.Context, documentID string, chunks []ingestion.DocumentChunk) ([]ingestion.DocumentChunk, error)
	DeleteChunksForDocument(ctx context.Context, documentID string) error
	InsertEmbedding(ctx context.Context, e ingestion.ChunkEmbedding) (string, error)
}

// Queue is the narrow slice of queue.Queue the processor drives.
type Queue interface {
	GetDocumentsForJob(ctx context.Context, jobID string) ([]ingestion.UploadedDocument, error)
	SetJobStatus(ctx context.Context, jobID string, status ingestion.JobStatus, errMsg *string) error
	SetDocumentStructuredStatus(ctx context.Context, documentID string, status ingestion.DocumentStatus, errMsg *string) error
	FailWithRetry(ctx context.Context, jobID string, errMsg string) error
}

// Processor drives a single claimed job through the structuring and
// embedding stages.
type Processor struct {
	queue      Queue
	store      Store
	structurer structurer.Structurer
	embedder   embedder.Embedder
	uploadRoot string
}

func New(queue Queue, store Store, s structurer.Structurer, e embedder.Embedder, uploadRoot string) *Processor {
	return &Processor{queue: queue, store: store, structurer: s, embedder: e, uploadRoot: uploadRoot}
}

// Process runs the algorithm in spec.md §4.3. It never panics or returns
// an error to the caller: any failure is routed to Queue.FailWithRetry.
func (p *Processor) Process(ctx context.Context, jobID string) {
	if err := p.process(ctx, jobID); err != nil {
		slog.ErrorContext(ctx, "job processing failed", "job_id", jobID, "error", err)
		if retryErr := p.queue.FailWithRetry(ctx, jobID, err.Error()); retryErr != nil {
			slog.ErrorContext(ctx, "failWithRetry itself failed", "job_id", jobID, "error", retryErr)
		}
	}
}

func (p *Processor) process(ctx context.Context, jobID string) error {
	if p.structurer == nil || p.embedder == nil {
		return fmt.Errorf("%w: no structurer/embedder configured", ingestion.ErrConfiguration)
	}

	docs, err := p.queue.GetDocumentsForJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}

	transitionedToEmbeddings := false

	for _, doc := range docs {
		if err := p.queue.SetDocumentStructuredStatus(ctx, doc.DocumentID, ingestion.DocumentProcessing, nil); err != nil {
			return fmt.Errorf("set document processing: %w", err)
		}

		absPath, err := ingestion.ResolveStoredPath(p.uploadRoot, doc.StoredPath)
		if err != nil {
			msg := err.Error()
			if setErr := p.queue.SetDocumentStructuredStatus(ctx, doc.DocumentID, ingestion.DocumentFailed, &msg); setErr != nil {
				return fmt.Errorf("set document failed after path rejection: %w", setErr)
			}
			continue
		}

		result, err := p.structurer.Structure(ctx, absPath, doc.MimeType)
		if err != nil {
			return fmt.Errorf("structure document %s: %w", doc.DocumentID, err)
		}

		switch result.Status {
		case structurer.Unsupported:
			if err := p.queue.SetDocumentStructuredStatus(ctx, doc.DocumentID, ingestion.DocumentUnsupported, strPtr(result.Error)); err != nil {
				return fmt.Errorf("set document unsupported: %w", err)
			}
			continue
		case structurer.Failed:
			if err := p.queue.SetDocumentStructuredStatus(ctx, doc.DocumentID, ingestion.DocumentFailed, strPtr(result.Error)); err != nil {
				return fmt.Errorf("set document failed: %w", err)
			}
			continue
		}

		// Delete-before-reprocess retry policy (DESIGN.md Open Question
		// #1): tolerate pre-existing chunks from a prior attempt by
		// clearing them before inserting the fresh set.
		if err := p.store.DeleteChunksForDocument(ctx, doc.DocumentID); err != nil {
			return fmt.Errorf("clear prior chunks for document %s: %w", doc.DocumentID, err)
		}

		persisted, err := p.insertDenseChunks(ctx, doc.DocumentID, result.Chunks)
		if err != nil {
			return fmt.Errorf("persist chunks for document %s: %w", doc.DocumentID, err)
		}

		if !transitionedToEmbeddings {
			if err := p.queue.SetJobStatus(ctx, jobID, ingestion.JobProcessingEmbeddings, nil); err != nil {
				return fmt.Errorf("transition job to processing_embeddings: %w", err)
			}
			transitionedToEmbeddings = true
		}

		for _, chunk := range persisted {
			embResult, err := p.embedder.Embed(ctx, chunk.Text)
			if err != nil {
				return fmt.Errorf("embed chunk %s: %w", chunk.ChunkID, err)
			}
			_, err = p.store.InsertEmbedding(ctx, ingestion.ChunkEmbedding{
				ChunkID:        chunk.ChunkID,
				EmbeddingModel: embResult.Model,
				EmbeddingDim:   embResult.Dimensions,
				Embedding:      embResult.Vector,
			})
			if err != nil {
				return fmt.Errorf("persist embedding for chunk %s: %w", chunk.ChunkID, err)
			}
		}

		if err := p.queue.SetDocumentStructuredStatus(ctx, doc.DocumentID, ingestion.DocumentStructured, nil); err != nil {
			return fmt.Errorf("set document structured: %w", err)
		}
	}

	if err := p.queue.SetJobStatus(ctx, jobID, ingestion.JobCompleted, nil); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// insertDenseChunks trims text, drops empty entries, and reassigns dense
// 0-based chunkIndex regardless of the provider's input indices (spec.md
// §4.4). Empty input is a no-op returning nil.
func (p *Processor) insertDenseChunks(ctx context.Context, documentID string, raw []structurer.Chunk) ([]ingestion.DocumentChunk, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	dense := make([]ingestion.DocumentChunk, 0, len(raw))
	idx := 0
	for _, c := range raw {
		trimmed := trimText(c.Text)
		if trimmed == "" {
			continue
		}
		dense = append(dense, ingestion.DocumentChunk{
			DocumentID: documentID,
			ChunkIndex: idx,
			Text:       trimmed,
			Metadata:   c.Metadata,
		})
		idx++
	}
	if len(dense) == 0 {
		return nil, nil
	}

	persisted, err := p.store.InsertChunks(ctx, documentID, dense)
	if err != nil {
		return nil, err
	}
	return persisted, nil
}

func trimText(s string) string {
	return strings.TrimSpace(s)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
