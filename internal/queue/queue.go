// Package queue exposes the five operations spec'd over the store:
// claimNext, getDocumentsForJob, setJobStatus,
// setDocumentStructuredStatus, failWithRetry — plus an additive
// stale-claim reaper (see DESIGN.md Open Question #2).
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/lib/pq"

	"github.com/SpasZahariev/rag-pulled/internal/eventbus"
	"github.com/SpasZahariev/rag-pulled/internal/ingestion"
)

// Store is the persistence surface the queue needs from internal/store.
// Declared narrowly here so queue package tests can fake it without
// depending on *sql.DB.
type Store interface {
	ClaimNext(ctx context.Context) (*ingestion.IngestionJob, error)
	GetDocumentsForJob(ctx context.Context, jobID string) ([]ingestion.UploadedDocument, error)
	SetJobStatus(ctx context.Context, jobID string, status ingestion.JobStatus, errMsg *string) error
	SetDocumentStructuredStatus(ctx context.Context, documentID string, status ingestion.DocumentStatus, errMsg *string) error
	FailWithRetry(ctx context.Context, jobID string, errMsg string) (bool, error)
}

// Queue wraps a Store with the naming and semantics spec.md §4.2
// describes, plus the best-effort internal/eventbus notification
// SPEC_FULL.md §3 calls for after each durable job-status write.
// publisher may be nil, in which case publishing is a no-op.
type Queue struct {
	store     Store
	publisher eventbus.Publisher
}

func New(store Store, publisher eventbus.Publisher) *Queue {
	return &Queue{store: store, publisher: publisher}
}

// ClaimNext atomically claims the oldest eligible queued job, or returns
// nil, nil if none is available (another worker won the race, or the
// queue is empty).
func (q *Queue) ClaimNext(ctx context.Context) (*ingestion.IngestionJob, error) {
	job, err := q.store.ClaimNext(ctx)
	if err != nil {
		if isTransientInfraError(err) {
			return nil, fmt.Errorf("%w: %v", ingestion.ErrTransient, err)
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// isTransientInfraError matches spec.md §7's narrow transient-infrastructure
// class: Postgres reporting "the database system is starting up" (SQL
// state 57P03), or a refused/unreachable TCP connection. Anything else —
// bad SQL, a constraint violation, a cancelled context — is left
// unclassified so the worker surfaces it as an unknown error instead of
// retrying it forever without consuming an attempt.
func isTransientInfraError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "57P03" {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "database system is starting up")
}

func (q *Queue) GetDocumentsForJob(ctx context.Context, jobID string) ([]ingestion.UploadedDocument, error) {
	return q.store.GetDocumentsForJob(ctx, jobID)
}

func (q *Queue) SetJobStatus(ctx context.Context, jobID string, status ingestion.JobStatus, errMsg *string) error {
	if err := q.store.SetJobStatus(ctx, jobID, status, errMsg); err != nil {
		return err
	}
	q.publishForStatus(status, jobID)
	return nil
}

func (q *Queue) SetDocumentStructuredStatus(ctx context.Context, documentID string, status ingestion.DocumentStatus, errMsg *string) error {
	return q.store.SetDocumentStructuredStatus(ctx, documentID, status, errMsg)
}

// FailWithRetry reschedules the job with exponential backoff if attempts
// remain, otherwise fails it terminally, publishing ingestion.job.failed
// or ingestion.job.queued to match whichever durable write actually
// happened. A missing job row, which the store treats as a no-op, is
// reported as a requeue and publishes ingestion.job.queued.
func (q *Queue) FailWithRetry(ctx context.Context, jobID string, errMsg string) error {
	terminal, err := q.store.FailWithRetry(ctx, jobID, errMsg)
	if err != nil {
		return err
	}
	if terminal {
		eventbus.PublishJobEvent(q.publisher, eventbus.TopicJobFailed, jobID)
	} else {
		eventbus.PublishJobEvent(q.publisher, eventbus.TopicJobQueued, jobID)
	}
	return nil
}

func (q *Queue) publishForStatus(status ingestion.JobStatus, jobID string) {
	var topic string
	switch status {
	case ingestion.JobQueued:
		topic = eventbus.TopicJobQueued
	case ingestion.JobCompleted:
		topic = eventbus.TopicJobCompleted
	case ingestion.JobFailed:
		topic = eventbus.TopicJobFailed
	default:
		return
	}
	eventbus.PublishJobEvent(q.publisher, topic, jobID)
}
