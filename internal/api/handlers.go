// Package api exposes the enqueue and status HTTP boundaries (spec.md
// §6.1/§6.2) as the supplemented POST /jobs and GET /jobs/{id} endpoints
// (SPEC_FULL.md §5), plus GET /health, in the teacher's
// correlation-ID-aware JSON handler style (features/job/handler.go).
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SpasZahariev/rag-pulled/internal/eventbus"
	"github.com/SpasZahariev/rag-pulled/internal/ingestion"
	"github.com/SpasZahariev/rag-pulled/internal/middleware"
)

// Store is the narrow persistence surface the HTTP layer needs.
type Store interface {
	EnqueueJob(ctx context.Context, userID, uploadSessionID string, docs []ingestion.NewDocumentInput) (string, error)
	GetJobWithDocuments(ctx context.Context, jobID, userID string) (*ingestion.IngestionJob, []ingestion.UploadedDocument, error)
}

type Handler struct {
	store     Store
	publisher eventbus.Publisher
}

// NewHandler builds the HTTP layer. publisher may be nil, in which case
// the best-effort ingestion.job.queued notification is skipped.
func NewHandler(store Store, publisher eventbus.Publisher) *Handler {
	return &Handler{store: store, publisher: publisher}
}

type enqueueRequest struct {
	UserID          string                       `json:"userId"`
	UploadSessionID string                       `json:"uploadSessionId"`
	Documents       []ingestion.NewDocumentInput `json:"documents"`
}

type enqueueResponse struct {
	JobID string `json:"jobId"`
}

// Enqueue handles POST /jobs. This is the thin HTTP adapter over the
// enqueue boundary — it does not itself receive file bytes, since
// staging files remains the out-of-scope upload handler's job.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.UploadSessionID == "" {
		writeError(w, r, http.StatusBadRequest, "userId and uploadSessionId are required")
		return
	}

	jobID, err := h.store.EnqueueJob(r.Context(), req.UserID, req.UploadSessionID, req.Documents)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	eventbus.PublishJobEvent(h.publisher, eventbus.TopicJobQueued, jobID)

	writeJSON(w, http.StatusCreated, enqueueResponse{JobID: jobID})
}

type jobView struct {
	JobID           string                `json:"jobId"`
	UserID          string                `json:"userId"`
	UploadSessionID string                `json:"uploadSessionId"`
	Status          ingestion.JobStatus   `json:"status"`
	AttemptCount    int                   `json:"attemptCount"`
	MaxAttempts     int                   `json:"maxAttempts"`
	Error           *string               `json:"error,omitempty"`
	Documents       []documentView        `json:"documents"`
}

type documentView struct {
	DocumentID       string                     `json:"documentId"`
	OriginalName     string                     `json:"originalName"`
	StructuredStatus ingestion.DocumentStatus   `json:"structuredStatus"`
	Error            *string                    `json:"error,omitempty"`
}

// Get handles GET /jobs/{id}. Scoped to the owning user, per spec.md
// §6.2; the userId stands in here for the out-of-scope auth layer, read
// from a header since there is no session to derive it from.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	job, docs, err := h.store.GetJobWithDocuments(r.Context(), jobID, userID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job == nil {
		writeError(w, r, http.StatusNotFound, "job not found")
		return
	}

	view := jobView{
		JobID:           job.JobID,
		UserID:          job.UserID,
		UploadSessionID: job.UploadSessionID,
		Status:          job.Status,
		AttemptCount:    job.AttemptCount,
		MaxAttempts:     job.MaxAttempts,
		Error:           job.Error,
	}
	for _, d := range docs {
		view.Documents = append(view.Documents, documentView{
			DocumentID:       d.DocumentID,
			OriginalName:     d.OriginalName,
			StructuredStatus: d.StructuredStatus,
			Error:            d.Error,
		})
	}

	writeJSON(w, http.StatusOK, view)
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorResponse{
		Error:         message,
		CorrelationID: middleware.GetCorrelationID(r.Context()),
	})
}
