package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SpasZahariev/rag-pulled/internal/ingestion"
	"github.com/SpasZahariev/rag-pulled/internal/store"
	"github.com/SpasZahariev/rag-pulled/internal/testutils"
)

func TestStore_EnqueueAndClaim_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	st := store.New(s.DB)
	ctx := context.Background()

	jobID, err := st.EnqueueJob(ctx, "user-1", "session-1", []ingestion.NewDocumentInput{
		{OriginalName: "notes.md", StoredPath: "user-1/session-1/notes.md", MimeType: "text/markdown"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	claimed, err := st.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, jobID, claimed.JobID)
	assert.Equal(t, ingestion.JobProcessingStructure, claimed.Status)
	assert.Equal(t, 1, claimed.AttemptCount)

	// A second claim must not see the same job again (single-claim CAS).
	again, err := st.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)

	docs, err := st.GetDocumentsForJob(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "notes.md", docs[0].OriginalName)
}

func TestStore_FailWithRetry_RequeuesUntilMaxAttempts_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	st := store.New(s.DB)
	ctx := context.Background()

	jobID, err := st.EnqueueJob(ctx, "user-1", "session-1", []ingestion.NewDocumentInput{
		{OriginalName: "a.csv", StoredPath: "user-1/session-1/a.csv", MimeType: "text/csv"},
	})
	require.NoError(t, err)

	for i := 0; i < ingestion.DefaultMaxAttempts; i++ {
		claimed, err := st.ClaimNext(ctx)
		require.NoError(t, err)
		require.NotNilf(t, claimed, "expected a claimable job on attempt %d", i+1)

		terminal, err := st.FailWithRetry(ctx, jobID, "boom")
		require.NoError(t, err)
		assert.Equal(t, i == ingestion.DefaultMaxAttempts-1, terminal)

		if !terminal {
			// A requeue pushes next_run_at at least 5s out (Backoff's
			// floor); move it back to now so the next claim need not wait.
			_, err = s.DB.ExecContext(ctx, `UPDATE ingestion_jobs SET next_run_at = NOW() WHERE id = $1`, jobID)
			require.NoError(t, err)
		}
	}

	job, _, err := st.GetJobWithDocuments(ctx, jobID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, ingestion.JobFailed, job.Status)
	assert.True(t, job.Status.Terminal())

	// Exhausted jobs are never claimable again.
	claimed, err := st.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestStore_InsertChunksAndEmbedding_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	st := store.New(s.DB)
	ctx := context.Background()

	jobID, err := st.EnqueueJob(ctx, "user-1", "session-1", []ingestion.NewDocumentInput{
		{OriginalName: "a.csv", StoredPath: "user-1/session-1/a.csv", MimeType: "text/csv"},
	})
	require.NoError(t, err)
	docs, err := st.GetDocumentsForJob(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	documentID := docs[0].DocumentID

	persisted, err := st.InsertChunks(ctx, documentID, []ingestion.DocumentChunk{
		{DocumentID: documentID, ChunkIndex: 0, Text: "row one", Metadata: map[string]any{"source": "csv-row", "row": 1}},
		{DocumentID: documentID, ChunkIndex: 1, Text: "row two", Metadata: map[string]any{"source": "csv-row", "row": 2}},
	})
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	for _, c := range persisted {
		assert.NotEmpty(t, c.ChunkID)
	}

	embeddingID, err := st.InsertEmbedding(ctx, ingestion.ChunkEmbedding{
		ChunkID:        persisted[0].ChunkID,
		EmbeddingModel: "reference-deterministic",
		EmbeddingDim:   128,
		Embedding:      make([]float64, 128),
	})
	require.NoError(t, err)
	require.NotEmpty(t, embeddingID)

	// Idempotent reprocessing clears prior chunks before inserting a fresh set.
	require.NoError(t, st.DeleteChunksForDocument(ctx, documentID))
	empty, err := st.InsertChunks(ctx, documentID, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
