package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemote_Embed_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL, "test-model", "test-key")
	result, err := remote.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "test-model", result.Model)
	assert.Equal(t, 3, result.Dimensions)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, result.Vector)
}

func TestRemote_Embed_NonOKSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(embedResponse{Error: "prompt too long"})
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL, "test-model", "")
	_, err := remote.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt too long")
}

func TestRemote_Embed_EmptyVectorRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{}})
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL, "test-model", "")
	_, err := remote.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty embedding vector")
}
