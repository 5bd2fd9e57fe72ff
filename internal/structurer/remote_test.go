package structurer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SpasZahariev/rag-pulled/internal/ingestion"
)

func TestSplitSegments(t *testing.T) {
	segments := splitSegments("abcdefghij", 3)
	assert.Equal(t, []string{"abc", "def", "ghi", "j"}, segments)
}

func TestSplitSegments_Empty(t *testing.T) {
	assert.Nil(t, splitSegments("", 100))
}

func TestParseChunksJSON_Bare(t *testing.T) {
	chunks, err := parseChunksJSON(`{"chunks":[{"chunkIndex":0,"text":"hello","metadata":{"a":1}}]}`)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
}

func TestParseChunksJSON_Fenced(t *testing.T) {
	raw := "```json\n{\"chunks\":[{\"chunkIndex\":0,\"text\":\"hi\"}]}\n```"
	chunks, err := parseChunksJSON(raw)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hi", chunks[0].Text)
}

func TestParseChunksJSON_SubstringExtracted(t *testing.T) {
	raw := `here is the result: {"chunks":[{"chunkIndex":0,"text":"hi"}]} thanks`
	chunks, err := parseChunksJSON(raw)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hi", chunks[0].Text)
}

func TestParseChunksJSON_NoJSONFound(t *testing.T) {
	_, err := parseChunksJSON("no json here at all")
	require.Error(t, err)
}

func TestParseChunksJSON_NotAnArray(t *testing.T) {
	chunks, err := parseChunksJSON(`{"chunks":"not-an-array"}`)
	require.Error(t, err)
	assert.Nil(t, chunks)
}

func TestRemote_BuildRequest_NativeShapeWhenNoMaxTokens(t *testing.T) {
	r := NewRemote("http://example.invalid", "test-model", "", 0.5, 4096, 0)
	req := r.buildRequest("segment text")

	assert.Equal(t, "test-model", req.Model)
	assert.Empty(t, req.Messages)
	assert.False(t, req.MaxTokens > 0)
	require.NotNil(t, req.Options)
	assert.Equal(t, float32(0.5), req.Options.Temperature)
	assert.Equal(t, 4096, req.Options.NumCtx)
	assert.Contains(t, req.Prompt, "segment text")
}

func TestRemote_BuildRequest_ChatShapeWhenMaxTokensConfigured(t *testing.T) {
	r := NewRemote("http://example.invalid", "test-model", "", 0.5, 0, 512)
	req := r.buildRequest("segment text")

	assert.Empty(t, req.Prompt)
	assert.Nil(t, req.Options)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "segment text", req.Messages[1].Content)
	assert.Equal(t, 512, req.MaxTokens)
}

func TestRemote_Structure_NativeResponseShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req remoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(remoteResponse{
			Response: `{"chunks":[{"chunkIndex":0,"text":"first chunk"}]}`,
		})
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL, "test-model", "", 0.2, 2048, 0)
	path := writeTempFile(t, "notes.txt", "hello world")

	result, err := remote.Structure(context.Background(), path, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, Structured, result.Status)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "first chunk", result.Chunks[0].Text)
}

func TestRemote_Structure_ChatStringContentShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, _ := json.Marshal(`{"chunks":[{"chunkIndex":0,"text":"chat chunk"}]}`)
		_ = json.NewEncoder(w).Encode(remoteResponse{
			Choices: []remoteChoice{{Message: remoteMessage{Content: content}}},
		})
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL, "test-model", "", 0.2, 0, 256)
	path := writeTempFile(t, "notes.txt", "hello world")

	result, err := remote.Structure(context.Background(), path, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, Structured, result.Status)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "chat chunk", result.Chunks[0].Text)
}

func TestRemote_Structure_ChatArrayContentShapeJoinsParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, _ := json.Marshal([]any{
			`{"chunks":[{"chunkIndex":0,"text":"`,
			map[string]any{"text": "joined"},
			`"}]}`,
		})
		_ = json.NewEncoder(w).Encode(remoteResponse{
			Choices: []remoteChoice{{Message: remoteMessage{Content: content}}},
		})
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL, "test-model", "", 0.2, 0, 256)
	path := writeTempFile(t, "notes.txt", "hello world")

	result, err := remote.Structure(context.Background(), path, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, Structured, result.Status)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "joined", result.Chunks[0].Text)
}

func TestRemote_Structure_NonOKStatusSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(remoteResponse{Error: "context length exceeded"})
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL, "test-model", "", 0.2, 2048, 0)
	path := writeTempFile(t, "notes.txt", "hello world")

	result, err := remote.Structure(context.Background(), path, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, Failed, result.Status)
	assert.Contains(t, result.Error, "context length exceeded")
}

func TestRemote_Structure_MissingBaseURLIsConfigurationError(t *testing.T) {
	remote := NewRemote("", "test-model", "", 0.2, 2048, 0)
	path := writeTempFile(t, "notes.txt", "hello world")

	_, err := remote.Structure(context.Background(), path, "text/plain")
	require.Error(t, err)
	assert.ErrorIs(t, err, ingestion.ErrConfiguration)
}

func TestRemote_Structure_RejectedExtension(t *testing.T) {
	remote := NewRemote("http://example.invalid", "test-model", "", 0.2, 2048, 0)
	path := writeTempFile(t, "notes.bin", "hello world")

	result, err := remote.Structure(context.Background(), path, "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, Unsupported, result.Status)
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := t.TempDir() + "/" + name
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
