package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"
)

// Remote is the HTTP-based embedder provider (spec.md §4.6/§6.4), built
// directly on net/http the same way the teacher's reranker.Client talks
// to its external rerank APIs.
type Remote struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

func NewRemote(baseURL, model, apiKey string) *Remote {
	return &Remote{
		baseURL: baseURL,
		model:   model,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error"`
}

func (r *Remote) Embed(ctx context.Context, text string) (Result, error) {
	body, err := json.Marshal(embedRequest{Model: r.model, Prompt: text})
	if err != nil {
		return Result{}, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("embedder %s/%s: transport error: %w", r.model, r.baseURL, err)
	}
	defer resp.Body.Close()

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("embedder %s/%s: decode response: %w", r.model, r.baseURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != "" {
			return Result{}, fmt.Errorf("embedder %s/%s: status %d: %s", r.model, r.baseURL, resp.StatusCode, parsed.Error)
		}
		return Result{}, fmt.Errorf("embedder %s/%s: status %d", r.model, r.baseURL, resp.StatusCode)
	}

	if len(parsed.Embedding) == 0 {
		return Result{}, fmt.Errorf("embedder %s/%s: empty embedding vector", r.model, r.baseURL)
	}
	for _, v := range parsed.Embedding {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, fmt.Errorf("embedder %s/%s: non-finite value in embedding vector", r.model, r.baseURL)
		}
	}

	return Result{Model: r.model, Dimensions: len(parsed.Embedding), Vector: parsed.Embedding}, nil
}
