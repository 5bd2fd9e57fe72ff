// Package embedder defines the Embedder capability
// (embed(text) -> EmbeddingResult), with a deterministic reference
// implementation and an HTTP-based remote implementation, selected by a
// factory keyed by provider id — mirroring internal/structurer's
// polymorphism.
package embedder

import "context"

// Result is the embed() return shape.
type Result struct {
	Model      string
	Dimensions int
	Vector     []float64
}

// Embedder converts a chunk's text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (Result, error)
}

const (
	ProviderReference = "reference-deterministic"
	ProviderRemote     = "remote"
)

// Config carries the per-provider transport settings spec.md §6.5 names.
type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
}

// New resolves a provider id to an Embedder implementation. Unknown or
// empty provider ids fall back to the reference-deterministic
// implementation per spec.md §6.5's documented default.
func New(cfg Config) Embedder {
	switch cfg.Provider {
	case ProviderRemote:
		return NewRemote(cfg.BaseURL, cfg.Model, cfg.APIKey)
	default:
		return NewReference()
	}
}
