package embedder

import (
	"context"
	"math"
)

const referenceDim = 128

// Reference is the deterministic embedder used for testing and when no
// model backend is configured (spec.md §4.6): for each input code point
// at index i, add (code % 31) / 31 to vector[i mod 128], then L2-normalize
// with a floor of 1 to avoid division by zero.
type Reference struct{}

func NewReference() *Reference {
	return &Reference{}
}

func (r *Reference) Embed(_ context.Context, text string) (Result, error) {
	vec := make([]float64, referenceDim)
	for i, codePoint := range []rune(text) {
		vec[i%referenceDim] += float64(int(codePoint)%31) / 31.0
	}

	var sumSquares float64
	for _, v := range vec {
		sumSquares += v * v
	}
	norm := math.Sqrt(sumSquares)
	if norm < 1 {
		norm = 1
	}
	for i := range vec {
		vec[i] /= norm
	}

	return Result{Model: ProviderReference, Dimensions: referenceDim, Vector: vec}, nil
}
