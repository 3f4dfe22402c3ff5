// Package embeddings provides utilities for embedding vectors (e.g. L2 normalization).
package embeddings

import (
	"math"
)

// NormalizeL2 rescales a raw embedding vector to unit Euclidean length so that
// cosine math downstream reduces to dot products. It modifies the slice
// in-place to save allocations when normalizing whole conversations at once.
// A zero-magnitude vector is left unchanged (avoids division by zero).
func NormalizeL2(vector []float32) {
	var sumSquares float64

	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}

// NormalizeAll applies NormalizeL2 to every vector in the batch, in-place.
func NormalizeAll(vectors [][]float32) {
	for _, v := range vectors {
		NormalizeL2(v)
	}
}
