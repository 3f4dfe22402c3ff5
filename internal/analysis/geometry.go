// Package analysis implements the conversation analysis pipeline primitives:
// k-means clustering, size-ordered relabeling, minimum-cluster-floor
// enforcement, MAD-based outlier detection, and 2D projection. All functions
// here are pure; orchestration and persistence live in internal/service.
package analysis

import "math"

// CosineDistance calculates 1 - cosine_similarity (so smaller is more similar).
// The range is [0, 2]. Zero-magnitude or mismatched vectors are treated as
// maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 2.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))

	return 1.0 - similarity
}

// Centroid returns the mean vector of the given members. Returns nil for an
// empty member set.
func Centroid(vectors [][]float32, members []int) []float32 {
	if len(members) == 0 || len(vectors) == 0 {
		return nil
	}

	dim := len(vectors[members[0]])
	centroid := make([]float32, dim)

	for _, idx := range members {
		for d := 0; d < dim; d++ {
			centroid[d] += vectors[idx][d]
		}
	}

	for d := 0; d < dim; d++ {
		centroid[d] /= float32(len(members))
	}

	return centroid
}

// NearestCentroid finds the index of the nearest centroid by cosine distance.
// Ties are broken by the lowest centroid index (strict less-than comparison).
func NearestCentroid(embedding []float32, centroids [][]float32) int {
	minDist := math.MaxFloat64
	nearest := 0

	for i, centroid := range centroids {
		dist := CosineDistance(embedding, centroid)
		if dist < minDist {
			minDist = dist
			nearest = i
		}
	}

	return nearest
}
