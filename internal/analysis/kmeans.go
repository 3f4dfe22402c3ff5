package analysis

import (
	"math"
	"math/rand"
)

const defaultMaxIterations = 100

// AutoK picks a cluster count for n points when no explicit k is forced:
// roughly sqrt(n/2), clamped to [2, 12]. Small pools get 2; the floor
// enforcer raises the count afterwards when the population allows.
func AutoK(n int) int {
	if n < 4 {
		return 1
	}

	k := int(math.Round(math.Sqrt(float64(n) / 2)))
	if k < 2 {
		k = 2
	}
	if k > 12 {
		k = 12
	}
	if k > n {
		k = n
	}

	return k
}

// KMeans partitions the vectors into k groups by cosine distance and returns
// one zero-based label per vector. Labels are contiguous but not ordered by
// size; apply RelabelBySize afterwards. The random source drives k-means++
// seeding, so forced splits reproduce under a fixed source.
func KMeans(vectors [][]float32, k, maxIterations int, rng *rand.Rand) []int {
	if len(vectors) == 0 || k <= 0 {
		return nil
	}
	if k > len(vectors) {
		k = len(vectors)
	}
	if maxIterations < 1 {
		maxIterations = defaultMaxIterations
	}

	dim := len(vectors[0])
	centroids := initializeCentroidsKMeansPlusPlus(vectors, k, rng)
	assignments := make([]int, len(vectors))

	for iter := 0; iter < maxIterations; iter++ {
		// Assignment step: assign each point to nearest centroid
		changed := false
		for i, vec := range vectors {
			nearest := NearestCentroid(vec, centroids)
			if assignments[i] != nearest {
				assignments[i] = nearest
				changed = true
			}
		}

		if !changed && iter > 0 {
			break
		}

		// Update step: recalculate centroids
		newCentroids := make([][]float32, k)
		counts := make([]int, k)

		for i := 0; i < k; i++ {
			newCentroids[i] = make([]float32, dim)
		}

		for i, vec := range vectors {
			cluster := assignments[i]
			counts[cluster]++
			for d := 0; d < dim; d++ {
				newCentroids[cluster][d] += vec[d]
			}
		}

		for i := 0; i < k; i++ {
			if counts[i] > 0 {
				for d := 0; d < dim; d++ {
					newCentroids[i][d] /= float32(counts[i])
				}
				centroids[i] = newCentroids[i]
			}
		}
	}

	return compactLabels(assignments)
}

// initializeCentroidsKMeansPlusPlus uses K-means++ initialization for better
// starting centroids: the first is drawn uniformly, the rest with probability
// proportional to squared distance from the nearest chosen centroid.
func initializeCentroidsKMeansPlusPlus(vectors [][]float32, k int, rng *rand.Rand) [][]float32 {
	n := len(vectors)
	centroids := make([][]float32, 0, k)

	firstIdx := rng.Intn(n)
	centroids = append(centroids, vectors[firstIdx])

	for len(centroids) < k {
		distances := make([]float64, n)
		var totalDist float64

		for i, vec := range vectors {
			minDist := math.MaxFloat64
			for _, centroid := range centroids {
				dist := CosineDistance(vec, centroid)
				if dist < minDist {
					minDist = dist
				}
			}
			distances[i] = minDist * minDist
			totalDist += distances[i]
		}

		if totalDist == 0 {
			// All points coincide with a chosen centroid; any pick works.
			centroids = append(centroids, vectors[rng.Intn(n)])
			continue
		}

		target := rng.Float64() * totalDist
		var cumDist float64
		selectedIdx := 0
		for i, d := range distances {
			cumDist += d
			if cumDist >= target {
				selectedIdx = i
				break
			}
		}

		centroids = append(centroids, vectors[selectedIdx])
	}

	return centroids
}

// compactLabels renumbers labels so they are contiguous starting at zero
// (k-means can leave empty clusters when points coincide). Relative order of
// first appearance is preserved.
func compactLabels(labels []int) []int {
	remap := make(map[int]int)
	out := make([]int, len(labels))

	for i, l := range labels {
		mapped, ok := remap[l]
		if !ok {
			mapped = len(remap)
			remap[l] = mapped
		}
		out[i] = mapped
	}

	return out
}
