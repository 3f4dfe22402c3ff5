package analysis

import (
	"math"
	"sort"
)

const (
	// MinClusterSizeForOutliers is the size gate: clusters smaller than this
	// are never scanned for outliers.
	MinClusterSizeForOutliers = 6

	// OutlierZThreshold is the modified z-score above which a member becomes
	// an outlier candidate.
	OutlierZThreshold = 3.5

	// MaxOutlierRatio caps how much of a cluster can be flagged in one pass,
	// so a degenerate cluster is not hollowed out entirely.
	MaxOutlierRatio = 0.2

	// madScale converts a MAD into a consistent estimator of the standard
	// deviation (the usual 0.6745 factor for normal data).
	madScale = 0.6745
)

// OutlierResult holds per-member outlier flags and modified z-scores for one
// cluster. Flagged members keep their score for observability after they move
// to the misc bucket.
type OutlierResult struct {
	Flagged []bool
	Scores  []float64
}

// FlagOutliers scans one cluster's member distances (to the cluster centroid)
// for anomalously distant members using a MAD-based modified z-score.
//
// gateSize is the cluster size used for the size gate and the cap. In the
// full-analysis path it equals len(distances); the incremental path passes
// existing members plus new arrivals while only scoring the new ones.
//
// Degenerate cases are defined behavior, never errors: a cluster below the
// size gate or with MAD = 0 (all distances identical) flags nothing.
func FlagOutliers(distances []float64, gateSize int) OutlierResult {
	result := OutlierResult{
		Flagged: make([]bool, len(distances)),
		Scores:  make([]float64, len(distances)),
	}

	if gateSize < MinClusterSizeForOutliers || len(distances) == 0 {
		return result
	}

	med := median(distances)

	deviations := make([]float64, len(distances))
	for i, d := range distances {
		deviations[i] = math.Abs(d - med)
	}
	mad := median(deviations)

	if mad == 0 {
		return result
	}

	candidates := make([]int, 0)
	for i, d := range distances {
		result.Scores[i] = madScale * math.Abs(d-med) / mad
		if result.Scores[i] > OutlierZThreshold {
			candidates = append(candidates, i)
		}
	}

	maxOutliers := int(float64(gateSize) * MaxOutlierRatio)
	if len(candidates) > maxOutliers {
		// Keep the top-scoring candidates up to the cap.
		sort.Slice(candidates, func(a, b int) bool {
			return result.Scores[candidates[a]] > result.Scores[candidates[b]]
		})
		candidates = candidates[:maxOutliers]
	}

	for _, i := range candidates {
		result.Flagged[i] = true
	}

	return result
}

// median returns the middle value of the data (mean of the two middle values
// for even lengths). The input is not modified.
func median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}

	return sorted[mid]
}
