package analysis

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/hively/engine/internal/models"
)

const (
	// SmallFloor is the minimum cluster count for conversations with at most
	// SmallPopulationMax responses; LargeFloor applies above that.
	SmallFloor         = 3
	LargeFloor         = 5
	SmallPopulationMax = 40

	// MinSplitUnit is the smallest viable cluster size. A cluster is eligible
	// for splitting only when both halves can stay at or above this size.
	MinSplitUnit = 2

	splitIterations = 50
)

// FloorResult reports what the minimum-cluster-floor enforcer did.
type FloorResult struct {
	Assignments      []models.ClusterAssignment
	Splits           int
	TargetMinimum    int
	EffectiveMinimum int
	FinalClusters    int
	// ShortfallReason is set when the effective minimum could not be reached,
	// or when no work was needed.
	ShortfallReason string
}

// TargetMinimumClusters returns the configured floor for a population of n.
func TargetMinimumClusters(n int) int {
	if n <= SmallPopulationMax {
		return SmallFloor
	}
	return LargeFloor
}

// EffectiveMinimumClusters bounds the target by feasibility: never more
// clusters than responses, and never so many that clusters must fall below
// MinSplitUnit members.
func EffectiveMinimumClusters(n int) int {
	target := TargetMinimumClusters(n)
	if n < target {
		target = n
	}
	if byUnit := n / MinSplitUnit; byUnit < target {
		target = byUnit
	}

	return target
}

// EnforceFloor guarantees a minimum number of numbered clusters, when the
// population allows, by force-splitting the largest eligible cluster with
// k-means (k=2) until the effective minimum is reached. Misc entries are
// excluded from candidate selection. Runs strictly before outlier detection;
// the result is relabeled by descending size.
func EnforceFloor(vectors [][]float32, assignments []models.ClusterAssignment, rng *rand.Rand) FloorResult {
	n := len(assignments)
	result := FloorResult{
		Assignments:      append([]models.ClusterAssignment(nil), assignments...),
		TargetMinimum:    TargetMinimumClusters(n),
		EffectiveMinimum: EffectiveMinimumClusters(n),
	}

	sizes := ClusterSizes(result.Assignments)
	if len(sizes) >= result.EffectiveMinimum {
		result.FinalClusters = len(sizes)
		result.ShortfallReason = "already meets floor"
		return result
	}

	for {
		sizes = ClusterSizes(result.Assignments)
		if len(sizes) >= result.EffectiveMinimum {
			break
		}

		target, ok := largestEligibleCluster(sizes)
		if !ok {
			result.ShortfallReason = fmt.Sprintf(
				"no eligible clusters to split: %d of %d clusters", len(sizes), result.EffectiveMinimum)
			break
		}

		splitCluster(vectors, result.Assignments, target, rng)
		result.Splits++
	}

	result.Assignments = RelabelBySize(result.Assignments)
	result.FinalClusters = len(ClusterSizes(result.Assignments))

	return result
}

// largestEligibleCluster picks the cluster to split: largest size first, ties
// broken by the lowest cluster label. A cluster is eligible when splitting can
// leave both halves at or above MinSplitUnit.
func largestEligibleCluster(sizes map[int]int) (int, bool) {
	labels := make([]int, 0, len(sizes))
	for l, size := range sizes {
		if size >= 2*MinSplitUnit {
			labels = append(labels, l)
		}
	}

	if len(labels) == 0 {
		return 0, false
	}

	sort.Slice(labels, func(i, j int) bool {
		if sizes[labels[i]] != sizes[labels[j]] {
			return sizes[labels[i]] > sizes[labels[j]]
		}
		return labels[i] < labels[j]
	})

	return labels[0], true
}

// splitCluster partitions the members of the target cluster into two with
// k-means (k=2). The larger half keeps the original label; the smaller half
// moves to a brand-new label one past the current maximum. Mutates
// assignments in place.
func splitCluster(vectors [][]float32, assignments []models.ClusterAssignment, target int, rng *rand.Rand) {
	members := ClusterMembers(assignments)[target]

	subset := make([][]float32, len(members))
	for i, idx := range members {
		subset[i] = vectors[idx]
	}

	sub := KMeans(subset, 2, splitIterations, rng)

	var zeros, ones int
	for _, l := range sub {
		if l == 0 {
			zeros++
		} else {
			ones++
		}
	}

	// k-means can return a lopsided or single-group partition on inseparable
	// points. Both children must stay viable, so fall back to an index-order
	// halving in that case (eligibility guarantees len >= 2*MinSplitUnit).
	if zeros < MinSplitUnit || ones < MinSplitUnit {
		half := len(sub) / 2
		for i := range sub {
			if i < half {
				sub[i] = 0
			} else {
				sub[i] = 1
			}
		}
		zeros, ones = half, len(sub)-half
	}

	staysLabel := 0
	if ones > zeros {
		staysLabel = 1
	}

	newLabel := maxLabel(assignments) + 1
	for i, idx := range members {
		if sub[i] == staysLabel {
			continue
		}
		assignments[idx] = models.Numbered(newLabel)
	}
}

func maxLabel(assignments []models.ClusterAssignment) int {
	max := -1
	for _, a := range assignments {
		if idx, ok := a.Index(); ok && idx > max {
			max = idx
		}
	}

	return max
}
