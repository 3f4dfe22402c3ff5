package analysis

import (
	"sort"

	"github.com/hively/engine/internal/models"
)

// RelabelBySize renumbers numbered clusters so that index 0 is the largest,
// ascending by descending size. Ties are broken by the lowest original label,
// which makes the step deterministic and idempotent. Misc and unassigned
// entries are preserved verbatim. The input slice is not modified.
func RelabelBySize(assignments []models.ClusterAssignment) []models.ClusterAssignment {
	sizes := make(map[int]int)
	for _, a := range assignments {
		if idx, ok := a.Index(); ok {
			sizes[idx]++
		}
	}

	labels := make([]int, 0, len(sizes))
	for l := range sizes {
		labels = append(labels, l)
	}

	sort.Slice(labels, func(i, j int) bool {
		if sizes[labels[i]] != sizes[labels[j]] {
			return sizes[labels[i]] > sizes[labels[j]]
		}
		return labels[i] < labels[j]
	})

	remap := make(map[int]int, len(labels))
	for newLabel, oldLabel := range labels {
		remap[oldLabel] = newLabel
	}

	out := make([]models.ClusterAssignment, len(assignments))
	for i, a := range assignments {
		if idx, ok := a.Index(); ok {
			out[i] = models.Numbered(remap[idx])
		} else {
			out[i] = a
		}
	}

	return out
}

// ClusterSizes returns the member count per numbered cluster label.
func ClusterSizes(assignments []models.ClusterAssignment) map[int]int {
	sizes := make(map[int]int)
	for _, a := range assignments {
		if idx, ok := a.Index(); ok {
			sizes[idx]++
		}
	}

	return sizes
}

// ClusterMembers returns, per numbered cluster label, the positions of its
// members within the assignments slice.
func ClusterMembers(assignments []models.ClusterAssignment) map[int][]int {
	members := make(map[int][]int)
	for i, a := range assignments {
		if idx, ok := a.Index(); ok {
			members[idx] = append(members[idx], i)
		}
	}

	return members
}
