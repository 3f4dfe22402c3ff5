package models

import "fmt"

// MiscSentinel is the legacy integer encoding for the misc bucket used by the
// persistence layer. Application code should work with ClusterAssignment and
// only encode/decode the sentinel at the repository boundary.
const MiscSentinel = -1

// ClusterAssignment identifies which cluster a response belongs to: a numbered
// cluster, the reserved misc bucket for outliers, or unassigned (never analyzed).
// The zero value is Unassigned.
type ClusterAssignment struct {
	kind  assignmentKind
	index int
}

type assignmentKind uint8

const (
	kindUnassigned assignmentKind = iota
	kindNumbered
	kindMisc
)

// Unassigned returns the assignment for a response that has never been analyzed.
func Unassigned() ClusterAssignment {
	return ClusterAssignment{kind: kindUnassigned}
}

// Misc returns the assignment for the reserved misc/outlier bucket.
func Misc() ClusterAssignment {
	return ClusterAssignment{kind: kindMisc}
}

// Numbered returns the assignment for cluster index i. Panics on negative i:
// negative indices are reserved for the sentinel encoding.
func Numbered(i int) ClusterAssignment {
	if i < 0 {
		panic(fmt.Sprintf("models: negative cluster index %d", i))
	}
	return ClusterAssignment{kind: kindNumbered, index: i}
}

// IsUnassigned reports whether the response has never been analyzed.
func (a ClusterAssignment) IsUnassigned() bool { return a.kind == kindUnassigned }

// IsMisc reports whether the response sits in the misc bucket.
func (a ClusterAssignment) IsMisc() bool { return a.kind == kindMisc }

// IsNumbered reports whether the response belongs to a numbered cluster.
func (a ClusterAssignment) IsNumbered() bool { return a.kind == kindNumbered }

// Index returns the numbered cluster index. The second return is false for
// misc and unassigned.
func (a ClusterAssignment) Index() (int, bool) {
	if a.kind != kindNumbered {
		return 0, false
	}
	return a.index, true
}

// EncodeSentinel converts the assignment to the store encoding: nil for
// unassigned, MiscSentinel for misc, the index otherwise.
func (a ClusterAssignment) EncodeSentinel() *int {
	switch a.kind {
	case kindUnassigned:
		return nil
	case kindMisc:
		v := MiscSentinel
		return &v
	default:
		v := a.index
		return &v
	}
}

// DecodeSentinel converts a store value back into a ClusterAssignment.
func DecodeSentinel(v *int) ClusterAssignment {
	switch {
	case v == nil:
		return Unassigned()
	case *v == MiscSentinel:
		return Misc()
	default:
		return Numbered(*v)
	}
}

// String implements fmt.Stringer for logging.
func (a ClusterAssignment) String() string {
	switch a.kind {
	case kindUnassigned:
		return "unassigned"
	case kindMisc:
		return "misc"
	default:
		return fmt.Sprintf("cluster %d", a.index)
	}
}
