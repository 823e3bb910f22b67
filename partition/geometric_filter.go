// Package partition computes the geometric re-partitioning of a coupling
// mesh across the ranks of the receiving participant: bounding box
// exchange, geometric filtering and ownership resolution.
package partition

import "fmt"

// GeometricFilter selects where the vertex containment cost of mesh
// filtering is paid. The choice does not change correctness, only data
// volume and which side runs the comparison.
type GeometricFilter int

const (
	// UndefinedFilter is the zero value; configurations must pick one of
	// the concrete strategies.
	UndefinedFilter GeometricFilter = iota
	// NoFilter skips geometric culling entirely, for mappings that do not
	// rely on spatial locality.
	NoFilter
	// FilterFirst filters on the sending side against the candidate boxes
	// before any transfer, minimizing data volume.
	FilterFirst
	// BroadcastFilter broadcasts the whole mesh first and filters on the
	// receiving side.
	BroadcastFilter
)

func (f GeometricFilter) String() string {
	switch f {
	case NoFilter:
		return "no-filter"
	case FilterFirst:
		return "filter-first"
	case BroadcastFilter:
		return "broadcast-filter"
	default:
		return "undefined"
	}
}

// ParseGeometricFilter maps a configuration string to a filter strategy.
func ParseGeometricFilter(name string) (GeometricFilter, error) {
	switch name {
	case "no-filter":
		return NoFilter, nil
	case "filter-first":
		return FilterFirst, nil
	case "broadcast-filter":
		return BroadcastFilter, nil
	default:
		return UndefinedFilter, fmt.Errorf("unknown geometric filter %q", name)
	}
}

// State tracks the partitioning pass. Transitions run strictly forward;
// a partially completed pass is never usable as if complete.
type State int

const (
	Uncomputed State = iota
	BoundingBoxExchanged
	Filtered
	OwnershipAssigned
)

func (s State) String() string {
	switch s {
	case Uncomputed:
		return "uncomputed"
	case BoundingBoxExchanged:
		return "bounding-box-exchanged"
	case Filtered:
		return "filtered"
	case OwnershipAssigned:
		return "ownership-assigned"
	default:
		return "unknown"
	}
}
