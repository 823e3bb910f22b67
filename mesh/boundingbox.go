package mesh

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// BoundingBox is an axis aligned box with one [min,max] interval per mesh
// dimension. A fresh box is empty (inverted intervals) and only ever grows
// through ExpandBy.
type BoundingBox struct {
	Min []float64
	Max []float64
}

func NewBoundingBox(dimensions int) (bb BoundingBox) {
	bb.Min = make([]float64, dimensions)
	bb.Max = make([]float64, dimensions)
	for d := 0; d < dimensions; d++ {
		bb.Min[d] = math.Inf(1)
		bb.Max[d] = math.Inf(-1)
	}
	return
}

func (bb BoundingBox) Dims() int {
	return len(bb.Min)
}

func (bb *BoundingBox) ExpandBy(v *Vertex) {
	for d := range bb.Min {
		bb.Min[d] = math.Min(bb.Min[d], v.Coords[d])
		bb.Max[d] = math.Max(bb.Max[d], v.Coords[d])
	}
}

// Enlarge grows the box by amount on every side.
func (bb *BoundingBox) Enlarge(amount float64) {
	for d := range bb.Min {
		bb.Min[d] -= amount
		bb.Max[d] += amount
	}
}

func (bb BoundingBox) MaxSideLength() (length float64) {
	for d := range bb.Min {
		length = math.Max(length, bb.Max[d]-bb.Min[d])
	}
	return
}

// Contains tests per dimension interval containment, inclusive at the
// boundaries.
func (bb BoundingBox) Contains(coords []float64) bool {
	for d := range bb.Min {
		if coords[d] < bb.Min[d] || coords[d] > bb.Max[d] {
			return false
		}
	}
	return true
}

func (bb BoundingBox) Overlaps(other BoundingBox) bool {
	for d := range bb.Min {
		if bb.Max[d] < other.Min[d] || other.Max[d] < bb.Min[d] {
			return false
		}
	}
	return true
}

// EqualsApprox compares two boxes within the given absolute tolerance, used
// to detect unchanged partitioning between runs.
func (bb BoundingBox) EqualsApprox(other BoundingBox, tolerance float64) bool {
	if bb.Dims() != other.Dims() {
		return false
	}
	return floats.EqualApprox(bb.Min, other.Min, tolerance) &&
		floats.EqualApprox(bb.Max, other.Max, tolerance)
}

// Flatten packs the box as [min0, max0, min1, max1, ...] for the wire.
func (bb BoundingBox) Flatten() (flat []float64) {
	flat = make([]float64, 0, 2*bb.Dims())
	for d := range bb.Min {
		flat = append(flat, bb.Min[d], bb.Max[d])
	}
	return
}

func UnflattenBoundingBox(flat []float64) (bb BoundingBox) {
	dims := len(flat) / 2
	bb = NewBoundingBox(dims)
	for d := 0; d < dims; d++ {
		bb.Min[d] = flat[2*d]
		bb.Max[d] = flat[2*d+1]
	}
	return
}
