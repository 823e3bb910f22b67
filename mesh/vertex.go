package mesh

import "gonum.org/v1/gonum/floats"

// Vertex is a mesh node. Coordinates are fixed at creation, the normal is
// accumulated by Mesh.ComputeState. The global index is only valid once a
// distribution has been computed for the mesh.
type Vertex struct {
	ID          int
	Coords      []float64
	Normal      []float64
	GlobalIndex int
	Owner       bool
	Tagged      bool
}

func (v *Vertex) Dims() int {
	return len(v.Coords)
}

func (v *Vertex) Tag() {
	v.Tagged = true
}

func (v *Vertex) SetOwner(owner bool) {
	v.Owner = owner
}

func (v *Vertex) SetGlobalIndex(index int) {
	v.GlobalIndex = index
}

// SameCoords compares positions exactly, used by the permutation based mesh
// equality check.
func (v *Vertex) SameCoords(other *Vertex) bool {
	return floats.Equal(v.Coords, other.Coords)
}
