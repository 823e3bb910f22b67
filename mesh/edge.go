package mesh

// Edge connects two vertices. The vertex references are weak: an edge is
// owned by its mesh and never outlives the vertices it points at.
type Edge struct {
	ID     int
	V      [2]*Vertex
	Normal []float64
}

func (e *Edge) Vertex(i int) *Vertex {
	return e.V[i]
}

// ConnectedTo reports whether the two edges share a vertex.
func (e *Edge) ConnectedTo(other *Edge) bool {
	return sharedVertex(e, other) != nil
}

func sharedVertex(a, b *Edge) (v *Vertex) {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if a.V[i] == b.V[j] {
				return a.V[i]
			}
		}
	}
	return nil
}

// WeightedNormal returns the 2-D edge normal weighted by edge length: the
// edge vector rotated a quarter turn. Negated when flip is set.
func (e *Edge) WeightedNormal(flip bool) (normal []float64) {
	var (
		dx = e.V[1].Coords[0] - e.V[0].Coords[0]
		dy = e.V[1].Coords[1] - e.V[0].Coords[1]
	)
	normal = []float64{dy, -dx}
	if flip {
		normal[0], normal[1] = -normal[0], -normal[1]
	}
	return
}
