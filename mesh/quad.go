package mesh

// Quad is a 3-D face built from four edges that close a cycle. V holds the
// cyclic vertex order derived at construction: V[i] is the vertex shared by
// edge i-1 and edge i.
type Quad struct {
	ID     int
	Edges  [4]*Edge
	V      [4]*Vertex
	Normal []float64
}

func (q *Quad) Edge(i int) *Edge {
	return q.Edges[i]
}

func (q *Quad) Vertex(i int) *Vertex {
	return q.V[i]
}

// WeightedNormal returns the quad normal weighted by area, the half cross
// product of the two diagonals. All four vertices are assumed coplanar.
// Negated when flip is set.
func (q *Quad) WeightedNormal(flip bool) (normal []float64) {
	var (
		d1 = sub3(q.V[2].Coords, q.V[0].Coords)
		d2 = sub3(q.V[3].Coords, q.V[1].Coords)
		n  = cross(d1, d2)
	)
	normal = []float64{0.5 * n[0], 0.5 * n[1], 0.5 * n[2]}
	if flip {
		for i := range normal {
			normal[i] = -normal[i]
		}
	}
	return
}

// cyclicQuadVertices derives the vertex order of a closed four edge loop, or
// ok=false if consecutive edges do not share exactly one vertex each.
func cyclicQuadVertices(e1, e2, e3, e4 *Edge) (v [4]*Vertex, ok bool) {
	v[0] = sharedVertex(e4, e1)
	v[1] = sharedVertex(e1, e2)
	v[2] = sharedVertex(e2, e3)
	v[3] = sharedVertex(e3, e4)
	if v[0] == nil || v[1] == nil || v[2] == nil || v[3] == nil {
		return v, false
	}
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if v[i] == v[j] {
				return v, false
			}
		}
	}
	return v, true
}
