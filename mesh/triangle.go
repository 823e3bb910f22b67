package mesh

// Triangle is a 3-D face built from three pairwise connected edges. The edge
// references are weak, like the edge to vertex references. V holds the
// cyclic vertex order derived at construction: V[i] is the vertex shared by
// edge i-1 and edge i.
type Triangle struct {
	ID     int
	Edges  [3]*Edge
	V      [3]*Vertex
	Normal []float64
}

func (t *Triangle) Edge(i int) *Edge {
	return t.Edges[i]
}

func (t *Triangle) Vertex(i int) *Vertex {
	return t.V[i]
}

// WeightedNormal returns the triangle normal weighted by its area, the half
// cross product of two edge vectors. Negated when flip is set.
func (t *Triangle) WeightedNormal(flip bool) (normal []float64) {
	var (
		e1 = sub3(t.V[1].Coords, t.V[0].Coords)
		e2 = sub3(t.V[2].Coords, t.V[0].Coords)
		n  = cross(e1, e2)
	)
	normal = []float64{0.5 * n[0], 0.5 * n[1], 0.5 * n[2]}
	if flip {
		for i := range normal {
			normal[i] = -normal[i]
		}
	}
	return
}

// cyclicTriangleVertices derives the vertex order of a closed edge loop, or
// nil if the edges are not pairwise connected.
func cyclicTriangleVertices(e1, e2, e3 *Edge) (v [3]*Vertex, ok bool) {
	v[0] = sharedVertex(e3, e1)
	v[1] = sharedVertex(e1, e2)
	v[2] = sharedVertex(e2, e3)
	ok = v[0] != nil && v[1] != nil && v[2] != nil &&
		v[0] != v[1] && v[1] != v[2] && v[2] != v[0]
	return
}
