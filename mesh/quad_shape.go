package mesh

// Pure geometric queries used to validate and order quad input before
// construction. Both index vertices and edges by ID, which equals container
// position while the mesh has not been cleared.

// ComputeQuadConvexityFromPoints projects the four vertices onto the plane
// spanned by the first three, then walks the convex hull of the projected
// points by gift wrapping from the lowest x point, taking the most counter
// clockwise turn at every step. Returns true iff all four points end up on
// the hull, meaning the quad is convex and non degenerate, and reorders
// vertexIDs into cyclic hull order as a side effect. On failure vertexIDs is
// left unchanged.
func (m *Mesh) ComputeQuadConvexityFromPoints(vertexIDs *[4]int) bool {
	var (
		p      [4][3]float64
		coords [4][2]float64
	)
	for i := 0; i < 4; i++ {
		copy(p[i][:], m.Vertices[vertexIDs[i]].Coords)
	}

	// Plane basis from the first three points. The projection onto e1/e2 is
	// affine, which is enough for turn tests.
	e1 := sub3(p[1][:], p[0][:])
	e2 := sub3(p[2][:], p[0][:])
	for i := 0; i < 4; i++ {
		d := sub3(p[i][:], p[0][:])
		coords[i][0] = dot3(e1, d)
		coords[i][1] = dot3(e2, d)
	}

	// Lowest x projected point is on the hull and starts the walk.
	lowest := 0
	for i := 1; i < 4; i++ {
		if coords[i][0] < coords[lowest][0] {
			lowest = i
		}
	}

	var (
		hull    [4]int
		count   = 0
		current = lowest
	)
	for {
		if count == 4 && current != lowest {
			// Walk failed to close after four points, degenerate input.
			return false
		}
		if count < 4 {
			hull[count] = current
		}
		count++

		next := (current + 1) % 4
		for i := 0; i < 4; i++ {
			// Cross product turn test: positive means i is more counter
			// clockwise than the current candidate.
			y1 := coords[current][1] - coords[next][1]
			y2 := coords[current][1] - coords[i][1]
			x1 := coords[current][0] - coords[next][0]
			x2 := coords[current][0] - coords[i][0]
			if y2*x1-y1*x2 > 0 {
				next = i
			}
		}
		current = next
		if current == lowest {
			break
		}
	}

	if count != 4 {
		return false
	}
	reordered := [4]int{
		vertexIDs[hull[0]], vertexIDs[hull[1]], vertexIDs[hull[2]], vertexIDs[hull[3]],
	}
	*vertexIDs = reordered
	return true
}

// ComputeQuadEdgeOrder takes four unordered edge IDs forming a closed quad
// and reorders them canonically in place: edge 0 stays fixed, the edge
// sharing no vertex with edge 0 becomes edge 2, the edge sharing edge 0's
// second vertex (and not its first) becomes edge 1, the edge sharing edge
// 0's first vertex (and not its second) becomes edge 3. Returns the vertex
// IDs in cyclic order. The ordering determines the diagonal, not convexity.
func (m *Mesh) ComputeQuadEdgeOrder(edgeIDs *[4]int) (vertexIDs [4]int) {
	var order [4]int
	order[0] = edgeIDs[0]

	vertexIDs[0] = m.Edges[edgeIDs[0]].V[0].ID
	vertexIDs[1] = m.Edges[edgeIDs[0]].V[1].ID

	for j := 1; j < 4; j++ {
		e := m.Edges[edgeIDs[j]]
		id1 := e.V[0].ID
		id2 := e.V[1].ID
		sharesV0 := id1 == vertexIDs[0] || id2 == vertexIDs[0]
		sharesV1 := id1 == vertexIDs[1] || id2 == vertexIDs[1]

		switch {
		case !sharesV0 && !sharesV1:
			// Opposite edge.
			order[2] = edgeIDs[j]
		case sharesV0 && !sharesV1:
			// Closes the loop back to vertex 0.
			order[3] = edgeIDs[j]
			if id1 == vertexIDs[0] {
				vertexIDs[3] = id2
			} else {
				vertexIDs[3] = id1
			}
		case sharesV1 && !sharesV0:
			order[1] = edgeIDs[j]
			if id1 == vertexIDs[1] {
				vertexIDs[2] = id2
			} else {
				vertexIDs[2] = id1
			}
		}
	}

	*edgeIDs = order
	return
}
