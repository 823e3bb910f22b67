package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuadConvexitySquare(t *testing.T) {
	m := newTestMesh(t, 2)
	m.CreateVertex([]float64{0, 0})
	m.CreateVertex([]float64{1, 0})
	m.CreateVertex([]float64{1, 1})
	m.CreateVertex([]float64{0, 1})

	ids := [4]int{0, 1, 2, 3}
	require.True(t, m.ComputeQuadConvexityFromPoints(&ids))
	// Hull walk starts at the lowest projected x point and runs one cyclic
	// orientation of the square.
	assert.Equal(t, [4]int{0, 3, 2, 1}, ids)
}

func TestQuadConvexitySquare3D(t *testing.T) {
	m := newTestMesh(t, 3)
	// Unit square in the z=1 plane, supplied out of cyclic order.
	m.CreateVertex([]float64{0, 0, 1})
	m.CreateVertex([]float64{1, 1, 1})
	m.CreateVertex([]float64{1, 0, 1})
	m.CreateVertex([]float64{0, 1, 1})

	ids := [4]int{0, 2, 1, 3}
	require.True(t, m.ComputeQuadConvexityFromPoints(&ids))

	seen := map[int]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 4)
}

func TestQuadConvexityInteriorPoint(t *testing.T) {
	m := newTestMesh(t, 2)
	m.CreateVertex([]float64{0, 0})
	m.CreateVertex([]float64{1, 0})
	m.CreateVertex([]float64{1, 1})
	// Inside the triangle of the other three.
	m.CreateVertex([]float64{0.7, 0.3})

	ids := [4]int{0, 1, 2, 3}
	original := ids
	assert.False(t, m.ComputeQuadConvexityFromPoints(&ids))
	assert.Equal(t, original, ids)
}

func TestQuadEdgeOrder(t *testing.T) {
	m := newTestMesh(t, 3)
	v0 := m.CreateVertex([]float64{0, 0, 0})
	v1 := m.CreateVertex([]float64{1, 0, 0})
	v2 := m.CreateVertex([]float64{1, 1, 0})
	v3 := m.CreateVertex([]float64{0, 1, 0})

	m.CreateEdge(v0, v1) // edge 0
	m.CreateEdge(v1, v2) // edge 1
	m.CreateEdge(v2, v3) // edge 2
	m.CreateEdge(v3, v0) // edge 3

	// Shuffled input: opposite edge right after the first one.
	edgeIDs := [4]int{0, 2, 1, 3}
	vertexIDs := m.ComputeQuadEdgeOrder(&edgeIDs)

	assert.Equal(t, [4]int{0, 1, 2, 3}, edgeIDs)
	assert.Equal(t, [4]int{0, 1, 2, 3}, vertexIDs)
}

func TestQuadEdgeOrderReversedEdges(t *testing.T) {
	m := newTestMesh(t, 3)
	v0 := m.CreateVertex([]float64{0, 0, 0})
	v1 := m.CreateVertex([]float64{1, 0, 0})
	v2 := m.CreateVertex([]float64{1, 1, 0})
	v3 := m.CreateVertex([]float64{0, 1, 0})

	m.CreateEdge(v0, v1) // edge 0
	m.CreateEdge(v2, v1) // edge 1, flipped direction
	m.CreateEdge(v3, v2) // edge 2, flipped direction
	m.CreateEdge(v3, v0) // edge 3

	edgeIDs := [4]int{0, 3, 2, 1}
	vertexIDs := m.ComputeQuadEdgeOrder(&edgeIDs)

	assert.Equal(t, [4]int{0, 1, 2, 3}, edgeIDs)
	assert.Equal(t, [4]int{0, 1, 2, 3}, vertexIDs)
}
