package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundingBoxExpandAndContains(t *testing.T) {
	bb := NewBoundingBox(2)
	bb.ExpandBy(&Vertex{Coords: []float64{0, 0}})
	bb.ExpandBy(&Vertex{Coords: []float64{2, 1}})

	assert.Equal(t, []float64{0, 0}, bb.Min)
	assert.Equal(t, []float64{2, 1}, bb.Max)

	// Inclusive at the boundary.
	assert.True(t, bb.Contains([]float64{0, 0}))
	assert.True(t, bb.Contains([]float64{2, 1}))
	assert.True(t, bb.Contains([]float64{1, 0.5}))
	assert.False(t, bb.Contains([]float64{2.001, 0.5}))
}

func TestBoundingBoxMonotonicExpansion(t *testing.T) {
	bb := NewBoundingBox(2)
	bb.ExpandBy(&Vertex{Coords: []float64{1, 1}})
	bb.ExpandBy(&Vertex{Coords: []float64{1.5, 1.5}})
	// A vertex inside the box never shrinks it.
	bb.ExpandBy(&Vertex{Coords: []float64{1.2, 1.2}})
	assert.Equal(t, []float64{1, 1}, bb.Min)
	assert.Equal(t, []float64{1.5, 1.5}, bb.Max)
}

func TestBoundingBoxOverlaps(t *testing.T) {
	a := BoundingBox{Min: []float64{0, 0}, Max: []float64{1, 1}}
	b := BoundingBox{Min: []float64{0.5, 0.5}, Max: []float64{2, 2}}
	c := BoundingBox{Min: []float64{3, 3}, Max: []float64{4, 4}}
	touching := BoundingBox{Min: []float64{1, 0}, Max: []float64{2, 1}}

	assert.True(t, a.Overlaps(b))
	assert.True(t, b.Overlaps(a))
	assert.False(t, a.Overlaps(c))
	// Shared boundary counts as overlap.
	assert.True(t, a.Overlaps(touching))
}

func TestBoundingBoxEqualsApprox(t *testing.T) {
	a := BoundingBox{Min: []float64{0, 0}, Max: []float64{1, 1}}
	b := BoundingBox{Min: []float64{1e-12, 0}, Max: []float64{1, 1 + 1e-12}}
	c := BoundingBox{Min: []float64{0.1, 0}, Max: []float64{1, 1}}

	assert.True(t, a.EqualsApprox(b, 1e-9))
	assert.False(t, a.EqualsApprox(c, 1e-9))
	assert.False(t, a.EqualsApprox(NewBoundingBox(3), 1e-9))
}

func TestBoundingBoxEnlarge(t *testing.T) {
	bb := BoundingBox{Min: []float64{0, 0}, Max: []float64{2, 1}}
	assert.Equal(t, 2.0, bb.MaxSideLength())
	bb.Enlarge(0.5)
	assert.Equal(t, []float64{-0.5, -0.5}, bb.Min)
	assert.Equal(t, []float64{2.5, 1.5}, bb.Max)
}

func TestBoundingBoxFlattenRoundTrip(t *testing.T) {
	bb := BoundingBox{Min: []float64{-1, 2, 0}, Max: []float64{1, 3, 5}}
	out := UnflattenBoundingBox(bb.Flatten())
	assert.Equal(t, bb, out)
}
