package com

import (
	"fmt"

	"github.com/coupledsim/gocpl/mesh"
)

// CommunicateMesh copies mesh topology between two ranks over a
// Communication. The wire shape carries vertex coordinates, global indices
// and attribute flags followed by connectivity as container positions; the
// receiver reconstructs element IDs locally since ID spaces are per
// process.
type CommunicateMesh struct {
	comm Communication
}

func NewCommunicateMesh(comm Communication) *CommunicateMesh {
	return &CommunicateMesh{comm: comm}
}

// EncodeMesh flattens a mesh into an integer block and a coordinate block.
//
// Integer layout: nVertices, then per vertex (globalIndex, owner, tagged);
// nEdges, per edge both vertex positions; nTriangles, per triangle three
// edge positions; nQuads, per quad four edge positions. Positions index the
// sender's containers, not IDs.
func EncodeMesh(m *mesh.Mesh) (ints []int, doubles []float64) {
	vertexPos := make(map[*mesh.Vertex]int, len(m.Vertices))
	edgePos := make(map[*mesh.Edge]int, len(m.Edges))

	ints = append(ints, len(m.Vertices))
	for pos, v := range m.Vertices {
		vertexPos[v] = pos
		ints = append(ints, v.GlobalIndex, boolToInt(v.Owner), boolToInt(v.Tagged))
		doubles = append(doubles, v.Coords...)
	}

	ints = append(ints, len(m.Edges))
	for pos, e := range m.Edges {
		edgePos[e] = pos
		ints = append(ints, vertexPos[e.V[0]], vertexPos[e.V[1]])
	}

	ints = append(ints, len(m.Triangles))
	for _, t := range m.Triangles {
		ints = append(ints, edgePos[t.Edges[0]], edgePos[t.Edges[1]], edgePos[t.Edges[2]])
	}

	ints = append(ints, len(m.Quads))
	for _, q := range m.Quads {
		ints = append(ints,
			edgePos[q.Edges[0]], edgePos[q.Edges[1]], edgePos[q.Edges[2]], edgePos[q.Edges[3]])
	}
	return
}

// DecodeMesh appends the encoded topology to m, assigning fresh local IDs.
// Decoding into a non-empty mesh behaves like a merge.
func DecodeMesh(m *mesh.Mesh, ints []int, doubles []float64) error {
	var (
		dims    = m.Dimensions
		intPos  = 0
		dblPos  = 0
		nextInt = func() (int, error) {
			if intPos >= len(ints) {
				return 0, fmt.Errorf("mesh %q: truncated topology block", m.Name)
			}
			v := ints[intPos]
			intPos++
			return v, nil
		}
	)

	nVertices, err := nextInt()
	if err != nil {
		return err
	}
	if len(doubles) != nVertices*dims {
		return fmt.Errorf("mesh %q: expected %d coordinates, got %d",
			m.Name, nVertices*dims, len(doubles))
	}
	vertices := make([]*mesh.Vertex, nVertices)
	for i := 0; i < nVertices; i++ {
		globalIndex, err := nextInt()
		if err != nil {
			return err
		}
		owner, err := nextInt()
		if err != nil {
			return err
		}
		tagged, err := nextInt()
		if err != nil {
			return err
		}
		v := m.CreateVertex(doubles[dblPos : dblPos+dims])
		dblPos += dims
		v.SetGlobalIndex(globalIndex)
		v.SetOwner(owner != 0)
		if tagged != 0 {
			v.Tag()
		}
		vertices[i] = v
	}

	nEdges, err := nextInt()
	if err != nil {
		return err
	}
	edges := make([]*mesh.Edge, nEdges)
	for i := 0; i < nEdges; i++ {
		p1, err := nextInt()
		if err != nil {
			return err
		}
		p2, err := nextInt()
		if err != nil {
			return err
		}
		if p1 < 0 || p1 >= nVertices || p2 < 0 || p2 >= nVertices {
			return fmt.Errorf("mesh %q: edge references vertex position out of range", m.Name)
		}
		edges[i] = m.CreateEdge(vertices[p1], vertices[p2])
	}

	edgeAt := func() (*mesh.Edge, error) {
		p, err := nextInt()
		if err != nil {
			return nil, err
		}
		if p < 0 || p >= nEdges {
			return nil, fmt.Errorf("mesh %q: face references edge position out of range", m.Name)
		}
		return edges[p], nil
	}

	nTriangles, err := nextInt()
	if err != nil {
		return err
	}
	for i := 0; i < nTriangles; i++ {
		e1, err := edgeAt()
		if err != nil {
			return err
		}
		e2, err := edgeAt()
		if err != nil {
			return err
		}
		e3, err := edgeAt()
		if err != nil {
			return err
		}
		if _, err = m.CreateTriangle(e1, e2, e3); err != nil {
			return err
		}
	}

	nQuads, err := nextInt()
	if err != nil {
		return err
	}
	for i := 0; i < nQuads; i++ {
		var quadEdges [4]*mesh.Edge
		for j := 0; j < 4; j++ {
			if quadEdges[j], err = edgeAt(); err != nil {
				return err
			}
		}
		if _, err = m.CreateQuad(quadEdges[0], quadEdges[1], quadEdges[2], quadEdges[3]); err != nil {
			return err
		}
	}
	return nil
}

// SendMesh transfers the full topology of m to the receiver rank.
func (cm *CommunicateMesh) SendMesh(m *mesh.Mesh, to int) error {
	ints, doubles := EncodeMesh(m)
	if err := cm.comm.SendInts(ints, to); err != nil {
		return err
	}
	return cm.comm.SendDoubles(doubles, to)
}

// ReceiveMesh appends a topology sent by the sender rank to m.
func (cm *CommunicateMesh) ReceiveMesh(m *mesh.Mesh, from int) error {
	ints, err := cm.comm.ReceiveInts(from)
	if err != nil {
		return err
	}
	doubles, err := cm.comm.ReceiveDoubles(from)
	if err != nil {
		return err
	}
	return DecodeMesh(m, ints, doubles)
}

// SendBoundingBox transfers one axis aligned box.
func (cm *CommunicateMesh) SendBoundingBox(bb mesh.BoundingBox, to int) error {
	return cm.comm.SendDoubles(bb.Flatten(), to)
}

// ReceiveBoundingBox receives one axis aligned box.
func (cm *CommunicateMesh) ReceiveBoundingBox(from int) (mesh.BoundingBox, error) {
	flat, err := cm.comm.ReceiveDoubles(from)
	if err != nil {
		return mesh.BoundingBox{}, err
	}
	if len(flat) == 0 || len(flat)%2 != 0 {
		return mesh.BoundingBox{}, fmt.Errorf("malformed bounding box of %d values", len(flat))
	}
	return mesh.UnflattenBoundingBox(flat), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
