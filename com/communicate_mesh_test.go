package com

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coupledsim/gocpl/mesh"
)

func buildTriangleMesh(t *testing.T) *mesh.Mesh {
	m, err := mesh.NewMesh("source", 3, false, 0)
	require.NoError(t, err)
	v0 := m.CreateVertex([]float64{0, 0, 0})
	v1 := m.CreateVertex([]float64{1, 0, 0})
	v2 := m.CreateVertex([]float64{0, 1, 0})
	v0.SetGlobalIndex(10)
	v1.SetGlobalIndex(11)
	v2.SetGlobalIndex(12)
	v0.SetOwner(true)
	v1.Tag()
	e0 := m.CreateEdge(v0, v1)
	e1 := m.CreateEdge(v1, v2)
	e2 := m.CreateEdge(v2, v0)
	_, err = m.CreateTriangle(e0, e1, e2)
	require.NoError(t, err)
	return m
}

func TestEncodeDecodeMeshRoundTrip(t *testing.T) {
	src := buildTriangleMesh(t)
	dst, err := mesh.NewMesh("target", 3, false, 1)
	require.NoError(t, err)

	ints, doubles := EncodeMesh(src)
	require.NoError(t, DecodeMesh(dst, ints, doubles))

	assert.True(t, src.Equals(dst))
	// Attributes cross the wire, IDs are reassigned locally.
	assert.Equal(t, 10, dst.Vertices[0].GlobalIndex)
	assert.True(t, dst.Vertices[0].Owner)
	assert.True(t, dst.Vertices[1].Tagged)
	assert.Equal(t, 0, dst.Vertices[0].ID)
}

func TestDecodeMeshIntoNonEmptyMeshMerges(t *testing.T) {
	src := buildTriangleMesh(t)
	dst := buildTriangleMesh(t)

	ints, doubles := EncodeMesh(src)
	require.NoError(t, DecodeMesh(dst, ints, doubles))

	assert.Len(t, dst.Vertices, 6)
	assert.Len(t, dst.Edges, 6)
	assert.Len(t, dst.Triangles, 2)
}

func TestDecodeMeshMalformed(t *testing.T) {
	dst, err := mesh.NewMesh("target", 3, false, 1)
	require.NoError(t, err)

	// Truncated integer block.
	assert.Error(t, DecodeMesh(dst, []int{2, 0, 0}, make([]float64, 6)))

	// Coordinate count does not match vertex count.
	dst.Clear()
	assert.Error(t, DecodeMesh(dst, []int{1, 0, 0, 0, 0, 0, 0}, []float64{1, 2}))
}

func TestSendReceiveMeshBetweenRanks(t *testing.T) {
	comms := NewChannelGroup(2)
	src := buildTriangleMesh(t)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cm := NewCommunicateMesh(comms[0])
		require.NoError(t, cm.SendMesh(src, 1))
	}()

	dst, err := mesh.NewMesh("received", 3, false, 2)
	require.NoError(t, err)
	cm := NewCommunicateMesh(comms[1])
	require.NoError(t, cm.ReceiveMesh(dst, 0))
	wg.Wait()

	assert.True(t, src.Equals(dst))
}

func TestSendReceiveBoundingBox(t *testing.T) {
	comms := NewChannelGroup(2)
	bb := mesh.BoundingBox{Min: []float64{0, -1}, Max: []float64{2, 3}}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cm := NewCommunicateMesh(comms[0])
		require.NoError(t, cm.SendBoundingBox(bb, 1))
	}()

	cm := NewCommunicateMesh(comms[1])
	received, err := cm.ReceiveBoundingBox(0)
	require.NoError(t, err)
	wg.Wait()
	assert.Equal(t, bb, received)
}
