package mesh

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Mesh owns the vertices, edges and faces of one coupling interface together
// with the named data fields defined on it. Topology is append only between
// calls to Clear. Element IDs are handed out by per type monotonic counters
// that reset only on Clear, so an ID is never reused mid lifetime.
//
// The distribution metadata (VertexDistribution, VertexOffsets,
// GlobalNumberOfVertices) is only meaningful on the master rank after a
// partitioning pass has completed.
type Mesh struct {
	Name        string
	ID          int
	Dimensions  int
	FlipNormals bool

	Vertices  []*Vertex
	Edges     []*Edge
	Triangles []*Triangle
	Quads     []*Quad
	Data      []*Data

	BoundingBox BoundingBox

	// VertexDistribution maps a rank to the global indices of its vertices,
	// position in the slice being the rank local vertex index.
	VertexDistribution     map[int][]int
	VertexOffsets          []int
	GlobalNumberOfVertices int

	nextVertexID   int
	nextEdgeID     int
	nextTriangleID int
	nextQuadID     int

	changeListeners  []func(*Mesh)
	destroyListeners []func(*Mesh)
}

func NewMesh(name string, dimensions int, flipNormals bool, id int) (m *Mesh, err error) {
	if dimensions != 2 && dimensions != 3 {
		return nil, fmt.Errorf("mesh %q: dimensions must be 2 or 3, got %d", name, dimensions)
	}
	if name == "" {
		return nil, fmt.Errorf("mesh name must not be empty")
	}
	m = &Mesh{
		Name:               name,
		ID:                 id,
		Dimensions:         dimensions,
		FlipNormals:        flipNormals,
		BoundingBox:        NewBoundingBox(dimensions),
		VertexDistribution: make(map[int][]int),
	}
	return
}

// OnChange registers a callback fired after any mutation that invalidates
// spatial indices derived from this mesh (Clear, AddMesh).
func (m *Mesh) OnChange(cb func(*Mesh)) {
	m.changeListeners = append(m.changeListeners, cb)
}

// OnDestroy registers a callback fired by Destroy.
func (m *Mesh) OnDestroy(cb func(*Mesh)) {
	m.destroyListeners = append(m.destroyListeners, cb)
}

func (m *Mesh) notifyChange() {
	for _, cb := range m.changeListeners {
		cb(m)
	}
}

// Destroy fires the destroy notification so that caches built on this mesh
// can drop their references. The mesh must not be used afterwards.
func (m *Mesh) Destroy() {
	for _, cb := range m.destroyListeners {
		cb(m)
	}
}

func (m *Mesh) CreateVertex(coords []float64) (v *Vertex) {
	if len(coords) != m.Dimensions {
		panic(fmt.Sprintf("mesh %q: vertex coords have %d dims, mesh has %d",
			m.Name, len(coords), m.Dimensions))
	}
	v = &Vertex{
		ID:          m.nextVertexID,
		Coords:      append([]float64{}, coords...),
		Normal:      make([]float64, m.Dimensions),
		GlobalIndex: -1,
	}
	m.nextVertexID++
	m.Vertices = append(m.Vertices, v)
	return
}

func (m *Mesh) CreateEdge(v1, v2 *Vertex) (e *Edge) {
	e = &Edge{
		ID:     m.nextEdgeID,
		V:      [2]*Vertex{v1, v2},
		Normal: make([]float64, m.Dimensions),
	}
	m.nextEdgeID++
	m.Edges = append(m.Edges, e)
	return
}

// CreateUniqueEdge returns the existing edge between the two vertices,
// matching in either direction, or creates a new one. Used when building
// faces that share boundaries to avoid duplicate edges.
func (m *Mesh) CreateUniqueEdge(v1, v2 *Vertex) (e *Edge) {
	for _, candidate := range m.Edges {
		if (candidate.V[0] == v1 && candidate.V[1] == v2) ||
			(candidate.V[0] == v2 && candidate.V[1] == v1) {
			return candidate
		}
	}
	return m.CreateEdge(v1, v2)
}

func (m *Mesh) CreateTriangle(e1, e2, e3 *Edge) (t *Triangle, err error) {
	v, ok := cyclicTriangleVertices(e1, e2, e3)
	if !ok {
		return nil, fmt.Errorf("mesh %q: triangle edges are not connected", m.Name)
	}
	t = &Triangle{
		ID:     m.nextTriangleID,
		Edges:  [3]*Edge{e1, e2, e3},
		V:      v,
		Normal: make([]float64, m.Dimensions),
	}
	m.nextTriangleID++
	m.Triangles = append(m.Triangles, t)
	return
}

func (m *Mesh) CreateQuad(e1, e2, e3, e4 *Edge) (q *Quad, err error) {
	v, ok := cyclicQuadVertices(e1, e2, e3, e4)
	if !ok {
		return nil, fmt.Errorf("mesh %q: quad edges are not connected", m.Name)
	}
	q = &Quad{
		ID:     m.nextQuadID,
		Edges:  [4]*Edge{e1, e2, e3, e4},
		V:      v,
		Normal: make([]float64, m.Dimensions),
	}
	m.nextQuadID++
	m.Quads = append(m.Quads, q)
	return
}

func (m *Mesh) CreateData(name string, dimension int) (d *Data, err error) {
	for _, existing := range m.Data {
		if existing.Name == name {
			return nil, fmt.Errorf("data %q cannot be created twice for mesh %q", name, m.Name)
		}
	}
	d = newData(name, dimension)
	m.Data = append(m.Data, d)
	return
}

func (m *Mesh) DataWithID(dataID int) (d *Data, err error) {
	for _, candidate := range m.Data {
		if candidate.ID == dataID {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("data with ID %d not found in mesh %q", dataID, m.Name)
}

func (m *Mesh) DataWithName(name string) (d *Data, err error) {
	for _, candidate := range m.Data {
		if candidate.Name == name {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("data %q not found in mesh %q", name, m.Name)
}

func (m *Mesh) IsValidVertexID(vertexID int) bool {
	return 0 <= vertexID && vertexID < len(m.Vertices)
}

func (m *Mesh) IsValidEdgeID(edgeID int) bool {
	return 0 <= edgeID && edgeID < len(m.Edges)
}

// AllocateDataValues resizes every field buffer to vertex count times field
// dimension. Shrinking truncates, growing appends zeros, an unchanged count
// leaves buffers untouched. Must run after bulk vertex insertion and before
// any field access.
func (m *Mesh) AllocateDataValues() {
	expectedCount := len(m.Vertices)
	for _, d := range m.Data {
		expectedSize := expectedCount * d.Dimension
		switch actual := len(d.Values); {
		case expectedSize < actual:
			d.Values = d.Values[:expectedSize]
		case expectedSize > actual:
			d.Values = append(d.Values, make([]float64, expectedSize-actual)...)
		}
	}
}

// ComputeBoundingBox rebuilds the box by expanding over all vertices.
func (m *Mesh) ComputeBoundingBox() {
	bb := NewBoundingBox(m.Dimensions)
	for _, v := range m.Vertices {
		bb.ExpandBy(v)
	}
	m.BoundingBox = bb
}

// ComputeState recomputes all normals from scratch. In 2-D every edge
// accumulates a length weighted normal into its vertices; in 3-D triangles
// and quads accumulate area weighted normals into their edges and vertices
// and the edge normals are unit normalized afterwards. Finally all vertex
// normals are unit normalized. Elements left without an adjacent face, for
// example after filtering, keep a zero normal.
func (m *Mesh) ComputeState() {
	if m.Dimensions == 2 && len(m.Edges) == 0 {
		return
	}
	if m.Dimensions == 3 && len(m.Triangles)+len(m.Quads) == 0 {
		return
	}

	for _, v := range m.Vertices {
		v.Normal = make([]float64, m.Dimensions)
	}
	for _, e := range m.Edges {
		e.Normal = make([]float64, m.Dimensions)
	}

	if m.Dimensions == 2 {
		for _, e := range m.Edges {
			weighted := e.WeightedNormal(m.FlipNormals)
			copy(e.Normal, weighted)
			for i := 0; i < 2; i++ {
				accumulate(e.V[i].Normal, weighted)
			}
		}
	}

	if m.Dimensions == 3 {
		for _, t := range m.Triangles {
			weighted := t.WeightedNormal(m.FlipNormals)
			t.Normal = weighted
			for i := 0; i < 3; i++ {
				accumulate(t.Edges[i].Normal, weighted)
				accumulate(t.V[i].Normal, weighted)
			}
		}
		for _, q := range m.Quads {
			weighted := q.WeightedNormal(m.FlipNormals)
			q.Normal = weighted
			for i := 0; i < 4; i++ {
				accumulate(q.Edges[i].Normal, weighted)
				accumulate(q.V[i].Normal, weighted)
			}
		}
		for _, e := range m.Edges {
			normalizeInPlace(e.Normal)
		}
	}

	for _, v := range m.Vertices {
		normalizeInPlace(v.Normal)
	}
}

func accumulate(dst, src []float64) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Clear drops all elements, resets the per type ID counters and truncates
// every field buffer to length zero. Fires the change notification.
func (m *Mesh) Clear() {
	m.Quads = nil
	m.Triangles = nil
	m.Edges = nil
	m.Vertices = nil

	m.nextQuadID = 0
	m.nextTriangleID = 0
	m.nextEdgeID = 0
	m.nextVertexID = 0

	m.notifyChange()

	for _, d := range m.Data {
		d.Values = d.Values[:0]
	}
}

func (m *Mesh) TagAll() {
	for _, v := range m.Vertices {
		v.Tag()
	}
}

// AddMesh deep copies the elements of delta into this mesh, remapping IDs
// through temporary maps: vertices first, then edges through the vertex map,
// then faces through the edge map. Tagged, owner and global index attributes
// are preserved. Fires the change notification.
func (m *Mesh) AddMesh(delta *Mesh) error {
	if m.Dimensions != delta.Dimensions {
		return fmt.Errorf("cannot merge %d-D mesh %q into %d-D mesh %q",
			delta.Dimensions, delta.Name, m.Dimensions, m.Name)
	}

	vertexMap := make(map[int]*Vertex, len(delta.Vertices))
	for _, vertex := range delta.Vertices {
		v := m.CreateVertex(vertex.Coords)
		v.SetGlobalIndex(vertex.GlobalIndex)
		if vertex.Tagged {
			v.Tag()
		}
		v.SetOwner(vertex.Owner)
		vertexMap[vertex.ID] = v
	}

	// The edge vertices must come from the new mesh, the copied vertices may
	// differ in IDs.
	edgeMap := make(map[int]*Edge, len(delta.Edges))
	for _, edge := range delta.Edges {
		v1, ok1 := vertexMap[edge.V[0].ID]
		v2, ok2 := vertexMap[edge.V[1].ID]
		if !ok1 || !ok2 {
			return fmt.Errorf("mesh %q: edge %d references unknown vertex", delta.Name, edge.ID)
		}
		edgeMap[edge.ID] = m.CreateEdge(v1, v2)
	}

	if m.Dimensions == 3 {
		for _, triangle := range delta.Triangles {
			if _, err := m.CreateTriangle(
				edgeMap[triangle.Edges[0].ID],
				edgeMap[triangle.Edges[1].ID],
				edgeMap[triangle.Edges[2].ID]); err != nil {
				return err
			}
		}
		for _, quad := range delta.Quads {
			if _, err := m.CreateQuad(
				edgeMap[quad.Edges[0].ID],
				edgeMap[quad.Edges[1].ID],
				edgeMap[quad.Edges[2].ID],
				edgeMap[quad.Edges[3].ID]); err != nil {
				return err
			}
		}
	}
	m.notifyChange()
	return nil
}

// GetOwnedVertexData extracts the values of the owned vertices only, in
// vertex order, as a dense vector. Used to assemble global reductions where
// every vertex must be counted exactly once.
func (m *Mesh) GetOwnedVertexData(dataID int) (*mat.VecDense, error) {
	d, err := m.DataWithID(dataID)
	if err != nil {
		return nil, err
	}
	var owned []float64
	for index, vertex := range m.Vertices {
		if !vertex.Owner {
			continue
		}
		for dim := 0; dim < d.Dimension; dim++ {
			owned = append(owned, d.Values[index*d.Dimension+dim])
		}
	}
	if len(owned) == 0 {
		return &mat.VecDense{}, nil
	}
	return mat.NewVecDense(len(owned), owned), nil
}

// Equals compares the vertex, edge, triangle and quad sets as unordered
// multisets. Element order and IDs do not matter, only geometry. Not for hot
// paths.
func (m *Mesh) Equals(other *Mesh) bool {
	if len(m.Vertices) != len(other.Vertices) ||
		len(m.Edges) != len(other.Edges) ||
		len(m.Triangles) != len(other.Triangles) ||
		len(m.Quads) != len(other.Quads) {
		return false
	}
	vertexEq := func(i, j int) bool { return m.Vertices[i].SameCoords(other.Vertices[j]) }
	edgeEq := func(i, j int) bool { return sameEdge(m.Edges[i], other.Edges[j]) }
	triangleEq := func(i, j int) bool { return sameTriangle(m.Triangles[i], other.Triangles[j]) }
	quadEq := func(i, j int) bool { return sameQuad(m.Quads[i], other.Quads[j]) }
	return isPermutation(len(m.Vertices), vertexEq) &&
		isPermutation(len(m.Edges), edgeEq) &&
		isPermutation(len(m.Triangles), triangleEq) &&
		isPermutation(len(m.Quads), quadEq)
}

// isPermutation greedily matches elements of two equal length sequences
// through the provided predicate.
func isPermutation(n int, eq func(i, j int) bool) bool {
	used := make([]bool, n)
outer:
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if !used[j] && eq(i, j) {
				used[j] = true
				continue outer
			}
		}
		return false
	}
	return true
}

func sameEdge(a, b *Edge) bool {
	return (a.V[0].SameCoords(b.V[0]) && a.V[1].SameCoords(b.V[1])) ||
		(a.V[0].SameCoords(b.V[1]) && a.V[1].SameCoords(b.V[0]))
}

func sameTriangle(a, b *Triangle) bool {
	eq := func(i, j int) bool { return a.V[i].SameCoords(b.V[j]) }
	return isPermutation(3, eq)
}

func sameQuad(a, b *Quad) bool {
	eq := func(i, j int) bool { return a.V[i].SameCoords(b.V[j]) }
	return isPermutation(4, eq)
}

func (m *Mesh) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Mesh %q, dimensionality = %d:\n", m.Name, m.Dimensions)
	fmt.Fprintf(&sb, "  %d vertices, %d edges, %d triangles, %d quads\n",
		len(m.Vertices), len(m.Edges), len(m.Triangles), len(m.Quads))
	for _, v := range m.Vertices {
		fmt.Fprintf(&sb, "  v%d %v global=%d owner=%v tagged=%v\n",
			v.ID, v.Coords, v.GlobalIndex, v.Owner, v.Tagged)
	}
	for _, e := range m.Edges {
		fmt.Fprintf(&sb, "  e%d (v%d v%d)\n", e.ID, e.V[0].ID, e.V[1].ID)
	}
	for _, t := range m.Triangles {
		fmt.Fprintf(&sb, "  t%d (e%d e%d e%d)\n", t.ID, t.Edges[0].ID, t.Edges[1].ID, t.Edges[2].ID)
	}
	for _, q := range m.Quads {
		fmt.Fprintf(&sb, "  q%d (e%d e%d e%d e%d)\n", q.ID,
			q.Edges[0].ID, q.Edges[1].ID, q.Edges[2].ID, q.Edges[3].ID)
	}
	return sb.String()
}
