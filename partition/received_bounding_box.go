package partition

import (
	"fmt"
	"log"

	"github.com/coupledsim/gocpl/com"
	"github.com/coupledsim/gocpl/m2n"
	"github.com/coupledsim/gocpl/mesh"
)

// boundingBoxTolerance is the absolute tolerance under which two boxes
// count as equal, used to detect unchanged partitioning across re-runs.
const boundingBoxTolerance = 1e-8

// ReceivedBoundingBox re-partitions a mesh received from the remote
// participant among the local ranks. The pass runs in fixed order:
// ComputeBoundingBox, CommunicateBoundingBox, Communicate, Compute. Each
// step checks the state so a misordered setup fails loudly instead of
// producing a half-built distribution.
type ReceivedBoundingBox struct {
	mesh         *mesh.Mesh
	m2n          *m2n.GatherScatterCommunication
	safetyFactor float64
	filter       GeometricFilter
	state        State

	// bb is this rank's safety-expanded region.
	bb mesh.BoundingBox
	// globalBB maps every remote rank to its bounding box.
	globalBB map[int]mesh.BoundingBox
	// feedback lists the remote ranks whose box overlaps this rank's.
	feedback []int
	// feedbackMap (master only) maps every remote rank to the local ranks
	// connected to it, the inverse of localCommunicationMap.
	feedbackMap map[int][]int
	// localCommunicationMap (master only) maps every local rank to the
	// remote ranks it exchanges data with directly.
	localCommunicationMap map[int][]int
	// localBoxes (master only) holds every local rank's safety-expanded
	// region, used for the master-side cull of filter-first.
	localBoxes []mesh.BoundingBox

	// regionMeshes are the local meshes whose extent defines this rank's
	// region of interest. The coupling mesh itself starts empty on the
	// receiving side, so the region comes from the meshes a mapping reads
	// from or writes to.
	regionMeshes []*mesh.Mesh

	remoteComSize     int
	remoteGlobalCount int

	// received buffers the remote topology between Communicate and Compute.
	received *mesh.Mesh
}

func NewReceivedBoundingBox(m *mesh.Mesh, safetyFactor float64,
	filter GeometricFilter, transfer *m2n.GatherScatterCommunication) (*ReceivedBoundingBox, error) {
	if m == nil {
		panic("received bounding box partition requires a mesh")
	}
	if filter == UndefinedFilter {
		return nil, fmt.Errorf("mesh %q: geometric filter must be configured", m.Name)
	}
	if safetyFactor < 0 {
		return nil, fmt.Errorf("mesh %q: safety factor must not be negative", m.Name)
	}
	return &ReceivedBoundingBox{
		mesh:         m,
		m2n:          transfer,
		safetyFactor: safetyFactor,
		filter:       filter,
		bb:           mesh.NewBoundingBox(m.Dimensions),
	}, nil
}

func (p *ReceivedBoundingBox) State() State {
	return p.state
}

// LocalBoundingBox exposes this rank's safety-expanded region.
func (p *ReceivedBoundingBox) LocalBoundingBox() mesh.BoundingBox {
	return p.bb
}

// Feedback lists the remote ranks whose region overlaps this rank's, in
// ascending order. Populated by CommunicateBoundingBox.
func (p *ReceivedBoundingBox) Feedback() []int {
	return p.feedback
}

// FeedbackMap is only populated on the master after CommunicateBoundingBox.
func (p *ReceivedBoundingBox) FeedbackMap() map[int][]int {
	return p.feedbackMap
}

// LocalCommunicationMap is only populated on the master after
// CommunicateBoundingBox.
func (p *ReceivedBoundingBox) LocalCommunicationMap() map[int][]int {
	return p.localCommunicationMap
}

// AddRegionMesh registers a local mesh whose vertices contribute to this
// rank's region of interest. Without registered region meshes the coupling
// mesh itself defines the region.
func (p *ReceivedBoundingBox) AddRegionMesh(m *mesh.Mesh) {
	p.regionMeshes = append(p.regionMeshes, m)
}

// ComputeBoundingBox computes the local rank's bounding box and enlarges it
// by the safety factor times the longest box side, so vertices near the
// region boundary still match after small interface motion.
func (p *ReceivedBoundingBox) ComputeBoundingBox() {
	bb := mesh.NewBoundingBox(p.mesh.Dimensions)
	sources := p.regionMeshes
	if len(sources) == 0 {
		sources = []*mesh.Mesh{p.mesh}
	}
	nVertices := 0
	for _, m := range sources {
		for _, v := range m.Vertices {
			bb.ExpandBy(v)
		}
		nVertices += len(m.Vertices)
	}
	if nVertices > 0 && p.safetyFactor > 0 {
		bb.Enlarge(p.safetyFactor * bb.MaxSideLength())
	}
	p.bb = bb
}

// CompareBoundingBox reports approximate equality of two boxes, the signal
// that a cached distribution can be reused across re-runs.
func (p *ReceivedBoundingBox) CompareBoundingBox(a, b mesh.BoundingBox) bool {
	return a.EqualsApprox(b, boundingBoxTolerance)
}

// IsVertexInBB tests the vertex against this rank's region, inclusive at
// the boundaries.
func (p *ReceivedBoundingBox) IsVertexInBB(v *mesh.Vertex) bool {
	return p.bb.Contains(v.Coords)
}

// CommunicateBoundingBox exchanges the per-rank boxes of both participants
// and derives the bipartite rank connectivity from box overlap. The
// acceptor side of the m2n connection sends first. Collective over the
// local group.
func (p *ReceivedBoundingBox) CommunicateBoundingBox() error {
	if p.state != Uncomputed {
		return fmt.Errorf("mesh %q: bounding box exchange in state %s", p.mesh.Name, p.state)
	}
	if !p.m2n.IsConnected() {
		return fmt.Errorf("mesh %q: bounding box exchange before m2n connection", p.mesh.Name)
	}
	intra := p.m2n.Intra()

	// Local boxes and vertex counts travel to the master together.
	boxParts, err := intra.GatherDoublesV(p.bb.Flatten())
	if err != nil {
		return err
	}
	countParts, err := intra.GatherIntsV([]int{len(p.mesh.Vertices)})
	if err != nil {
		return err
	}

	var remoteHeader []int
	var remoteBoxes []float64
	if intra.IsMaster() {
		p.localBoxes = make([]mesh.BoundingBox, intra.Size())
		for rank, flat := range boxParts {
			p.localBoxes[rank] = mesh.UnflattenBoundingBox(flat)
		}
		header := []int{intra.Size(), p.mesh.Dimensions, p.globalVertexCount(countParts)}
		var boxes []float64
		for _, part := range boxParts {
			boxes = append(boxes, part...)
		}
		send := func() error {
			if err := p.m2n.MasterCom().SendInts(header, p.m2n.RemoteMaster()); err != nil {
				return err
			}
			return p.m2n.MasterCom().SendDoubles(boxes, p.m2n.RemoteMaster())
		}
		receive := func() (err error) {
			if remoteHeader, err = p.m2n.MasterCom().ReceiveInts(p.m2n.RemoteMaster()); err != nil {
				return err
			}
			remoteBoxes, err = p.m2n.MasterCom().ReceiveDoubles(p.m2n.RemoteMaster())
			return err
		}
		if p.m2n.IsAcceptor() {
			err = send()
			if err == nil {
				err = receive()
			}
		} else {
			err = receive()
			if err == nil {
				err = send()
			}
		}
		if err != nil {
			return err
		}
	}
	if remoteHeader, err = intra.BroadcastInts(remoteHeader); err != nil {
		return err
	}
	if remoteBoxes, err = intra.BroadcastDoubles(remoteBoxes); err != nil {
		return err
	}
	if len(remoteHeader) != 3 {
		return fmt.Errorf("mesh %q: malformed bounding box header", p.mesh.Name)
	}
	p.remoteComSize = remoteHeader[0]
	remoteDims := remoteHeader[1]
	p.remoteGlobalCount = remoteHeader[2]
	if p.remoteComSize < 1 {
		return fmt.Errorf("mesh %q: remote participant has no ranks", p.mesh.Name)
	}
	if remoteDims != p.mesh.Dimensions {
		return fmt.Errorf("mesh %q: remote interface is %d-D, local is %d-D",
			p.mesh.Name, remoteDims, p.mesh.Dimensions)
	}
	if len(remoteBoxes) != p.remoteComSize*2*remoteDims {
		return fmt.Errorf("mesh %q: malformed bounding box block", p.mesh.Name)
	}

	p.globalBB = make(map[int]mesh.BoundingBox, p.remoteComSize)
	stride := 2 * remoteDims
	for rank := 0; rank < p.remoteComSize; rank++ {
		p.globalBB[rank] = mesh.UnflattenBoundingBox(remoteBoxes[rank*stride : (rank+1)*stride])
	}

	// Overlap of this rank's region with each remote box, scanned in
	// ascending rank order so downstream tie-breaks are deterministic.
	p.feedback = nil
	for rank := 0; rank < p.remoteComSize; rank++ {
		if p.bb.Overlaps(p.globalBB[rank]) {
			p.feedback = append(p.feedback, rank)
		}
	}

	feedbackParts, err := intra.GatherIntsV(p.feedback)
	if err != nil {
		return err
	}
	if intra.IsMaster() {
		p.localCommunicationMap = make(map[int][]int, intra.Size())
		p.feedbackMap = make(map[int][]int)
		for localRank, remotes := range feedbackParts {
			p.localCommunicationMap[localRank] = remotes
			for _, remoteRank := range remotes {
				p.feedbackMap[remoteRank] = append(p.feedbackMap[remoteRank], localRank)
			}
		}
		log.Printf("partition %s: %d local ranks connected to %d remote ranks",
			p.mesh.Name, intra.Size(), p.remoteComSize)
	}

	p.state = BoundingBoxExchanged
	return nil
}

// globalVertexCount prefers an explicitly set global count and falls back
// to the sum of the per-rank counts. Master only.
func (p *ReceivedBoundingBox) globalVertexCount(countParts [][]int) int {
	if p.mesh.GlobalNumberOfVertices > 0 {
		return p.mesh.GlobalNumberOfVertices
	}
	total := 0
	for _, part := range countParts {
		for _, n := range part {
			total += n
		}
	}
	return total
}

// Communicate receives the remote participant's topology through the m2n
// layer. With FilterFirst the master culls each local rank's part before
// fanning out; with the other strategies every rank gets the full mesh.
func (p *ReceivedBoundingBox) Communicate() error {
	if p.state != BoundingBoxExchanged {
		return fmt.Errorf("mesh %q: mesh exchange in state %s", p.mesh.Name, p.state)
	}
	if p.filter == FilterFirst {
		return p.communicateFiltered()
	}
	received, err := mesh.NewMesh(p.mesh.Name+"-received", p.mesh.Dimensions, p.mesh.FlipNormals, p.mesh.ID)
	if err != nil {
		return err
	}
	if err := p.m2n.BroadcastReceiveMesh(received); err != nil {
		return err
	}
	p.received = received
	return nil
}

// communicateFiltered receives the full remote topology at the master only,
// culls it against every local rank's region and scatters each rank its
// part. The containment cost is paid once, at the master, and slaves never
// see vertices outside their region.
func (p *ReceivedBoundingBox) communicateFiltered() error {
	intra := p.m2n.Intra()

	var (
		intParts    [][]int
		doubleParts [][]float64
	)
	if intra.IsMaster() {
		full, err := mesh.NewMesh(p.mesh.Name+"-remote", p.mesh.Dimensions, p.mesh.FlipNormals, p.mesh.ID)
		if err != nil {
			return err
		}
		if err := p.m2n.ReceiveMeshAtMaster(full); err != nil {
			return err
		}
		intParts = make([][]int, intra.Size())
		doubleParts = make([][]float64, intra.Size())
		for rank := 0; rank < intra.Size(); rank++ {
			rankMesh, err := mesh.NewMesh(p.mesh.Name+"-part", p.mesh.Dimensions, p.mesh.FlipNormals, p.mesh.ID)
			if err != nil {
				return err
			}
			box := p.localBoxes[rank]
			copyMeshWhere(full, rankMesh, func(v *mesh.Vertex) bool {
				return box.Contains(v.Coords)
			})
			intParts[rank], doubleParts[rank] = com.EncodeMesh(rankMesh)
		}
	}
	ints, err := intra.ScatterIntsV(intParts)
	if err != nil {
		return err
	}
	doubles, err := intra.ScatterDoublesV(doubleParts)
	if err != nil {
		return err
	}

	received, err := mesh.NewMesh(p.mesh.Name+"-received", p.mesh.Dimensions, p.mesh.FlipNormals, p.mesh.ID)
	if err != nil {
		return err
	}
	if err := com.DecodeMesh(received, ints, doubles); err != nil {
		return err
	}
	p.received = received
	return nil
}

// Compute filters the received mesh, merges the surviving part into the
// local mesh and resolves ownership. Collective over the local group.
func (p *ReceivedBoundingBox) Compute() error {
	if p.state != BoundingBoxExchanged {
		return fmt.Errorf("mesh %q: compute in state %s", p.mesh.Name, p.state)
	}
	if p.received == nil {
		return fmt.Errorf("mesh %q: compute before the remote mesh was received", p.mesh.Name)
	}

	// FilterFirst was already culled at the master during Communicate;
	// only BroadcastFilter still needs the local containment pass.
	filterByBB := p.filter == BroadcastFilter
	filtered, err := mesh.NewMesh(p.mesh.Name+"-filtered", p.mesh.Dimensions, p.mesh.FlipNormals, p.mesh.ID)
	if err != nil {
		return err
	}
	p.FilterMesh(filtered, filterByBB)
	if err := p.mesh.AddMesh(filtered); err != nil {
		return err
	}
	p.mesh.AllocateDataValues()
	p.state = Filtered

	if err := p.createOwnerInformation(); err != nil {
		return err
	}
	p.state = OwnershipAssigned
	return nil
}

// FilterMesh copies the received topology into filteredMesh, restricted to
// vertices inside this rank's region when filterByBB is set. Edges and
// faces survive only if all their vertices do. Copied vertices are tagged
// as filter survivors.
func (p *ReceivedBoundingBox) FilterMesh(filteredMesh *mesh.Mesh, filterByBB bool) {
	if p.received == nil {
		return
	}
	keep := func(*mesh.Vertex) bool { return true }
	if filterByBB {
		keep = p.IsVertexInBB
	}
	copyMeshWhere(p.received, filteredMesh, keep)
}

// copyMeshWhere copies src into dst restricted to the vertices keep accepts,
// dropping every edge and face that loses a vertex. Copied vertices are
// tagged as filter survivors.
func copyMeshWhere(src, dst *mesh.Mesh, keep func(*mesh.Vertex) bool) {
	vertexMap := make(map[int]*mesh.Vertex, len(src.Vertices))
	for _, vertex := range src.Vertices {
		if !keep(vertex) {
			continue
		}
		v := dst.CreateVertex(vertex.Coords)
		v.SetGlobalIndex(vertex.GlobalIndex)
		v.SetOwner(vertex.Owner)
		v.Tag()
		vertexMap[vertex.ID] = v
	}

	edgeMap := make(map[int]*mesh.Edge, len(src.Edges))
	for _, edge := range src.Edges {
		v1, ok1 := vertexMap[edge.V[0].ID]
		v2, ok2 := vertexMap[edge.V[1].ID]
		if !ok1 || !ok2 {
			continue
		}
		edgeMap[edge.ID] = dst.CreateEdge(v1, v2)
	}

	if dst.Dimensions == 3 {
		for _, triangle := range src.Triangles {
			e1, ok1 := edgeMap[triangle.Edges[0].ID]
			e2, ok2 := edgeMap[triangle.Edges[1].ID]
			e3, ok3 := edgeMap[triangle.Edges[2].ID]
			if ok1 && ok2 && ok3 {
				// The edges survived intact, the cycle check cannot fail.
				if _, err := dst.CreateTriangle(e1, e2, e3); err != nil {
					panic(err)
				}
			}
		}
		for _, quad := range src.Quads {
			e1, ok1 := edgeMap[quad.Edges[0].ID]
			e2, ok2 := edgeMap[quad.Edges[1].ID]
			e3, ok3 := edgeMap[quad.Edges[2].ID]
			e4, ok4 := edgeMap[quad.Edges[3].ID]
			if ok1 && ok2 && ok3 && ok4 {
				if _, err := dst.CreateQuad(e1, e2, e3, e4); err != nil {
					panic(err)
				}
			}
		}
	}
}

// createOwnerInformation resolves exactly one owning local rank per remote
// vertex. When several ranks hold a vertex from an overlap region, the
// lowest rank index wins, so every vertex is counted exactly once in any
// global reduction. Also installs the vertex distribution on the master's
// mesh.
func (p *ReceivedBoundingBox) createOwnerInformation() error {
	intra := p.m2n.Intra()

	held := make([]int, 0, len(p.mesh.Vertices))
	for _, v := range p.mesh.Vertices {
		held = append(held, v.GlobalIndex)
	}
	heldParts, err := intra.GatherIntsV(held)
	if err != nil {
		return err
	}

	var ownerParts [][]int
	if intra.IsMaster() {
		nGlobal := p.remoteGlobalCount
		owner := make([]int, nGlobal)
		for i := range owner {
			owner[i] = -1
		}
		// Ascending rank order: the lowest holding rank becomes the owner.
		for rank := 0; rank < intra.Size(); rank++ {
			for _, globalIndex := range heldParts[rank] {
				if globalIndex < 0 || globalIndex >= nGlobal {
					return fmt.Errorf("mesh %q: global vertex index %d out of range [0,%d)",
						p.mesh.Name, globalIndex, nGlobal)
				}
				if owner[globalIndex] == -1 {
					owner[globalIndex] = rank
				}
			}
		}
		for globalIndex, owningRank := range owner {
			if owningRank == -1 {
				return fmt.Errorf("mesh %q: vertex with global index %d is not covered by any rank's region, the coupling domains do not overlap",
					p.mesh.Name, globalIndex)
			}
		}

		ownerParts = make([][]int, intra.Size())
		distribution := make(map[int][]int, intra.Size())
		offsets := make([]int, intra.Size())
		total := 0
		for rank := 0; rank < intra.Size(); rank++ {
			flags := make([]int, len(heldParts[rank]))
			for i, globalIndex := range heldParts[rank] {
				if owner[globalIndex] == rank {
					flags[i] = 1
				}
			}
			ownerParts[rank] = flags
			distribution[rank] = heldParts[rank]
			total += len(heldParts[rank])
			offsets[rank] = total
		}
		p.mesh.VertexDistribution = distribution
		p.mesh.VertexOffsets = offsets
		p.mesh.GlobalNumberOfVertices = nGlobal
	}

	ownerVec, err := intra.ScatterIntsV(ownerParts)
	if err != nil {
		return err
	}
	return p.setOwnerInformation(ownerVec)
}

// setOwnerInformation applies the master's per-vertex owner decision to the
// local mesh.
func (p *ReceivedBoundingBox) setOwnerInformation(ownerVec []int) error {
	if len(ownerVec) != len(p.mesh.Vertices) {
		return fmt.Errorf("mesh %q: owner vector holds %d entries for %d vertices",
			p.mesh.Name, len(ownerVec), len(p.mesh.Vertices))
	}
	for i, v := range p.mesh.Vertices {
		v.SetOwner(ownerVec[i] == 1)
	}
	return nil
}
