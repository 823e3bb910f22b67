package m2n

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/coupledsim/gocpl/com"
	"github.com/coupledsim/gocpl/mesh"
)

// GatherScatterCommunication implements DistributedCommunication by
// gathering and scattering everything at the masters. Only the two masters
// hold a direct channel; slaves never talk to the remote side directly.
//
// The connection life cycle is an explicit state machine: Disconnected ->
// Connected (accept/request) -> Disconnected (close). The local
// communication map adds a second gate: Send and Receive refuse to run
// until the map has crossed the wire, so a misordered setup fails instead
// of transferring against stale routing.
type GatherScatterCommunication struct {
	masterCom    com.Communication
	remoteMaster int
	intra        *com.IntraComm
	mesh         *mesh.Mesh

	isAcceptor     bool
	connected      bool
	lcmEstablished bool
}

var _ DistributedCommunication = (*GatherScatterCommunication)(nil)

// NewGatherScatterCommunication builds the transfer layer for one coupling
// mesh. masterCom is the master-to-master channel and is only touched by
// the master rank; remoteMaster is the remote master's rank on that
// channel. m supplies the vertex distribution the scatter phase routes by.
func NewGatherScatterCommunication(masterCom com.Communication, remoteMaster int,
	intra *com.IntraComm, m *mesh.Mesh) *GatherScatterCommunication {
	if m == nil {
		panic("gather/scatter communication requires a mesh")
	}
	return &GatherScatterCommunication{
		masterCom:    masterCom,
		remoteMaster: remoteMaster,
		intra:        intra,
		mesh:         m,
	}
}

func (g *GatherScatterCommunication) IsConnected() bool {
	return g.connected
}

func (g *GatherScatterCommunication) Intra() *com.IntraComm {
	return g.intra
}

func (g *GatherScatterCommunication) MasterCom() com.Communication {
	return g.masterCom
}

func (g *GatherScatterCommunication) RemoteMaster() int {
	return g.remoteMaster
}

func (g *GatherScatterCommunication) IsAcceptor() bool {
	return g.isAcceptor
}

// connectionToken condenses the participant name pair into a handshake
// value both sides can derive independently.
func connectionToken(acceptorName, requesterName string) int {
	h := fnv.New32a()
	h.Write([]byte(acceptorName))
	h.Write([]byte{0})
	h.Write([]byte(requesterName))
	return int(h.Sum32())
}

// AcceptConnection validates the requester's handshake token against the
// local name pair and acknowledges it. Collective over the local group.
func (g *GatherScatterCommunication) AcceptConnection(acceptorName, requesterName string) error {
	if g.connected {
		return fmt.Errorf("connection %q<-%q already established", acceptorName, requesterName)
	}
	ok := 1
	if g.intra.IsMaster() {
		token, err := g.masterCom.ReceiveInt(g.remoteMaster)
		if err != nil {
			return err
		}
		if token != connectionToken(acceptorName, requesterName) {
			ok = 0
		}
		if err := g.masterCom.SendInt(ok, g.remoteMaster); err != nil {
			return err
		}
	}
	ok, err := g.intra.BroadcastInt(ok)
	if err != nil {
		return err
	}
	if ok == 0 {
		return fmt.Errorf("connection handshake %q<-%q does not match the requesting side",
			acceptorName, requesterName)
	}
	g.connected = true
	g.isAcceptor = true
	return nil
}

// RequestConnection sends the handshake token and waits for the acceptor's
// acknowledgement. Collective over the local group.
func (g *GatherScatterCommunication) RequestConnection(acceptorName, requesterName string) error {
	if g.connected {
		return fmt.Errorf("connection %q->%q already established", requesterName, acceptorName)
	}
	ok := 1
	if g.intra.IsMaster() {
		if err := g.masterCom.SendInt(connectionToken(acceptorName, requesterName), g.remoteMaster); err != nil {
			return err
		}
		ack, err := g.masterCom.ReceiveInt(g.remoteMaster)
		if err != nil {
			return err
		}
		ok = ack
	}
	ok, err := g.intra.BroadcastInt(ok)
	if err != nil {
		return err
	}
	if ok == 0 {
		return fmt.Errorf("connection %q->%q rejected by acceptor", requesterName, acceptorName)
	}
	g.connected = true
	g.isAcceptor = false
	return nil
}

// CloseConnection drops to Disconnected and invalidates the local
// communication map. A new connection must re-establish it.
func (g *GatherScatterCommunication) CloseConnection() error {
	if !g.connected {
		return fmt.Errorf("close on unconnected channel")
	}
	g.connected = false
	g.lcmEstablished = false
	return nil
}

func (g *GatherScatterCommunication) checkTransferReady(op string) error {
	if !g.connected {
		return fmt.Errorf("%s before connection is established", op)
	}
	if !g.lcmEstablished {
		return fmt.Errorf("%s before the local communication map is established", op)
	}
	return nil
}

// Send gathers every rank's slice at the master, assembles one block in
// global vertex order and ships it to the remote master. items holds this
// rank's slice, laid out vertex major with valueDimension values per
// vertex.
func (g *GatherScatterCommunication) Send(items []float64, valueDimension int) error {
	if err := g.checkTransferReady("send"); err != nil {
		return err
	}
	parts, err := g.intra.GatherDoublesV(items)
	if err != nil {
		return err
	}
	if !g.intra.IsMaster() {
		return nil
	}

	global, err := g.assembleGlobal(parts, valueDimension)
	if err != nil {
		return err
	}
	return g.masterCom.SendDoubles(global, g.remoteMaster)
}

// Receive accepts one block from the remote master and scatters it by the
// vertex distribution. items is filled in place and must already have the
// local length.
func (g *GatherScatterCommunication) Receive(items []float64, valueDimension int) error {
	if err := g.checkTransferReady("receive"); err != nil {
		return err
	}

	var parts [][]float64
	if g.intra.IsMaster() {
		global, err := g.masterCom.ReceiveDoubles(g.remoteMaster)
		if err != nil {
			return err
		}
		if parts, err = g.splitGlobal(global, valueDimension); err != nil {
			return err
		}
	}
	local, err := g.intra.ScatterDoublesV(parts)
	if err != nil {
		return err
	}
	if len(local) != len(items) {
		return fmt.Errorf("receive buffer holds %d values, distribution yields %d",
			len(items), len(local))
	}
	copy(items, local)
	return nil
}

// assembleGlobal merges the per-rank slices into one block indexed by
// global vertex index. Runs on the master only.
func (g *GatherScatterCommunication) assembleGlobal(parts [][]float64, valueDimension int) ([]float64, error) {
	dist := g.mesh.VertexDistribution
	if len(dist) == 0 || g.mesh.GlobalNumberOfVertices == 0 {
		return nil, fmt.Errorf("mesh %q has no vertex distribution, partitioning must run first",
			g.mesh.Name)
	}
	global := make([]float64, g.mesh.GlobalNumberOfVertices*valueDimension)
	for rank, indices := range dist {
		if rank >= len(parts) || len(parts[rank]) != len(indices)*valueDimension {
			return nil, fmt.Errorf("rank %d sent %d values, distribution expects %d",
				rank, len(parts[rank]), len(indices)*valueDimension)
		}
		for local, globalIndex := range indices {
			copy(global[globalIndex*valueDimension:(globalIndex+1)*valueDimension],
				parts[rank][local*valueDimension:(local+1)*valueDimension])
		}
	}
	return global, nil
}

// splitGlobal cuts a received global block into per-rank slices following
// the vertex distribution. Runs on the master only.
func (g *GatherScatterCommunication) splitGlobal(global []float64, valueDimension int) ([][]float64, error) {
	dist := g.mesh.VertexDistribution
	if len(dist) == 0 || g.mesh.GlobalNumberOfVertices == 0 {
		return nil, fmt.Errorf("mesh %q has no vertex distribution, partitioning must run first",
			g.mesh.Name)
	}
	if len(global) != g.mesh.GlobalNumberOfVertices*valueDimension {
		return nil, fmt.Errorf("received %d values, global mesh expects %d",
			len(global), g.mesh.GlobalNumberOfVertices*valueDimension)
	}
	parts := make([][]float64, g.intra.Size())
	for rank := 0; rank < g.intra.Size(); rank++ {
		indices := dist[rank]
		part := make([]float64, len(indices)*valueDimension)
		for local, globalIndex := range indices {
			copy(part[local*valueDimension:(local+1)*valueDimension],
				global[globalIndex*valueDimension:(globalIndex+1)*valueDimension])
		}
		parts[rank] = part
	}
	return parts, nil
}

// BroadcastSend ships one scalar to the remote participant, where it fans
// out to every rank.
func (g *GatherScatterCommunication) BroadcastSend(value float64) error {
	if !g.connected {
		return fmt.Errorf("broadcast send before connection is established")
	}
	if !g.intra.IsMaster() {
		return nil
	}
	return g.masterCom.SendDouble(value, g.remoteMaster)
}

// BroadcastReceive accepts one scalar from the remote participant on every
// rank.
func (g *GatherScatterCommunication) BroadcastReceive() (float64, error) {
	if !g.connected {
		return 0, fmt.Errorf("broadcast receive before connection is established")
	}
	var value float64
	if g.intra.IsMaster() {
		var err error
		if value, err = g.masterCom.ReceiveDouble(g.remoteMaster); err != nil {
			return 0, err
		}
	}
	return g.intra.BroadcastDouble(value)
}

// BroadcastSendMesh gathers every local rank's mesh partition at the master
// and ships all of them, framed per rank, to the remote participant.
func (g *GatherScatterCommunication) BroadcastSendMesh(m *mesh.Mesh) error {
	if !g.connected {
		return fmt.Errorf("mesh send before connection is established")
	}
	ints, doubles := com.EncodeMesh(m)
	intParts, err := g.intra.GatherIntsV(ints)
	if err != nil {
		return err
	}
	doubleParts, err := g.intra.GatherDoublesV(doubles)
	if err != nil {
		return err
	}
	if !g.intra.IsMaster() {
		return nil
	}

	framed := []int{g.intra.Size()}
	var allDoubles []float64
	for rank := 0; rank < g.intra.Size(); rank++ {
		framed = append(framed, len(intParts[rank]), len(doubleParts[rank]))
		framed = append(framed, intParts[rank]...)
		allDoubles = append(allDoubles, doubleParts[rank]...)
	}
	if err := g.masterCom.SendInts(framed, g.remoteMaster); err != nil {
		return err
	}
	return g.masterCom.SendDoubles(allDoubles, g.remoteMaster)
}

// BroadcastReceiveMesh fans the remote participant's framed mesh partitions
// out to every local rank and reconstructs them all into m, which ends up
// holding the full remote topology with locally assigned IDs.
func (g *GatherScatterCommunication) BroadcastReceiveMesh(m *mesh.Mesh) error {
	if !g.connected {
		return fmt.Errorf("mesh receive before connection is established")
	}
	var (
		framed     []int
		allDoubles []float64
		err        error
	)
	if g.intra.IsMaster() {
		if framed, err = g.masterCom.ReceiveInts(g.remoteMaster); err != nil {
			return err
		}
		if allDoubles, err = g.masterCom.ReceiveDoubles(g.remoteMaster); err != nil {
			return err
		}
	}
	if framed, err = g.intra.BroadcastInts(framed); err != nil {
		return err
	}
	if allDoubles, err = g.intra.BroadcastDoubles(allDoubles); err != nil {
		return err
	}
	return decodeMeshFrame(m, framed, allDoubles)
}

// ReceiveMeshAtMaster accepts the remote participant's framed mesh
// partitions on the master only, without fanning them out. The master ends
// up holding the full remote topology; callers that cull per rank before
// distributing locally use this instead of BroadcastReceiveMesh.
func (g *GatherScatterCommunication) ReceiveMeshAtMaster(m *mesh.Mesh) error {
	if !g.connected {
		return fmt.Errorf("mesh receive before connection is established")
	}
	if !g.intra.IsMaster() {
		return fmt.Errorf("mesh receive at master called on rank %d", g.intra.Rank())
	}
	framed, err := g.masterCom.ReceiveInts(g.remoteMaster)
	if err != nil {
		return err
	}
	allDoubles, err := g.masterCom.ReceiveDoubles(g.remoteMaster)
	if err != nil {
		return err
	}
	return decodeMeshFrame(m, framed, allDoubles)
}

// decodeMeshFrame reconstructs every remote rank's block of a framed mesh
// transfer into m.
func decodeMeshFrame(m *mesh.Mesh, framed []int, allDoubles []float64) error {
	if len(framed) < 1 {
		return fmt.Errorf("malformed mesh frame")
	}
	nRanks := framed[0]
	pos, dblPos := 1, 0
	for rank := 0; rank < nRanks; rank++ {
		if pos+2 > len(framed) {
			return fmt.Errorf("malformed mesh frame for remote rank %d", rank)
		}
		nInts, nDoubles := framed[pos], framed[pos+1]
		pos += 2
		if pos+nInts > len(framed) || dblPos+nDoubles > len(allDoubles) {
			return fmt.Errorf("malformed mesh frame for remote rank %d", rank)
		}
		if err := com.DecodeMesh(m, framed[pos:pos+nInts], allDoubles[dblPos:dblPos+nDoubles]); err != nil {
			return err
		}
		pos += nInts
		dblPos += nDoubles
	}
	return nil
}

// BroadcastSendLCM merges every local rank's communication map entries at
// the master and ships the combined table to the remote participant.
func (g *GatherScatterCommunication) BroadcastSendLCM(lcm map[int][]int) error {
	if !g.connected {
		return fmt.Errorf("communication map send before connection is established")
	}
	parts, err := g.intra.GatherIntsV(flattenLCM(lcm))
	if err != nil {
		return err
	}
	if !g.intra.IsMaster() {
		g.lcmEstablished = true
		return nil
	}

	merged := make(map[int][]int)
	for _, flat := range parts {
		part, err := parseLCM(flat)
		if err != nil {
			return err
		}
		for rank, remotes := range part {
			merged[rank] = append(merged[rank], remotes...)
		}
	}
	if err := g.masterCom.SendInts(flattenLCM(merged), g.remoteMaster); err != nil {
		return err
	}
	g.lcmEstablished = true
	return nil
}

// BroadcastReceiveLCM accepts the remote participant's communication map on
// every rank and marks the channel ready for Send/Receive.
func (g *GatherScatterCommunication) BroadcastReceiveLCM() (map[int][]int, error) {
	if !g.connected {
		return nil, fmt.Errorf("communication map receive before connection is established")
	}
	var (
		flat []int
		err  error
	)
	if g.intra.IsMaster() {
		if flat, err = g.masterCom.ReceiveInts(g.remoteMaster); err != nil {
			return nil, err
		}
	}
	if flat, err = g.intra.BroadcastInts(flat); err != nil {
		return nil, err
	}
	lcm, err := parseLCM(flat)
	if err != nil {
		return nil, err
	}
	g.lcmEstablished = true
	return lcm, nil
}

// flattenLCM packs a communication map as nEntries then per entry rank,
// count and the remote ranks. Entries are emitted in ascending rank order
// so the wire form is deterministic.
func flattenLCM(lcm map[int][]int) (flat []int) {
	ranks := make([]int, 0, len(lcm))
	for rank := range lcm {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)

	flat = append(flat, len(ranks))
	for _, rank := range ranks {
		flat = append(flat, rank, len(lcm[rank]))
		flat = append(flat, lcm[rank]...)
	}
	return
}

func parseLCM(flat []int) (map[int][]int, error) {
	if len(flat) == 0 {
		return map[int][]int{}, nil
	}
	lcm := make(map[int][]int, flat[0])
	pos := 1
	for entry := 0; entry < flat[0]; entry++ {
		if pos+2 > len(flat) {
			return nil, fmt.Errorf("malformed communication map")
		}
		rank, count := flat[pos], flat[pos+1]
		pos += 2
		if pos+count > len(flat) {
			return nil, fmt.Errorf("malformed communication map")
		}
		lcm[rank] = append(lcm[rank], flat[pos:pos+count]...)
		pos += count
	}
	return lcm, nil
}
