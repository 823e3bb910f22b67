package m2n

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coupledsim/gocpl/com"
	"github.com/coupledsim/gocpl/mesh"
)

// coupledPair wires two participants, each with its own rank group, through
// one master-master channel. Index 0 is participant A (acceptor side in the
// tests), index 1 is participant B.
type coupledPair struct {
	layers [2][]*GatherScatterCommunication
	meshes [2][]*mesh.Mesh
}

func newCoupledPair(t *testing.T, sizeA, sizeB int) *coupledPair {
	t.Helper()
	masters := com.NewChannelGroup(2)
	groups := [2][]*com.ChannelComm{com.NewChannelGroup(sizeA), com.NewChannelGroup(sizeB)}
	sizes := [2]int{sizeA, sizeB}

	p := &coupledPair{}
	for side := 0; side < 2; side++ {
		for rank := 0; rank < sizes[side]; rank++ {
			m, err := mesh.NewMesh(fmt.Sprintf("interface-%d-%d", side, rank), 2, false, rank)
			require.NoError(t, err)
			intra := com.NewIntraComm(groups[side][rank], rank, sizes[side])
			var masterCom com.Communication
			if rank == com.MasterRank {
				masterCom = masters[side]
			}
			p.meshes[side] = append(p.meshes[side], m)
			p.layers[side] = append(p.layers[side],
				NewGatherScatterCommunication(masterCom, 1-side, intra, m))
		}
	}
	return p
}

// runSides executes one function per rank of both participants concurrently
// and fails the test on the first error.
func (p *coupledPair) runSides(t *testing.T, fnA, fnB func(rank int, g *GatherScatterCommunication) error) {
	t.Helper()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	run := func(fn func(int, *GatherScatterCommunication) error, side int) {
		for rank, g := range p.layers[side] {
			wg.Add(1)
			go func(rank int, g *GatherScatterCommunication) {
				defer wg.Done()
				if err := fn(rank, g); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}(rank, g)
		}
	}
	run(fnA, 0)
	run(fnB, 1)
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
}

func (p *coupledPair) connect(t *testing.T) {
	p.runSides(t,
		func(rank int, g *GatherScatterCommunication) error {
			return g.AcceptConnection("A", "B")
		},
		func(rank int, g *GatherScatterCommunication) error {
			return g.RequestConnection("A", "B")
		})
	for side := 0; side < 2; side++ {
		for _, g := range p.layers[side] {
			require.True(t, g.IsConnected())
		}
	}
}

// setDistribution installs the same vertex distribution on both masters.
func (p *coupledPair) setDistribution(dist map[int][]int, globalN int) {
	for side := 0; side < 2; side++ {
		m := p.meshes[side][com.MasterRank]
		m.VertexDistribution = dist
		m.GlobalNumberOfVertices = globalN
	}
}

// exchangeLCM pushes an empty communication map both ways so that transfers
// are unlocked.
func (p *coupledPair) exchangeLCM(t *testing.T) {
	p.runSides(t,
		func(rank int, g *GatherScatterCommunication) error {
			if err := g.BroadcastSendLCM(map[int][]int{rank: {rank}}); err != nil {
				return err
			}
			_, err := g.BroadcastReceiveLCM()
			return err
		},
		func(rank int, g *GatherScatterCommunication) error {
			lcm, err := g.BroadcastReceiveLCM()
			if err != nil {
				return err
			}
			if len(lcm) != len(p.layers[0]) {
				return fmt.Errorf("expected %d map entries, got %d", len(p.layers[0]), len(lcm))
			}
			return g.BroadcastSendLCM(map[int][]int{rank: {rank}})
		})
}

func TestConnectionHandshake(t *testing.T) {
	p := newCoupledPair(t, 2, 2)
	p.connect(t)
}

func TestConnectionNameMismatch(t *testing.T) {
	p := newCoupledPair(t, 1, 1)
	var acceptErr, requestErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		acceptErr = p.layers[0][0].AcceptConnection("A", "B")
	}()
	go func() {
		defer wg.Done()
		requestErr = p.layers[1][0].RequestConnection("A", "Imposter")
	}()
	wg.Wait()
	assert.Error(t, acceptErr)
	assert.Error(t, requestErr)
	assert.False(t, p.layers[0][0].IsConnected())
	assert.False(t, p.layers[1][0].IsConnected())
}

func TestDuplicateConnectFails(t *testing.T) {
	p := newCoupledPair(t, 1, 1)
	p.connect(t)
	assert.Error(t, p.layers[0][0].AcceptConnection("A", "B"))
	assert.Error(t, p.layers[1][0].RequestConnection("A", "B"))
}

func TestSendBeforeLCMIsProtocolError(t *testing.T) {
	p := newCoupledPair(t, 1, 1)
	p.connect(t)
	err := p.layers[0][0].Send([]float64{1}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "communication map")
}

func TestSendBeforeConnectIsProtocolError(t *testing.T) {
	p := newCoupledPair(t, 1, 1)
	assert.Error(t, p.layers[0][0].Send([]float64{1}, 1))
	assert.Error(t, p.layers[0][0].BroadcastSend(1))
	assert.Error(t, p.layers[0][0].BroadcastSendMesh(p.meshes[0][0]))
	assert.Error(t, p.layers[0][0].BroadcastSendLCM(nil))
}

func TestGatherScatterRoundTrip(t *testing.T) {
	const size = 3
	p := newCoupledPair(t, size, size)
	p.connect(t)

	// Distinct length per rank: rank 0 holds one vertex, rank 1 two, rank 2
	// three. Same distribution on both sides.
	dist := map[int][]int{0: {0}, 1: {1, 2}, 2: {3, 4, 5}}
	p.setDistribution(dist, 6)
	p.exchangeLCM(t)

	sent := make([][]float64, size)
	for rank := 0; rank < size; rank++ {
		for v := range dist[rank] {
			sent[rank] = append(sent[rank], float64(100*rank+v), float64(100*rank+v)+0.5)
		}
	}

	received := make([][]float64, size)
	p.runSides(t,
		func(rank int, g *GatherScatterCommunication) error {
			return g.Send(sent[rank], 2)
		},
		func(rank int, g *GatherScatterCommunication) error {
			buf := make([]float64, len(sent[rank]))
			if err := g.Receive(buf, 2); err != nil {
				return err
			}
			received[rank] = buf
			return nil
		})

	// Slice sent by local rank i arrives exactly at remote rank i.
	for rank := 0; rank < size; rank++ {
		assert.Equal(t, sent[rank], received[rank], "rank %d", rank)
	}
}

func TestSendWithoutDistributionFails(t *testing.T) {
	p := newCoupledPair(t, 1, 1)
	p.connect(t)
	p.exchangeLCM(t)

	err := p.layers[0][0].Send([]float64{1}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distribution")
}

func TestBroadcastScalar(t *testing.T) {
	p := newCoupledPair(t, 1, 3)
	p.connect(t)

	got := make([]float64, 3)
	p.runSides(t,
		func(rank int, g *GatherScatterCommunication) error {
			return g.BroadcastSend(7.75)
		},
		func(rank int, g *GatherScatterCommunication) error {
			v, err := g.BroadcastReceive()
			got[rank] = v
			return err
		})
	for rank := 0; rank < 3; rank++ {
		assert.Equal(t, 7.75, got[rank])
	}
}

func TestBroadcastMesh(t *testing.T) {
	p := newCoupledPair(t, 2, 2)
	p.connect(t)

	// Each A rank holds a one-edge strip; B should end up with both.
	for rank, m := range p.meshes[0] {
		x := float64(10 * rank)
		v0 := m.CreateVertex([]float64{x, 0})
		v1 := m.CreateVertex([]float64{x + 1, 0})
		v0.SetGlobalIndex(2 * rank)
		v1.SetGlobalIndex(2*rank + 1)
		m.CreateEdge(v0, v1)
	}

	p.runSides(t,
		func(rank int, g *GatherScatterCommunication) error {
			return g.BroadcastSendMesh(p.meshes[0][rank])
		},
		func(rank int, g *GatherScatterCommunication) error {
			return g.BroadcastReceiveMesh(p.meshes[1][rank])
		})

	for rank, m := range p.meshes[1] {
		assert.Len(t, m.Vertices, 4, "rank %d", rank)
		assert.Len(t, m.Edges, 2, "rank %d", rank)
		indices := map[int]bool{}
		for _, v := range m.Vertices {
			indices[v.GlobalIndex] = true
		}
		assert.Len(t, indices, 4)
	}
}

func TestReceiveMeshAtMaster(t *testing.T) {
	p := newCoupledPair(t, 1, 2)
	p.connect(t)

	src := p.meshes[0][0]
	v0 := src.CreateVertex([]float64{0, 0})
	v1 := src.CreateVertex([]float64{1, 0})
	v0.SetGlobalIndex(0)
	v1.SetGlobalIndex(1)
	src.CreateEdge(v0, v1)

	got, err := mesh.NewMesh("at-master", 2, false, 0)
	require.NoError(t, err)
	p.runSides(t,
		func(rank int, g *GatherScatterCommunication) error {
			return g.BroadcastSendMesh(p.meshes[0][rank])
		},
		func(rank int, g *GatherScatterCommunication) error {
			if rank != com.MasterRank {
				if err := g.ReceiveMeshAtMaster(p.meshes[1][rank]); err == nil {
					return fmt.Errorf("expected an error on a non-master rank")
				}
				return nil
			}
			return g.ReceiveMeshAtMaster(got)
		})

	// Only the master holds the remote topology, nothing was fanned out.
	assert.Len(t, got.Vertices, 2)
	assert.Len(t, got.Edges, 1)
	assert.Empty(t, p.meshes[1][1].Vertices)
}

func TestLCMExchange(t *testing.T) {
	p := newCoupledPair(t, 2, 1)
	p.connect(t)

	got := make([]map[int][]int, 1)
	p.runSides(t,
		func(rank int, g *GatherScatterCommunication) error {
			return g.BroadcastSendLCM(map[int][]int{rank: {0}})
		},
		func(rank int, g *GatherScatterCommunication) error {
			lcm, err := g.BroadcastReceiveLCM()
			got[rank] = lcm
			return err
		})

	assert.Equal(t, map[int][]int{0: {0}, 1: {0}}, got[0])
}

func TestCloseConnectionInvalidatesLCM(t *testing.T) {
	p := newCoupledPair(t, 1, 1)
	p.connect(t)
	p.setDistribution(map[int][]int{0: {0}}, 1)
	p.exchangeLCM(t)

	require.NoError(t, p.layers[0][0].CloseConnection())
	assert.False(t, p.layers[0][0].IsConnected())
	assert.Error(t, p.layers[0][0].Send([]float64{1}, 1))
	assert.Error(t, p.layers[0][0].CloseConnection())
}
