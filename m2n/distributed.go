// Package m2n implements the inter-participant transfer protocol: moving
// meshes, field arrays and connectivity maps between the rank groups of two
// coupled participants.
package m2n

import "github.com/coupledsim/gocpl/mesh"

// DistributedCommunication is the transfer channel between two participants
// that are each parallel across an arbitrary number of ranks. All calls are
// collective over the local rank group and block until the local gather or
// scatter step has completed.
type DistributedCommunication interface {
	IsConnected() bool

	// AcceptConnection accepts a connection from the participant that calls
	// RequestConnection. Exactly one side accepts and the other requests for
	// a given pair of participant names.
	AcceptConnection(acceptorName, requesterName string) error
	RequestConnection(acceptorName, requesterName string) error
	CloseConnection() error

	// Send transfers an array that differs per rank: each rank's slice is
	// gathered at the local master, concatenated in global vertex order and
	// sent as one block. Receive scatters such a block back so that the
	// slice sent by local rank i arrives at remote rank i.
	Send(items []float64, valueDimension int) error
	Receive(items []float64, valueDimension int) error

	// BroadcastSend fans one scalar out identically to every connected
	// remote rank. Used for global flags, not per-rank payloads.
	BroadcastSend(value float64) error
	BroadcastReceive() (float64, error)

	// BroadcastSendMesh moves the full local mesh topology of every local
	// rank to the remote participant; BroadcastReceiveMesh reconstructs it
	// with locally assigned IDs.
	BroadcastSendMesh(m *mesh.Mesh) error
	BroadcastReceiveMesh(m *mesh.Mesh) error

	// BroadcastSendLCM exchanges the local communication map, the compiled
	// routing table of which remote ranks each local rank talks to. It must
	// be established before any Send or Receive and is invalidated by
	// CloseConnection.
	BroadcastSendLCM(lcm map[int][]int) error
	BroadcastReceiveLCM() (map[int][]int, error)
}
