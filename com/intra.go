package com

import "fmt"

// MasterRank is the rank that mediates all inter-participant traffic for
// its participant.
const MasterRank = 0

// IntraComm provides the collectives inside one participant's rank group
// that the gather/scatter protocol is built on. All operations are
// collective: every rank of the group must enter the call. Variable length
// gathers and scatters preserve rank order.
type IntraComm struct {
	rank int
	size int
	comm Communication
}

// NewIntraComm wraps a Communication for a group of size ranks. comm may be
// nil for a serial participant (size 1), where every collective degenerates
// to the identity.
func NewIntraComm(comm Communication, rank, size int) *IntraComm {
	if rank < 0 || rank >= size {
		panic(fmt.Sprintf("rank %d out of range for group of %d", rank, size))
	}
	if size > 1 && comm == nil {
		panic("parallel intra communication requires a Communication")
	}
	return &IntraComm{rank: rank, size: size, comm: comm}
}

func (ic *IntraComm) Rank() int      { return ic.rank }
func (ic *IntraComm) Size() int      { return ic.size }
func (ic *IntraComm) IsMaster() bool { return ic.rank == MasterRank }

// GatherDoublesV collects every rank's slice at the master. The master
// returns the slices indexed by rank, including its own; other ranks return
// nil.
func (ic *IntraComm) GatherDoublesV(local []float64) (parts [][]float64, err error) {
	if !ic.IsMaster() {
		return nil, ic.comm.SendDoubles(local, MasterRank)
	}
	parts = make([][]float64, ic.size)
	parts[MasterRank] = local
	for rank := 1; rank < ic.size; rank++ {
		if parts[rank], err = ic.comm.ReceiveDoubles(rank); err != nil {
			return nil, err
		}
	}
	return
}

// ScatterDoublesV hands each rank its slice of parts. Only the master reads
// parts; every rank returns its own slice.
func (ic *IntraComm) ScatterDoublesV(parts [][]float64) ([]float64, error) {
	if !ic.IsMaster() {
		return ic.comm.ReceiveDoubles(MasterRank)
	}
	if len(parts) != ic.size {
		return nil, fmt.Errorf("scatter needs %d parts, got %d", ic.size, len(parts))
	}
	for rank := 1; rank < ic.size; rank++ {
		if err := ic.comm.SendDoubles(parts[rank], rank); err != nil {
			return nil, err
		}
	}
	return parts[MasterRank], nil
}

// GatherIntsV is GatherDoublesV for integer slices.
func (ic *IntraComm) GatherIntsV(local []int) (parts [][]int, err error) {
	if !ic.IsMaster() {
		return nil, ic.comm.SendInts(local, MasterRank)
	}
	parts = make([][]int, ic.size)
	parts[MasterRank] = local
	for rank := 1; rank < ic.size; rank++ {
		if parts[rank], err = ic.comm.ReceiveInts(rank); err != nil {
			return nil, err
		}
	}
	return
}

// ScatterIntsV is ScatterDoublesV for integer slices.
func (ic *IntraComm) ScatterIntsV(parts [][]int) ([]int, error) {
	if !ic.IsMaster() {
		return ic.comm.ReceiveInts(MasterRank)
	}
	if len(parts) != ic.size {
		return nil, fmt.Errorf("scatter needs %d parts, got %d", ic.size, len(parts))
	}
	for rank := 1; rank < ic.size; rank++ {
		if err := ic.comm.SendInts(parts[rank], rank); err != nil {
			return nil, err
		}
	}
	return parts[MasterRank], nil
}

// BroadcastInts fans the master's slice out to every rank. The master
// passes the value, other ranks ignore their argument and receive.
func (ic *IntraComm) BroadcastInts(values []int) ([]int, error) {
	if !ic.IsMaster() {
		return ic.comm.ReceiveInts(MasterRank)
	}
	for rank := 1; rank < ic.size; rank++ {
		if err := ic.comm.SendInts(values, rank); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// BroadcastDoubles fans the master's slice out to every rank.
func (ic *IntraComm) BroadcastDoubles(values []float64) ([]float64, error) {
	if !ic.IsMaster() {
		return ic.comm.ReceiveDoubles(MasterRank)
	}
	for rank := 1; rank < ic.size; rank++ {
		if err := ic.comm.SendDoubles(values, rank); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// BroadcastInt fans a single integer out to every rank.
func (ic *IntraComm) BroadcastInt(value int) (int, error) {
	values, err := ic.BroadcastInts([]int{value})
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("broadcast expected scalar, got %d values", len(values))
	}
	return values[0], nil
}

// BroadcastDouble fans a single double out to every rank.
func (ic *IntraComm) BroadcastDouble(value float64) (float64, error) {
	values, err := ic.BroadcastDoubles([]float64{value})
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("broadcast expected scalar, got %d values", len(values))
	}
	return values[0], nil
}
