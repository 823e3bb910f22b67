package com

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelPairSendReceive(t *testing.T) {
	comms := NewChannelGroup(2)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, comms[0].SendDoubles([]float64{1, 2, 3}, 1))
		require.NoError(t, comms[0].SendInt(42, 1))
	}()

	values, err := comms[1].ReceiveDoubles(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, values)

	n, err := comms[1].ReceiveInt(0)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	wg.Wait()
}

func TestChannelOrderingPerPeer(t *testing.T) {
	comms := NewChannelGroup(2)
	for i := 0; i < 10; i++ {
		require.NoError(t, comms[0].SendInt(i, 1))
	}
	for i := 0; i < 10; i++ {
		n, err := comms[1].ReceiveInt(0)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
}

func TestChannelSendCopiesPayload(t *testing.T) {
	comms := NewChannelGroup(2)
	payload := []float64{1, 2}
	require.NoError(t, comms[0].SendDoubles(payload, 1))
	payload[0] = 99

	values, err := comms[1].ReceiveDoubles(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, values)
}

func TestChannelTypeMismatch(t *testing.T) {
	comms := NewChannelGroup(2)
	require.NoError(t, comms[0].SendInts([]int{1}, 1))
	_, err := comms[1].ReceiveDoubles(0)
	assert.Error(t, err)
}

func TestChannelClose(t *testing.T) {
	comms := NewChannelGroup(2)
	require.NoError(t, comms[0].Close())
	_, err := comms[1].ReceiveInt(0)
	assert.Error(t, err)
	assert.Error(t, comms[0].SendInt(1, 1))
	// Closing twice is fine.
	assert.NoError(t, comms[0].Close())
}

func TestChannelPeerValidation(t *testing.T) {
	comms := NewChannelGroup(2)
	assert.Panics(t, func() { _ = comms[0].SendInt(1, 0) })
	assert.Panics(t, func() { _ = comms[0].SendInt(1, 5) })
}

func TestIntraGatherScatterRoundTrip(t *testing.T) {
	const size = 3
	comms := NewChannelGroup(size)
	// Distinct length per rank.
	inputs := [][]float64{{1}, {2, 3}, {4, 5, 6}}

	var wg sync.WaitGroup
	results := make([][]float64, size)
	errs := make([]error, size)
	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			ic := NewIntraComm(comms[rank], rank, size)
			parts, err := ic.GatherDoublesV(inputs[rank])
			if err != nil {
				errs[rank] = err
				return
			}
			if ic.IsMaster() {
				// Rank order preserved at the master.
				for r := 0; r < size; r++ {
					if !assert.ObjectsAreEqual(inputs[r], parts[r]) {
						errs[rank] = assert.AnError
						return
					}
				}
			}
			results[rank], errs[rank] = ic.ScatterDoublesV(parts)
		}(rank)
	}
	wg.Wait()

	for rank := 0; rank < size; rank++ {
		require.NoError(t, errs[rank])
		assert.Equal(t, inputs[rank], results[rank], "rank %d", rank)
	}
}

func TestIntraBroadcast(t *testing.T) {
	const size = 3
	comms := NewChannelGroup(size)

	var wg sync.WaitGroup
	results := make([]float64, size)
	intResults := make([][]int, size)
	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			ic := NewIntraComm(comms[rank], rank, size)
			v, err := ic.BroadcastDouble(3.25)
			require.NoError(t, err)
			results[rank] = v
			ints, err := ic.BroadcastInts([]int{7, 8})
			require.NoError(t, err)
			intResults[rank] = ints
		}(rank)
	}
	wg.Wait()

	for rank := 0; rank < size; rank++ {
		assert.Equal(t, 3.25, results[rank])
		assert.Equal(t, []int{7, 8}, intResults[rank])
	}
}

func TestIntraSerialDegenerate(t *testing.T) {
	ic := NewIntraComm(nil, 0, 1)
	parts, err := ic.GatherIntsV([]int{1, 2})
	require.NoError(t, err)
	out, err := ic.ScatterIntsV(parts)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, out)
}
