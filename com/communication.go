// Package com defines the point-to-point communication primitive the
// coupling layers are built on: blocking, reliable, ordered transfer of
// numeric arrays and small integer maps between ranks. The package also
// ships an in-process channel backed implementation used by tests and the
// demo; real transports plug in behind the same interface.
package com

// Communication is the blocking send/receive primitive against a peer rank
// inside one named rank group. Implementations must preserve message order
// per peer pair. All calls block until the message is handed to the
// transport.
type Communication interface {
	SendInt(value int, to int) error
	ReceiveInt(from int) (int, error)

	SendInts(values []int, to int) error
	ReceiveInts(from int) ([]int, error)

	SendDouble(value float64, to int) error
	ReceiveDouble(from int) (float64, error)

	SendDoubles(values []float64, to int) error
	ReceiveDoubles(from int) ([]float64, error)

	Close() error
}
