package com

import "fmt"

// chanCapacity bounds the number of in-flight messages per directed rank
// pair. Large enough that the gather/scatter phases never block the sender
// in practice, small enough to surface runaway protocols in tests.
const chanCapacity = 256

type packetKind uint8

const (
	intsPacket packetKind = iota
	doublesPacket
)

type packet struct {
	kind    packetKind
	ints    []int
	doubles []float64
}

// network is the shared state of one channel backed rank group: a buffered
// channel per directed rank pair.
type network struct {
	size  int
	chans []chan packet
}

func (n *network) channel(from, to int) chan packet {
	return n.chans[from*n.size+to]
}

// ChannelComm is the in-process Communication implementation, one instance
// per rank of the group. Adapted from the MailBox pattern used for worker
// messaging: every directed pair of ranks owns a buffered channel, sends
// copy their payload so the caller keeps ownership of its slice.
type ChannelComm struct {
	net    *network
	rank   int
	closed bool
}

// NewChannelGroup builds a fully connected in-process group of size ranks
// and returns one ChannelComm per rank. A group of two serves as a
// master-master pair between participants.
func NewChannelGroup(size int) (comms []*ChannelComm) {
	if size < 1 {
		panic(fmt.Sprintf("channel group size %d out of range", size))
	}
	net := &network{
		size:  size,
		chans: make([]chan packet, size*size),
	}
	for i := range net.chans {
		net.chans[i] = make(chan packet, chanCapacity)
	}
	comms = make([]*ChannelComm, size)
	for rank := 0; rank < size; rank++ {
		comms[rank] = &ChannelComm{net: net, rank: rank}
	}
	return
}

func (c *ChannelComm) Rank() int {
	return c.rank
}

func (c *ChannelComm) checkPeer(peer int) {
	if peer < 0 || peer >= c.net.size || peer == c.rank {
		panic(fmt.Sprintf("rank %d: peer %d out of range for group of %d",
			c.rank, peer, c.net.size))
	}
}

func (c *ChannelComm) send(p packet, to int) error {
	c.checkPeer(to)
	if c.closed {
		return fmt.Errorf("rank %d: send on closed communication", c.rank)
	}
	c.net.channel(c.rank, to) <- p
	return nil
}

func (c *ChannelComm) receive(kind packetKind, from int) (packet, error) {
	c.checkPeer(from)
	if c.closed {
		return packet{}, fmt.Errorf("rank %d: receive on closed communication", c.rank)
	}
	p, ok := <-c.net.channel(from, c.rank)
	if !ok {
		return packet{}, fmt.Errorf("rank %d: connection to rank %d closed", c.rank, from)
	}
	if p.kind != kind {
		return packet{}, fmt.Errorf("rank %d: message type mismatch from rank %d", c.rank, from)
	}
	return p, nil
}

func (c *ChannelComm) SendInts(values []int, to int) error {
	return c.send(packet{kind: intsPacket, ints: append([]int{}, values...)}, to)
}

func (c *ChannelComm) ReceiveInts(from int) ([]int, error) {
	p, err := c.receive(intsPacket, from)
	if err != nil {
		return nil, err
	}
	return p.ints, nil
}

func (c *ChannelComm) SendInt(value int, to int) error {
	return c.SendInts([]int{value}, to)
}

func (c *ChannelComm) ReceiveInt(from int) (int, error) {
	values, err := c.ReceiveInts(from)
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("rank %d: expected scalar from rank %d, got %d values",
			c.rank, from, len(values))
	}
	return values[0], nil
}

func (c *ChannelComm) SendDoubles(values []float64, to int) error {
	return c.send(packet{kind: doublesPacket, doubles: append([]float64{}, values...)}, to)
}

func (c *ChannelComm) ReceiveDoubles(from int) ([]float64, error) {
	p, err := c.receive(doublesPacket, from)
	if err != nil {
		return nil, err
	}
	return p.doubles, nil
}

func (c *ChannelComm) SendDouble(value float64, to int) error {
	return c.SendDoubles([]float64{value}, to)
}

func (c *ChannelComm) ReceiveDouble(from int) (float64, error) {
	values, err := c.ReceiveDoubles(from)
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("rank %d: expected scalar from rank %d, got %d values",
			c.rank, from, len(values))
	}
	return values[0], nil
}

// Close shuts down this rank's outgoing channels. Peers blocked in a
// receive from this rank get an error.
func (c *ChannelComm) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	for to := 0; to < c.net.size; to++ {
		if to != c.rank {
			close(c.net.channel(c.rank, to))
		}
	}
	return nil
}
