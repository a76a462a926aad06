package transport

import (
	"context"
	"fmt"
	"sync"
)

// mailboxDepth bounds how far a sender may run ahead of its receiver. A rank
// is at most one reduction ahead of any peer, so a handful of slots is enough
// for sends to complete without waiting on the receiver.
const mailboxDepth = 16

// LocalMesh connects ranks running as goroutines of one process. Frames are
// copied through per-pair mailboxes; no message value is shared.
type LocalMesh struct {
	size      int
	codec     *Codec
	boxes     [][]chan []byte // boxes[from][to]
	done      chan struct{}
	closeOnce sync.Once
}

// NewLocalMesh creates a fully connected mesh of size ranks.
func NewLocalMesh(size int, codec *Codec) *LocalMesh {
	if size <= 0 {
		panic(fmt.Sprintf("transport: invalid mesh size %d", size))
	}
	m := &LocalMesh{
		size:  size,
		codec: codec,
		boxes: make([][]chan []byte, size),
		done:  make(chan struct{}),
	}
	for from := range m.boxes {
		m.boxes[from] = make([]chan []byte, size)
		for to := range m.boxes[from] {
			if from != to {
				m.boxes[from][to] = make(chan []byte, mailboxDepth)
			}
		}
	}
	return m
}

// Endpoint returns the endpoint of one rank.
func (m *LocalMesh) Endpoint(rank int) Endpoint {
	if rank < 0 || rank >= m.size {
		panic(fmt.Sprintf("transport: rank %d outside mesh of %d", rank, m.size))
	}
	return &localEndpoint{rank: rank, mesh: m}
}

// Close unblocks every pending Send and Recv with ErrClosed.
func (m *LocalMesh) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

type localEndpoint struct {
	rank int
	mesh *LocalMesh
}

func (e *localEndpoint) Rank() int { return e.rank }
func (e *localEndpoint) Size() int { return e.mesh.size }

func (e *localEndpoint) Send(ctx context.Context, to int, msg Message) error {
	if err := checkPeer(e, to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := e.mesh.codec.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case e.mesh.boxes[e.rank][to] <- frame:
		return nil
	case <-e.mesh.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *localEndpoint) Recv(ctx context.Context, from int) (Message, error) {
	if err := checkPeer(e, from); err != nil {
		return nil, err
	}
	select {
	case frame := <-e.mesh.boxes[from][e.rank]:
		return e.mesh.codec.Unmarshal(frame)
	case <-e.mesh.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close is a no-op for a single endpoint; the mesh owns the mailboxes.
func (e *localEndpoint) Close() error {
	return nil
}
