// Package transport carries the private coordination messages exchanged by
// distributed ranks. Every message is encoded to a byte frame at the send
// boundary and decoded at the receive boundary, so ranks never share memory
// whether they run in one process or many.
package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed endpoint or mesh.
	ErrClosed = errors.New("transport: endpoint closed")
	// ErrUnexpectedMessage is returned when a peer sends a message of the wrong kind.
	ErrUnexpectedMessage = errors.New("transport: unexpected message")
)

// Kind tags a frame with the message type it carries.
type Kind uint8

const (
	KindDims Kind = iota + 1
	KindHalo
	KindMax
	KindGather
)

func (k Kind) String() string {
	switch k {
	case KindDims:
		return "dims"
	case KindHalo:
		return "halo"
	case KindMax:
		return "max"
	case KindGather:
		return "gather"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is implemented by every coordination message.
type Message interface {
	Kind() Kind
}

// Dims announces the image size before the halo push.
type Dims struct {
	Width  int
	Height int
}

// HaloBatch carries global rows [Lo, Hi) as one packed plane per base channel.
type HaloBatch struct {
	Lo, Hi int
	Planes [][]byte
}

// MaxValue is a rank's local maximum for one iteration.
type MaxValue struct {
	Iteration int
	Value     byte
}

// GatherBatch returns a rank's strict partition [Start, End) to the coordinator.
type GatherBatch struct {
	Start, End int
	Planes     [][]byte
}

func (Dims) Kind() Kind        { return KindDims }
func (HaloBatch) Kind() Kind   { return KindHalo }
func (MaxValue) Kind() Kind    { return KindMax }
func (GatherBatch) Kind() Kind { return KindGather }

// Endpoint is one rank's view of the mesh. Send and Recv block; Recv returns
// the next message from a specific peer in the order that peer sent them.
type Endpoint interface {
	Rank() int
	Size() int
	Send(ctx context.Context, to int, msg Message) error
	Recv(ctx context.Context, from int) (Message, error)
	Close() error
}

// Expect receives the next message from a peer and checks its type.
func Expect[T Message](ctx context.Context, ep Endpoint, from int) (T, error) {
	var zero T
	msg, err := ep.Recv(ctx, from)
	if err != nil {
		return zero, err
	}
	typed, ok := msg.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %s from rank %d, want %s", ErrUnexpectedMessage, msg.Kind(), from, zero.Kind())
	}
	return typed, nil
}

func checkPeer(ep Endpoint, peer int) error {
	if peer < 0 || peer >= ep.Size() || peer == ep.Rank() {
		return fmt.Errorf("transport: rank %d cannot address peer %d in mesh of %d", ep.Rank(), peer, ep.Size())
	}
	return nil
}
