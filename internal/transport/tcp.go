package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	helloSize     = 16 + 4 // run id, rank
	maxFrameSize  = 1 << 30
	dialInterval  = 100 * time.Millisecond
	inboxCapacity = mailboxDepth
	helloTimeout  = 10 * time.Second
)

// MeshID derives a run identifier every rank computes identically from the
// shared peer list, so processes started independently agree on it.
func MeshID(peers []string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("dwconv://"+strings.Join(peers, ",")))
}

// TCPEndpoint is one rank of a mesh of processes connected pairwise over TCP.
type TCPEndpoint struct {
	rank   int
	size   int
	runID  uuid.UUID
	codec  *Codec
	logger logrus.FieldLogger

	conns   []net.Conn
	writeMu []sync.Mutex
	inbox   []chan []byte
	broken  []chan struct{}
	readErr []error

	done      chan struct{}
	closeOnce sync.Once
}

// DialMesh listens on peers[rank], connects to every other rank and returns
// once the mesh is complete. Lower ranks accept, higher ranks dial; each
// connection opens with a hello carrying the run id and the dialer's rank.
// Dialing retries until the peer is up or ctx is cancelled. An accepted
// connection whose hello is late or names another run is dropped and
// accepting continues.
func DialMesh(ctx context.Context, rank int, peers []string, runID uuid.UUID, codec *Codec, logger logrus.FieldLogger) (*TCPEndpoint, error) {
	if rank < 0 || rank >= len(peers) {
		return nil, fmt.Errorf("transport: rank %d outside peer list of %d", rank, len(peers))
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", peers[rank])
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", peers[rank], err)
	}
	return JoinMesh(ctx, ln, rank, peers, runID, codec, logger)
}

// JoinMesh is DialMesh over a listener the caller already opened for
// peers[rank]. The listener is closed once the mesh is complete.
func JoinMesh(ctx context.Context, ln net.Listener, rank int, peers []string, runID uuid.UUID, codec *Codec, logger logrus.FieldLogger) (*TCPEndpoint, error) {
	defer ln.Close()
	size := len(peers)
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("transport: rank %d outside peer list of %d", rank, size)
	}

	ep := &TCPEndpoint{
		rank:    rank,
		size:    size,
		runID:   runID,
		codec:   codec,
		logger:  logger.WithFields(logrus.Fields{"rank": rank, "run_id": runID}),
		conns:   make([]net.Conn, size),
		writeMu: make([]sync.Mutex, size),
		inbox:   make([]chan []byte, size),
		broken:  make([]chan struct{}, size),
		readErr: make([]error, size),
		done:    make(chan struct{}),
	}

	ep.logger.WithField("addr", ln.Addr().String()).Debug("TRANSPORT: Listening for peers")

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { ln.Close() })
	defer stop()

	var mu sync.Mutex
	g.Go(func() error {
		for accepted := rank + 1; accepted < size; {
			conn, err := ln.Accept()
			if err != nil {
				return fmt.Errorf("failed to accept peer: %w", err)
			}
			peer, err := ep.admit(gctx, conn, &mu)
			if err != nil {
				conn.Close()
				if gctx.Err() != nil {
					return err
				}
				// a stray or stale client must not take the rank down
				ep.logger.WithError(err).WithField("remote", conn.RemoteAddr().String()).
					Warn("TRANSPORT: Rejected connection")
				continue
			}
			accepted++
			ep.logger.WithField("peer", peer).Debug("TRANSPORT: Accepted peer")
		}
		return nil
	})

	for peer := 0; peer < rank; peer++ {
		g.Go(func() error {
			conn, err := dialRetry(gctx, peers[peer])
			if err != nil {
				return fmt.Errorf("failed to dial rank %d at %s: %w", peer, peers[peer], err)
			}
			if err := ep.writeHello(conn); err != nil {
				conn.Close()
				return err
			}
			mu.Lock()
			ep.conns[peer] = conn
			mu.Unlock()
			ep.logger.WithField("peer", peer).Debug("TRANSPORT: Connected to peer")
			return nil
		})
	}

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = errors.Join(ctxErr, err)
	}
	if err != nil {
		ep.closeConns()
		return nil, err
	}

	for peer, conn := range ep.conns {
		if conn == nil {
			continue
		}
		ep.inbox[peer] = make(chan []byte, inboxCapacity)
		ep.broken[peer] = make(chan struct{})
		go ep.readLoop(peer, conn)
	}
	ep.logger.WithField("peers", size-1).Info("TRANSPORT: Mesh established")
	return ep, nil
}

func dialRetry(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), err)
		case <-time.After(dialInterval):
		}
	}
}

func (e *TCPEndpoint) writeHello(conn net.Conn) error {
	var hello [helloSize]byte
	copy(hello[:16], e.runID[:])
	binary.BigEndian.PutUint32(hello[16:], uint32(e.rank))
	if _, err := conn.Write(hello[:]); err != nil {
		return fmt.Errorf("failed to send hello: %w", err)
	}
	return nil
}

// admit reads the hello of an accepted connection and records it under the
// dialer's rank. The read gives up after helloTimeout or when ctx is done.
func (e *TCPEndpoint) admit(ctx context.Context, conn net.Conn, mu *sync.Mutex) (int, error) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.SetReadDeadline(time.Now().Add(helloTimeout)); err != nil {
		return 0, fmt.Errorf("failed to set hello deadline: %w", err)
	}
	peer, err := e.readHello(conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, errors.Join(ctxErr, err)
		}
		return 0, err
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return 0, fmt.Errorf("failed to clear hello deadline: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if e.conns[peer] != nil {
		return 0, fmt.Errorf("transport: rank %d connected twice", peer)
	}
	e.conns[peer] = conn
	return peer, nil
}

func (e *TCPEndpoint) readHello(conn net.Conn) (int, error) {
	var hello [helloSize]byte
	if _, err := io.ReadFull(conn, hello[:]); err != nil {
		return 0, fmt.Errorf("failed to read hello: %w", err)
	}
	id, err := uuid.FromBytes(hello[:16])
	if err != nil {
		return 0, fmt.Errorf("invalid run id in hello: %w", err)
	}
	if id != e.runID {
		return 0, fmt.Errorf("transport: peer belongs to run %s, this is run %s", id, e.runID)
	}
	peer := int(binary.BigEndian.Uint32(hello[16:]))
	if peer <= e.rank || peer >= e.size {
		return 0, fmt.Errorf("transport: unexpected hello from rank %d", peer)
	}
	return peer, nil
}

func (e *TCPEndpoint) readLoop(peer int, conn net.Conn) {
	defer close(e.broken[peer])
	r := bufio.NewReader(conn)
	var size [4]byte
	for {
		if _, err := io.ReadFull(r, size[:]); err != nil {
			e.readErr[peer] = err
			return
		}
		n := binary.BigEndian.Uint32(size[:])
		if n > maxFrameSize {
			e.readErr[peer] = fmt.Errorf("transport: frame of %d bytes from rank %d exceeds limit", n, peer)
			return
		}
		frame := make([]byte, n)
		if _, err := io.ReadFull(r, frame); err != nil {
			e.readErr[peer] = err
			return
		}
		select {
		case e.inbox[peer] <- frame:
		case <-e.done:
			return
		}
	}
}

func (e *TCPEndpoint) Rank() int { return e.rank }
func (e *TCPEndpoint) Size() int { return e.size }

// RunID returns the identifier shared by every rank of the mesh.
func (e *TCPEndpoint) RunID() uuid.UUID { return e.runID }

func (e *TCPEndpoint) Send(ctx context.Context, to int, msg Message) error {
	if err := checkPeer(e, to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-e.done:
		return ErrClosed
	default:
	}

	frame, err := e.codec.Marshal(msg)
	if err != nil {
		return err
	}
	buf := make([]byte, 4, 4+len(frame))
	binary.BigEndian.PutUint32(buf, uint32(len(frame)))
	buf = append(buf, frame...)

	e.writeMu[to].Lock()
	defer e.writeMu[to].Unlock()
	if _, err := e.conns[to].Write(buf); err != nil {
		return fmt.Errorf("failed to send %s to rank %d: %w", msg.Kind(), to, err)
	}
	return nil
}

func (e *TCPEndpoint) Recv(ctx context.Context, from int) (Message, error) {
	if err := checkPeer(e, from); err != nil {
		return nil, err
	}
	select {
	case frame := <-e.inbox[from]:
		return e.codec.Unmarshal(frame)
	case <-e.broken[from]:
		// frames read before the connection broke are still deliverable
		select {
		case frame := <-e.inbox[from]:
			return e.codec.Unmarshal(frame)
		default:
		}
		return nil, fmt.Errorf("connection to rank %d lost: %w", from, e.readErr[from])
	case <-e.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tears down every connection. Safe to call more than once.
func (e *TCPEndpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		e.closeConns()
		e.logger.Debug("TRANSPORT: Mesh closed")
	})
	return nil
}

func (e *TCPEndpoint) closeConns() {
	for _, conn := range e.conns {
		if conn != nil {
			conn.Close()
		}
	}
}
