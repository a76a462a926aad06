// Global maximum reductions, one per concurrency model
package reduce

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"separable-convolution/internal/transport"
)

// AtomicMax is a lock-free running maximum updated from parallel loop chunks.
// The zero value holds 0 and is ready for use.
type AtomicMax struct {
	v atomic.Uint32
}

// Observe raises the maximum to v if v is larger.
func (m *AtomicMax) Observe(v byte) {
	for {
		cur := m.v.Load()
		if uint32(v) <= cur || m.v.CompareAndSwap(cur, uint32(v)) {
			return
		}
	}
}

// Load returns the current maximum.
func (m *AtomicMax) Load() byte {
	return byte(m.v.Load())
}

// Reset sets the maximum back to 0 for the next iteration.
func (m *AtomicMax) Reset() {
	m.v.Store(0)
}

// LockedMax is a mutex-guarded running maximum shared by explicit workers.
type LockedMax struct {
	mu  sync.Mutex
	top byte
}

// Observe raises the maximum to v if v is larger.
func (m *LockedMax) Observe(v byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v > m.top {
		m.top = v
	}
}

// Load returns the current maximum.
func (m *LockedMax) Load() byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.top
}

// AllToAll sends local to every peer, then receives every peer's value for the
// same iteration and returns the maximum over all ranks. It returns only after
// every rank has contributed, so it doubles as a barrier.
func AllToAll(ctx context.Context, ep transport.Endpoint, iteration int, local byte) (byte, error) {
	msg := transport.MaxValue{Iteration: iteration, Value: local}
	for peer := 0; peer < ep.Size(); peer++ {
		if peer == ep.Rank() {
			continue
		}
		if err := ep.Send(ctx, peer, msg); err != nil {
			return 0, fmt.Errorf("failed to send max to rank %d: %w", peer, err)
		}
	}

	values := make([]byte, 0, ep.Size())
	values = append(values, local)
	for peer := 0; peer < ep.Size(); peer++ {
		if peer == ep.Rank() {
			continue
		}
		got, err := transport.Expect[transport.MaxValue](ctx, ep, peer)
		if err != nil {
			return 0, fmt.Errorf("failed to receive max from rank %d: %w", peer, err)
		}
		if got.Iteration != iteration {
			return 0, fmt.Errorf("%w: rank %d sent max for iteration %d during iteration %d",
				transport.ErrUnexpectedMessage, peer, got.Iteration, iteration)
		}
		values = append(values, got.Value)
	}
	return lo.Max(values), nil
}
