package workerpool

import "sync"

// Barrier is a reusable rendezvous point for a fixed number of goroutines.
// Every Wait blocks until threshold callers have arrived, then releases them
// all and resets for the next phase.
type Barrier struct {
	sync.Mutex
	cond       *sync.Cond
	count      int // goroutines waiting in the current phase
	threshold  int
	generation int // phase counter, guards against spurious wakeups between phases
}

// NewBarrier creates a barrier for threshold participants.
func NewBarrier(threshold int) *Barrier {
	if threshold <= 0 {
		panic("workerpool: barrier threshold must be positive")
	}
	b := &Barrier{threshold: threshold}
	b.cond = sync.NewCond(&b.Mutex)
	return b
}

// Wait blocks until every participant of the current phase has called Wait.
func (b *Barrier) Wait() {
	b.Lock()
	defer b.Unlock()

	localGen := b.generation
	b.count++

	if b.count == b.threshold {
		b.count = 0
		b.generation++
		b.cond.Broadcast()
		return
	}
	for localGen == b.generation {
		b.cond.Wait()
	}
}

// Generation returns how many phases have completed.
func (b *Barrier) Generation() int {
	b.Lock()
	defer b.Unlock()
	return b.generation
}
