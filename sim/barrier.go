package sim

import "sync"

// Barrier is a reusable barrier for a fixed number of parties. The last
// party to arrive runs the barrier action before any party is released, so
// the action observes every party's writes and every party observes the
// action's writes.
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	waiting    int
	generation uint64
	action     func()
}

// NewBarrier creates a barrier for parties goroutines. action may be nil.
// Panics if parties < 1.
func NewBarrier(parties int, action func()) *Barrier {
	if parties < 1 {
		panic("Barrier: parties must be >= 1")
	}
	b := &Barrier{parties: parties, action: action}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until all parties have called Wait for the current
// generation. Returns true for the party that ran the action.
func (b *Barrier) Wait() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.generation
	b.waiting++
	if b.waiting == b.parties {
		if b.action != nil {
			b.action()
		}
		b.waiting = 0
		b.generation++
		b.cond.Broadcast()
		return true
	}
	for gen == b.generation {
		b.cond.Wait()
	}
	return false
}

// Generation returns how many times the barrier has tripped.
func (b *Barrier) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}
