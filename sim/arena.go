package sim

import "sync"

// Handle addresses a slot in an Arena. A handle whose generation no longer
// matches its slot refers to a removed value.
type Handle struct {
	Index uint32
	Gen   uint32
}

type arenaSlot[T any] struct {
	gen   uint32
	live  bool
	value T
}

// Arena stores values for the lifetime of a simulation run, addressed by
// generational handles. Freed slots are reused with a bumped generation.
// Safe for concurrent use.
type Arena[T any] struct {
	mu    sync.RWMutex
	slots []arenaSlot[T]
	free  []uint32
	live  int
}

// NewArena creates an empty arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		slot := &a.slots[idx]
		slot.gen++
		slot.live = true
		slot.value = v
		return Handle{Index: idx, Gen: slot.gen}
	}
	a.slots = append(a.slots, arenaSlot[T]{gen: 0, live: true, value: v})
	return Handle{Index: uint32(len(a.slots) - 1), Gen: 0}
}

// Get returns the value for h, or false if h is stale.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var zero T
	if int(h.Index) >= len(a.slots) {
		return zero, false
	}
	slot := a.slots[h.Index]
	if !slot.live || slot.gen != h.Gen {
		return zero, false
	}
	return slot.value, true
}

// Remove frees the slot of h. Returns false if h is stale.
func (a *Arena[T]) Remove(h Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(h.Index) >= len(a.slots) {
		return false
	}
	slot := &a.slots[h.Index]
	if !slot.live || slot.gen != h.Gen {
		return false
	}
	var zero T
	slot.live = false
	slot.value = zero
	a.free = append(a.free, h.Index)
	a.live--
	return true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.live
}
