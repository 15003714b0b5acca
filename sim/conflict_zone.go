package sim

import (
	"sync"
	"sync/atomic"
)

var zoneSerial atomic.Uint64

// stackMutex is one mutex of a conflict zone's serialization stack. Mutexes
// are always locked in increasing serial order.
type stackMutex struct {
	sync.Mutex
	serial uint64
}

// ConflictZone is a mergeable serialization group of executors contending
// for shared resources. Zones form a disjoint-set forest: a merged-away zone
// keeps a forwarding pointer to its successor and is never used directly
// again.
//
// Zones are totally ordered by (key, serial) where key is the id of the
// executor that created the zone. A merge always folds the higher-ordered
// root into the lower-ordered one, and mutex stacks are locked in global
// serial order, so acquisition can never form a circular wait.
type ConflictZone struct {
	key    executorKey
	serial uint64

	mu        sync.Mutex
	successor *ConflictZone
	members   map[*FlowExecutor]struct{}
	stack     []*stackMutex
}

func newConflictZone(x *FlowExecutor) *ConflictZone {
	return &ConflictZone{
		key:     x.key,
		serial:  zoneSerial.Add(1),
		members: map[*FlowExecutor]struct{}{x: {}},
	}
}

func (z *ConflictZone) before(o *ConflictZone) bool {
	if z.key != o.key {
		return z.key.less(o.key)
	}
	return z.serial < o.serial
}

// root follows forwarding pointers to the live zone, compressing the path.
func (z *ConflictZone) root() *ConflictZone {
	cur := z
	var path []*ConflictZone
	for {
		cur.mu.Lock()
		next := cur.successor
		cur.mu.Unlock()
		if next == nil {
			break
		}
		path = append(path, cur)
		cur = next
	}
	for _, p := range path {
		p.mu.Lock()
		if p.successor != nil {
			p.successor = cur
		}
		p.mu.Unlock()
	}
	return cur
}

// Members returns the number of executors in the live zone.
func (z *ConflictZone) Members() int {
	r := z.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Superseded reports whether the zone was merged into another one.
func (z *ConflictZone) Superseded() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.successor != nil
}

// mergeZones unions the zones of a and b and returns the surviving root.
// Both roots are locked in zone order; if either was superseded between
// lookup and locking the merge retries against the successors.
func mergeZones(a, b *ConflictZone) *ConflictZone {
	for {
		ra, rb := a.root(), b.root()
		if ra == rb {
			return ra
		}
		lo, hi := ra, rb
		if hi.before(lo) {
			lo, hi = hi, lo
		}
		lo.mu.Lock()
		hi.mu.Lock()
		if lo.successor != nil || hi.successor != nil {
			hi.mu.Unlock()
			lo.mu.Unlock()
			continue
		}
		for m := range hi.members {
			lo.members[m] = struct{}{}
		}
		lo.stack = mergeStacks(lo.stack, hi.stack)
		hi.members = nil
		hi.stack = nil
		hi.successor = lo
		hi.mu.Unlock()
		lo.mu.Unlock()
		return lo
	}
}

func mergeStacks(a, b []*stackMutex) []*stackMutex {
	out := make([]*stackMutex, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].serial < b[j].serial:
			out = append(out, a[i])
			i++
		case a[i].serial > b[j].serial:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// acquireAll locks the mutex stack of x's live zone, creating a mutex if the
// stack is empty. The returned snapshot must be passed to releaseZone.
// Executors merged into the zone later include these mutexes in their own
// snapshot, so they serialize behind x.
func acquireAll(x *FlowExecutor) []*stackMutex {
	for {
		z := x.currentZone().root()
		z.mu.Lock()
		if z.successor != nil {
			z.mu.Unlock()
			continue
		}
		if len(z.stack) == 0 {
			z.stack = []*stackMutex{{serial: zoneSerial.Add(1)}}
		}
		held := make([]*stackMutex, len(z.stack))
		copy(held, z.stack)
		z.mu.Unlock()
		for _, m := range held {
			m.Lock()
		}
		return held
	}
}

// releaseZone unlocks a snapshot taken by acquireAll (if any) and removes x
// from its zone. x gets a fresh zone on its next attempt.
func releaseZone(x *FlowExecutor, held []*stackMutex) {
	for i := len(held) - 1; i >= 0; i-- {
		held[i].Unlock()
	}
	zone := x.currentZone()
	if zone == nil {
		return
	}
	for {
		z := zone.root()
		z.mu.Lock()
		if z.successor != nil {
			z.mu.Unlock()
			continue
		}
		delete(z.members, x)
		z.mu.Unlock()
		break
	}
	x.setZone(nil)
}
