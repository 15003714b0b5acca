package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// DurationFunc computes how long an executor holds the resources of a
// workgroup.
type DurationFunc func(x *FlowExecutor) int64

// Guard is a condition evaluated against an executor before a workgroup or
// activity is considered.
type Guard func(x *FlowExecutor) bool

// Constant returns a DurationFunc that always yields d.
func Constant(d int64) DurationFunc {
	return func(*FlowExecutor) int64 { return d }
}

// Need is one (resource type, count) requirement of a workgroup.
type Need struct {
	Type  *ResourceType
	Count int
}

// WorkGroup is an ordered list of resource requirements usable to perform an
// activity, together with a priority (lower is tried first), a duration and
// an optional guard. Immutable after construction. An empty list means the
// activity is unconstrained.
type WorkGroup struct {
	index    int
	activity *Activity
	needs    []Need
	priority int
	duration DurationFunc
	guard    Guard
}

// NewWorkGroup validates and builds a workgroup. Counts must be
// non-negative; a type may appear only once.
func NewWorkGroup(priority int, duration DurationFunc, needs ...Need) (*WorkGroup, error) {
	if duration == nil {
		return nil, fmt.Errorf("workgroup: nil duration")
	}
	seen := make(map[*ResourceType]bool, len(needs))
	for _, n := range needs {
		if n.Type == nil {
			return nil, fmt.Errorf("workgroup: nil resource type")
		}
		if n.Count < 0 {
			return nil, fmt.Errorf("workgroup: negative count %d for resource type %q", n.Count, n.Type.name)
		}
		if seen[n.Type] {
			return nil, fmt.Errorf("workgroup: resource type %q listed twice", n.Type.name)
		}
		seen[n.Type] = true
	}
	wg := &WorkGroup{
		needs:    append([]Need(nil), needs...),
		priority: priority,
		duration: duration,
	}
	return wg, nil
}

// WithGuard returns the workgroup with a guard attached.
func (wg *WorkGroup) WithGuard(g Guard) *WorkGroup {
	wg.guard = g
	return wg
}

func (wg *WorkGroup) Index() int         { return wg.index }
func (wg *WorkGroup) Priority() int      { return wg.priority }
func (wg *WorkGroup) Needs() []Need      { return wg.needs }
func (wg *WorkGroup) Empty() bool        { return wg.totalNeeded() == 0 }
func (wg *WorkGroup) Activity() *Activity { return wg.activity }

// Duration evaluates the duration function for x.
func (wg *WorkGroup) Duration(x *FlowExecutor) int64 {
	return wg.duration(x)
}

func (wg *WorkGroup) totalNeeded() int {
	total := 0
	for _, n := range wg.needs {
		total += n.Count
	}
	return total
}

// caught is one tentatively booked or held resource.
type caught struct {
	resource *Resource
	rtype    *ResourceType
}

// searchResult is the explicit outcome of a feasibility search.
type searchResult struct {
	found  bool
	caught []caught
}

// search is the state of one branch-and-bound feasibility attempt.
type search struct {
	x      *FlowExecutor
	wg     *WorkGroup
	need   []int
	stack  []caught
	shared bool
	// candidates are the per-type available snapshots taken when the type
	// is first visited.
	candidates [][]*Resource
}

func newSearch(x *FlowExecutor, wg *WorkGroup) *search {
	s := &search{
		x:          x,
		wg:         wg,
		need:       make([]int, len(wg.needs)),
		candidates: make([][]*Resource, len(wg.needs)),
	}
	s.reset()
	return s
}

func (s *search) reset() {
	for i, n := range s.wg.needs {
		s.need[i] = n.Count
		s.candidates[i] = nil
	}
	s.stack = s.stack[:0]
	s.shared = false
}

func (s *search) push(r *Resource, t *ResourceType) {
	s.stack = append(s.stack, caught{resource: r, rtype: t})
	if r.shared {
		s.shared = true
	}
}

// pop undoes the most recent tentative booking.
func (s *search) pop() {
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	top.resource.unbook(s.x)
	s.shared = false
	for _, c := range s.stack {
		if c.resource.shared {
			s.shared = true
			break
		}
	}
}

// undoAll releases every tentative booking in LIFO order.
func (s *search) undoAll() {
	for len(s.stack) > 0 {
		s.pop()
	}
}

func (s *search) snapshot(i int) []*Resource {
	if s.candidates[i] == nil {
		s.candidates[i] = s.wg.needs[i].Type.Available()
	}
	return s.candidates[i]
}

func (s *search) bookedByMe(r *Resource) bool {
	for _, c := range s.stack {
		if c.resource == r {
			return true
		}
	}
	return false
}

// hasSolution is the bound: every type from index i on must still have at
// least as many bookable resources as it needs. Availability is recomputed
// from the snapshots for every call; resources already booked by this
// search do not count.
func (s *search) hasSolution(from int) bool {
	for i := from; i < len(s.need); i++ {
		if s.need[i] == 0 {
			continue
		}
		free := 0
		for _, r := range s.snapshot(i) {
			if !s.bookedByMe(r) && r.validFor(s.wg.needs[i].Type) {
				free++
				if free >= s.need[i] {
					break
				}
			}
		}
		if free < s.need[i] {
			return false
		}
	}
	return true
}

// find is the depth-first search over (type index, resource index).
func (s *search) find(ti, start int) bool {
	for ti < len(s.need) && s.need[ti] == 0 {
		ti++
		start = 0
	}
	if ti == len(s.need) {
		return true
	}
	t := s.wg.needs[ti].Type
	cands := s.snapshot(ti)
	for ri := start; ri < len(cands); ri++ {
		r := cands[ri]
		if s.bookedByMe(r) || !r.TentativelyBook(s.x, t) {
			continue
		}
		s.push(r, t)
		s.need[ti]--
		if s.hasSolution(ti) {
			next, nextStart := ti, ri+1
			if s.need[ti] == 0 {
				next, nextStart = ti+1, 0
			}
			if s.find(next, nextStart) {
				return true
			}
		}
		s.need[ti]++
		s.pop()
	}
	return false
}

// checkCaughtResources re-validates every booking after the conflict zone
// has been acquired.
func (s *search) checkCaughtResources() bool {
	for _, c := range s.stack {
		if !c.resource.validFor(c.rtype) {
			return false
		}
	}
	return true
}

// commit makes x the holder of every booked resource. On a lost race the
// already committed resources are released and false is returned.
func (s *search) commit() bool {
	for i, c := range s.stack {
		if !c.resource.Commit(s.x, c.rtype) {
			for j := i - 1; j >= 0; j-- {
				s.stack[j].resource.Release()
			}
			return false
		}
	}
	return true
}

// findSolution runs the feasibility search of wg for x. On success the
// returned resources are committed to x; on failure every tentative booking
// has been undone.
func (wg *WorkGroup) findSolution(x *FlowExecutor) searchResult {
	if wg.Empty() {
		return searchResult{found: true}
	}
	s := newSearch(x, wg)
	for attempt := 0; ; attempt++ {
		if !s.hasSolution(0) || !s.find(0, 0) {
			s.undoAll()
			releaseZone(x, nil)
			return searchResult{}
		}
		var held []*stackMutex
		if s.shared {
			held = acquireAll(x)
		}
		if s.checkCaughtResources() && s.commit() {
			out := make([]caught, len(s.stack))
			copy(out, s.stack)
			s.stack = s.stack[:0]
			releaseZone(x, held)
			return searchResult{found: true, caught: out}
		}
		logrus.Debugf("workgroup %s/%d: stale booking for %s, restarting search (attempt %d)",
			wg.activity.Name(), wg.index, x, attempt+1)
		s.undoAll()
		releaseZone(x, held)
		s.reset()
	}
}
