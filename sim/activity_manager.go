package sim

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// ActivityManager owns one partition of activities and resource types.
// Feasibility checks for its activities are serialized by running only in
// the sweep phase of the single worker that owns the manager.
//
// The pending queues are fed from any worker during dispatch and are
// guarded by mu; the waiting queue is touched only by the owner.
type ActivityManager struct {
	id         int
	activities []*Activity
	types      []*ResourceType
	rng        *rand.Rand
	worker     int

	mu                  sync.Mutex
	pendingRequests     []*FlowExecutor
	pendingAvailability []*Resource

	waiting []*FlowExecutor
}

func (m *ActivityManager) ID() int                        { return m.id }
func (m *ActivityManager) Activities() []*Activity        { return m.activities }
func (m *ActivityManager) ResourceTypes() []*ResourceType { return m.types }

// Worker returns the index of the worker owning the manager.
func (m *ActivityManager) Worker() int { return m.worker }

// Waiting returns the number of executors queued for a feasible workgroup.
// Only meaningful between ticks or after the run.
func (m *ActivityManager) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting) + len(m.pendingRequests)
}

// request queues x for its current activity.
func (m *ActivityManager) request(x *FlowExecutor) {
	m.mu.Lock()
	m.pendingRequests = append(m.pendingRequests, x)
	m.mu.Unlock()
}

// notifyAvailable records that r became available for one of the manager's
// types.
func (m *ActivityManager) notifyAvailable(r *Resource) {
	m.mu.Lock()
	m.pendingAvailability = append(m.pendingAvailability, r)
	m.mu.Unlock()
}

// queueLess orders waiting executors by activity priority, request time and
// executor key.
func queueLess(a, b *FlowExecutor) bool {
	if a.activity.priority != b.activity.priority {
		return a.activity.priority < b.activity.priority
	}
	if a.requestedAt != b.requestedAt {
		return a.requestedAt < b.requestedAt
	}
	return a.key.less(b.key)
}

// sweep admits new requests and, if anything changed since the last sweep,
// re-examines every waiting executor. Returns the number of started
// activities.
func (m *ActivityManager) sweep(w *Worker) int {
	m.mu.Lock()
	reqs := m.pendingRequests
	avail := m.pendingAvailability
	m.pendingRequests = nil
	m.pendingAvailability = nil
	m.mu.Unlock()

	if len(reqs) == 0 && len(avail) == 0 {
		return 0
	}
	if len(reqs) > 0 {
		m.waiting = append(m.waiting, reqs...)
		sort.SliceStable(m.waiting, func(i, j int) bool { return queueLess(m.waiting[i], m.waiting[j]) })
	}

	started := 0
	kept := m.waiting[:0]
	for _, x := range m.waiting {
		if m.tryStart(w, x) {
			started++
			continue
		}
		kept = append(kept, x)
	}
	for i := len(kept); i < len(m.waiting); i++ {
		m.waiting[i] = nil
	}
	m.waiting = kept
	if started > 0 {
		logrus.Debugf("[tick %07d] manager %d started %d activities, %d waiting", w.Now(), m.id, started, len(m.waiting))
	}
	return started
}

// tryStart runs the feasibility search for x over its activity's workgroups
// and starts the activity on success.
func (m *ActivityManager) tryStart(w *Worker, x *FlowExecutor) bool {
	a := x.activity
	if a.guard != nil && !a.guard(x) {
		return false
	}
	for _, wg := range m.workGroupOrder(a) {
		if wg.guard != nil && !wg.guard(x) {
			continue
		}
		res := wg.findSolution(x)
		if res.found {
			x.startActivity(w, wg, res.caught)
			return true
		}
	}
	return false
}

// workGroupOrder sorts the workgroups of a by priority and shuffles runs of
// equal priority with the manager's RNG.
func (m *ActivityManager) workGroupOrder(a *Activity) []*WorkGroup {
	order := make([]*WorkGroup, len(a.workGroups))
	copy(order, a.workGroups)
	if len(order) < 2 {
		return order
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].priority < order[j].priority })
	for lo := 0; lo < len(order); {
		hi := lo + 1
		for hi < len(order) && order[hi].priority == order[lo].priority {
			hi++
		}
		if hi-lo > 1 {
			run := order[lo:hi]
			m.rng.Shuffle(len(run), func(i, j int) { run[i], run[j] = run[j], run[i] })
		}
		lo = hi
	}
	return order
}
