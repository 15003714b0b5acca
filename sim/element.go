package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/parades/parades/sim/trace"
	"github.com/sirupsen/logrus"
)

// ElementIDStride separates the element id ranges of generators: element n
// of generator g has id (g+1)*ElementIDStride + n. Ids depend only on the
// generator and its activation count, not on which worker created them.
const ElementIDStride = int64(1) << 32

// Element is a simulated entity executing a flow through one or more
// strands (FlowExecutors).
type Element struct {
	id   int64
	kind string
	sim  *Simulator

	mu      sync.Mutex
	live    int
	spawned uint32
	joins   map[*Flow]int
	attrs   map[string]float64
	rng     *rand.Rand
}

func (e *Element) ID() int64    { return e.id }
func (e *Element) Kind() string { return e.kind }

func (e *Element) String() string {
	return fmt.Sprintf("%s#%d", e.kind, e.id)
}

// Attr returns a named attribute of the element (zero if unset).
func (e *Element) Attr(name string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attrs[name]
}

// SetAttr sets a named attribute, typically from an ActionEvent or a
// duration function, for guards to inspect.
func (e *Element) SetAttr(name string, v float64) {
	e.mu.Lock()
	e.attrs[name] = v
	e.mu.Unlock()
}

// choose picks the successor of a branch flow.
func (e *Element) choose(f *Flow, x *FlowExecutor) *Flow {
	for _, o := range f.options {
		if o.Probability == 0 && o.Guard != nil && o.Guard(x) {
			return o.Target
		}
	}
	e.mu.Lock()
	u := e.rng.Float64()
	e.mu.Unlock()
	acc := 0.0
	for _, o := range f.options {
		if o.Probability == 0 {
			continue
		}
		if o.Guard != nil && !o.Guard(x) {
			continue
		}
		acc += o.Probability
		if u < acc {
			return o.Target
		}
	}
	return f.next
}

// arrive counts a strand reaching a join. Returns true for the strand that
// completes the join; the counter then starts over.
func (e *Element) arrive(f *Flow) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.joins[f]++
	if e.joins[f] < f.arrivals {
		return false
	}
	delete(e.joins, f)
	return true
}

// executorKey orders executors deterministically: by element, then by the
// spawn order within the element.
type executorKey struct {
	element int64
	seq     uint32
}

func (k executorKey) less(o executorKey) bool {
	if k.element != o.element {
		return k.element < o.element
	}
	return k.seq < o.seq
}

type execState int

const (
	execIdle execState = iota
	execWaiting
	execRunning
	execDelaying
	execDone
)

// heldGroup is the set of resources caught by one request flow.
type heldGroup struct {
	flow      *Flow
	workGroup *WorkGroup
	caught    []caught
}

func (g heldGroup) holds(r *Resource) bool {
	for _, c := range g.caught {
		if c.resource == r {
			return true
		}
	}
	return false
}

// FlowExecutor is one strand of execution of an element through its flow.
// It requests activities, accumulates caught resources and carries the
// conflict zone of its current feasibility attempt.
type FlowExecutor struct {
	key     executorKey
	handle  Handle
	element *Element
	zone    atomic.Pointer[ConflictZone]

	mu          sync.Mutex
	flow        *Flow
	state       execState
	activity    *Activity
	held        []heldGroup
	requestedAt int64
	finishAt    int64
	attempt     uint64
	remaining   int64
	resumed     bool
}

func (x *FlowExecutor) Element() *Element { return x.element }
func (x *FlowExecutor) Handle() Handle    { return x.handle }

// Activity returns the activity the executor is requesting or performing.
func (x *FlowExecutor) Activity() *Activity {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.activity
}

// Remaining returns the remaining duration kept from an interrupted
// activity, or zero.
func (x *FlowExecutor) Remaining() int64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.remaining
}

// Held returns the resources currently held by the executor, most recent
// request last.
func (x *FlowExecutor) Held() []*Resource {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []*Resource
	for _, g := range x.held {
		for _, c := range g.caught {
			out = append(out, c.resource)
		}
	}
	return out
}

func (x *FlowExecutor) String() string {
	return fmt.Sprintf("%d.%d", x.key.element, x.key.seq)
}

func (x *FlowExecutor) currentZone() *ConflictZone {
	return x.zone.Load()
}

func (x *FlowExecutor) setZone(z *ConflictZone) {
	x.zone.Store(z)
}

func (x *FlowExecutor) ensureZone() *ConflictZone {
	if z := x.zone.Load(); z != nil {
		return z
	}
	z := newConflictZone(x)
	x.zone.Store(z)
	return z
}

func (x *FlowExecutor) notify(w *Worker, kind trace.Kind, rec trace.Record) {
	rec.Kind = kind
	rec.Element = x.element.id
	w.Notify(rec)
}

// proceed interprets flow nodes until the strand has to wait. x.mu must be
// held.
func (x *FlowExecutor) proceed(w *Worker) {
	for {
		f := x.flow
		if f == nil {
			x.terminate(w)
			return
		}
		switch f.kind {
		case FlowRequest:
			x.activity = f.activity
			x.state = execWaiting
			x.requestedAt = w.Now()
			x.notify(w, trace.KindActivityRequested, trace.Record{Activity: f.activity.name})
			f.activity.manager.request(x)
			return
		case FlowRelease:
			x.releaseHeld(w, f.releases, false)
			x.flow = f.next
		case FlowDelay:
			d := f.delay(x)
			x.flow = f.next
			if d <= 0 {
				continue
			}
			x.state = execDelaying
			w.Schedule(&ResumeEvent{BaseEvent: newBaseEvent(w.Now() + d), Executor: x})
			return
		case FlowBranch:
			x.flow = x.element.choose(f, x)
		case FlowFork:
			for _, target := range f.targets[1:] {
				w.sim.spawn(x.element, target).start(w)
			}
			x.flow = f.targets[0]
		case FlowJoin:
			if !x.element.arrive(f) {
				x.flow = nil
				x.terminate(w)
				return
			}
			x.flow = f.next
		}
	}
}

// startActivity is called by the owning manager's sweep once a workgroup
// solution has been committed to x.
func (x *FlowExecutor) startActivity(w *Worker, wg *WorkGroup, res []caught) {
	x.mu.Lock()
	defer x.mu.Unlock()
	now := w.Now()
	x.state = execRunning
	x.held = append(x.held, heldGroup{flow: x.flow, workGroup: wg, caught: res})
	var d int64
	if x.resumed {
		d = x.remaining
	} else {
		d = wg.Duration(x)
	}
	x.remaining = 0
	x.resumed = false
	x.finishAt = now + d
	x.attempt++
	for _, c := range res {
		c.resource.holdUntil(x.finishAt)
	}
	for _, c := range res {
		x.notify(w, trace.KindResourceAcquired, trace.Record{
			Activity: x.activity.name, WorkGroup: wg.index,
			Resource: c.resource.name, ResourceType: c.rtype.name,
		})
	}
	x.notify(w, trace.KindActivityStarted, trace.Record{Activity: x.activity.name, WorkGroup: wg.index})
	logrus.Debugf("[tick %07d] %s started %s with workgroup %d until %d", now, x, x.activity.name, wg.index, x.finishAt)
	w.Schedule(&FinishActivityEvent{BaseEvent: newBaseEvent(x.finishAt), Executor: x, attempt: x.attempt})
}

func (x *FlowExecutor) finishActivity(w *Worker, attempt uint64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.state != execRunning || attempt != x.attempt {
		return
	}
	f := x.flow
	wgIndex := x.held[len(x.held)-1].workGroup.index
	if !f.hold {
		x.releaseHeld(w, f, false)
	}
	x.notify(w, trace.KindActivityFinished, trace.Record{Activity: x.activity.name, WorkGroup: wgIndex})
	x.state = execIdle
	x.activity = nil
	x.flow = f.next
	x.proceed(w)
}

// start runs a freshly spawned strand until it waits or ends.
func (x *FlowExecutor) start(w *Worker) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.proceed(w)
}

func (x *FlowExecutor) resume(w *Worker) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.state != execDelaying {
		return
	}
	x.state = execIdle
	x.proceed(w)
}

// interrupt stops a running interruptible activity whose resource lost its
// binding. The resources are released, the remaining duration is kept and
// the request is queued again. Returns false if x was not interrupted, in
// particular when r belongs to a group held by an earlier request.
func (x *FlowExecutor) interrupt(w *Worker, r *Resource) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.state != execRunning || !x.activity.interruptible {
		return false
	}
	current := x.held[len(x.held)-1]
	if current.flow != x.flow || !current.holds(r) {
		return false
	}
	now := w.Now()
	if x.finishAt <= now {
		return false
	}
	x.remaining = x.finishAt - now
	x.resumed = true
	x.attempt++
	x.releaseHeld(w, x.flow, true)
	x.notify(w, trace.KindActivityInterrupted, trace.Record{Activity: x.activity.name, Remaining: x.remaining})
	logrus.Debugf("[tick %07d] %s interrupted %s, %d remaining", now, x, x.activity.name, x.remaining)
	x.state = execWaiting
	x.requestedAt = now
	x.activity.manager.request(x)
	return true
}

// releaseHeld releases the group caught by the request flow f, or every
// group when f is nil. Expired bindings are reported unless the release is
// an interruption.
func (x *FlowExecutor) releaseHeld(w *Worker, f *Flow, interrupted bool) {
	kept := x.held[:0]
	var release []heldGroup
	for _, g := range x.held {
		if f == nil || g.flow == f {
			release = append(release, g)
			continue
		}
		kept = append(kept, g)
	}
	x.held = kept
	for gi := len(release) - 1; gi >= 0; gi-- {
		g := release[gi]
		for i := len(g.caught) - 1; i >= 0; i-- {
			c := g.caught[i]
			rec := trace.Record{
				Activity: g.flow.activity.name, WorkGroup: g.workGroup.index,
				Resource: c.resource.name, ResourceType: c.rtype.name,
			}
			if !c.resource.Release() && !interrupted {
				logrus.Warnf("[tick %07d] resource %s expired while held by %s", w.Now(), c.resource.name, x)
				x.notify(w, trace.KindResourceExpired, rec)
			}
			x.notify(w, trace.KindResourceReleased, rec)
		}
	}
}

// terminate ends the strand, releasing anything still held.
func (x *FlowExecutor) terminate(w *Worker) {
	if len(x.held) > 0 {
		x.releaseHeld(w, nil, false)
	}
	x.state = execDone
	w.sim.retire(w, x)
}
