package sim

import (
	"fmt"

	"github.com/parades/parades/sim/trace"
	"github.com/sirupsen/logrus"
)

type workerPhase int

const (
	phaseDispatch workerPhase = iota
	phaseSweep
)

// Worker is one goroutine of the parallel executor. It owns a fixed set of
// activity managers, executes its share of every batch and buffers the
// events it generates: events for the current timestamp raised while
// dispatching go to the local execution buffer, everything else to the
// local pending buffer merged at the barrier.
type Worker struct {
	id       int
	sim      *Simulator
	managers []*ActivityManager
	phase    workerPhase

	now     []Event
	pending []Event
	err     error

	executed int
	started  int
}

// ID returns the index of the worker.
func (w *Worker) ID() int { return w.id }

// Now returns the simulation clock of the current tick.
func (w *Worker) Now() int64 { return w.sim.Clock() }

// Simulator returns the simulator the worker belongs to.
func (w *Worker) Simulator() *Simulator { return w.sim }

// Managers returns the activity managers owned by the worker.
func (w *Worker) Managers() []*ActivityManager { return w.managers }

// Schedule buffers ev. Scheduling before the current clock is a causality
// violation that aborts the run.
func (w *Worker) Schedule(ev Event) {
	now := w.Now()
	switch {
	case ev.Timestamp() < now:
		w.fail(&CausalityError{Now: now, Timestamp: ev.Timestamp(), Event: ev.Name()})
	case ev.Timestamp() == now && w.phase == phaseDispatch:
		w.sim.inflight.Add(1)
		w.now = append(w.now, ev)
	default:
		w.pending = append(w.pending, ev)
	}
}

// Notify forwards a notification to the simulator's listeners.
func (w *Worker) Notify(rec trace.Record) {
	rec.Worker = w.id
	if rec.Clock == 0 {
		rec.Clock = w.Now()
	}
	w.sim.notify(rec)
}

func (w *Worker) fail(err error) {
	if w.err == nil {
		w.err = &WorkerError{Worker: w.id, Clock: w.Now(), Err: err}
	}
	w.sim.failed.Store(true)
}

// execute runs one event, turning a panic into a run failure.
func (w *Worker) execute(ev Event) {
	defer func() {
		if p := recover(); p != nil {
			if err, ok := p.(error); ok {
				w.fail(fmt.Errorf("event %s: %w", ev.Name(), err))
			} else {
				w.fail(fmt.Errorf("event %s: %v", ev.Name(), p))
			}
		}
	}()
	if w.sim.failed.Load() {
		return
	}
	logrus.Debugf("[tick %07d] worker %d executing %s", ev.Timestamp(), w.id, ev.Name())
	ev.Execute(w)
	w.executed++
}

func (w *Worker) sweep(m *ActivityManager) {
	defer func() {
		if p := recover(); p != nil {
			w.fail(fmt.Errorf("sweep of manager %d: %v", m.id, p))
		}
	}()
	if w.sim.failed.Load() {
		return
	}
	w.started += m.sweep(w)
}

// run is the per-worker loop of the two-phase tick protocol.
func (w *Worker) run() {
	s := w.sim
	for {
		s.barrier.Wait()
		if s.done {
			return
		}

		// dispatch: contiguous share of the batch, then the local buffer
		lo, hi := share(len(s.batch), w.id, len(s.workers))
		for _, ev := range s.batch[lo:hi] {
			w.execute(ev)
			s.inflight.Done()
		}
		for len(w.now) > 0 {
			ev := w.now[0]
			w.now[0] = nil
			w.now = w.now[1:]
			w.execute(ev)
			s.inflight.Done()
		}
		s.inflight.Wait()

		// sweep: only this worker touches its managers' waiting queues
		w.phase = phaseSweep
		s.setState(StateSweeping)
		for _, m := range w.managers {
			w.sweep(m)
		}
		w.phase = phaseDispatch
	}
}

// share returns the contiguous slice bounds of worker id's part of n items.
func share(n, id, workers int) (lo, hi int) {
	base, extra := n/workers, n%workers
	lo = id*base + min(id, extra)
	hi = lo + base
	if id < extra {
		hi++
	}
	return lo, hi
}

// openWindow adds the bindings of entry to r for one activation and
// schedules its end and the next activation.
func (w *Worker) openWindow(r *Resource, entry *TimetableEntry, at int64) {
	until := at + entry.Duration
	for _, t := range entry.Types {
		r.AddRole(t, until)
		w.Notify(trace.Record{Kind: trace.KindRoleOn, Element: -1, Resource: r.name, ResourceType: t.name})
	}
	w.Schedule(&RoleOffEvent{BaseEvent: newBaseEvent(until), Resource: r, Entry: entry})
	if next, ok := entry.Cycle.Next(at + 1); ok {
		w.Schedule(&RoleOnEvent{BaseEvent: newBaseEvent(next), Resource: r, Entry: entry})
	}
}

// closeWindow removes the bindings of entry from r. A holder whose binding
// closed is interrupted if its activity allows it; otherwise the resource
// stays held and is reported as expired when released.
func (w *Worker) closeWindow(r *Resource, entry *TimetableEntry) {
	for _, t := range entry.Types {
		if r.reopensAt(t, w.Now()) {
			continue
		}
		removed, holder := r.RemoveRole(t, w.Now())
		if !removed {
			continue
		}
		w.Notify(trace.Record{Kind: trace.KindRoleOff, Element: -1, Resource: r.name, ResourceType: t.name})
		if holder == nil {
			continue
		}
		if !holder.interrupt(w, r) {
			logrus.Debugf("[tick %07d] availability of %s as %s closed while held by %s", w.Now(), r.name, t.name, holder)
		}
	}
}

// generate creates the elements of one generator activation and schedules
// the next activation.
func (w *Worker) generate(g *Generator, at int64) {
	for i := 0; i < g.Count; i++ {
		w.sim.startElement(w, g.Kind, g.nextElementID(), g.Flow)
	}
	if next, ok := g.Cycle.Next(at + 1); ok {
		w.Schedule(&GenerateEvent{BaseEvent: newBaseEvent(next), Generator: g})
	}
}
