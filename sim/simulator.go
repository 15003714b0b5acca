package sim

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/parades/parades/sim/trace"
	"github.com/sirupsen/logrus"
)

// State is the phase of the simulation clock.
type State int32

const (
	StateIdle State = iota
	StateAdvancing
	StateDispatching
	StateSweeping
	StateEnded
)

var stateNames = [...]string{"idle", "advancing", "dispatching", "sweeping", "ended"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// SimConfig groups run parameters.
type SimConfig struct {
	StartTs int64 // clock value at start
	EndTs   int64 // events at or after EndTs are not executed
	Workers int   // worker goroutines (0 = runtime.NumCPU())
	Seed    int64 // master seed for workgroup tie-breaks and branch draws
}

// Simulator owns the clock, the future-event heap, the activity managers and
// the worker pool of one run.
type Simulator struct {
	config   SimConfig
	model    *Model
	runID    string
	managers []*ActivityManager
	rng      *PartitionedRNG

	clock atomic.Int64
	state atomic.Int32
	heap  *EventHeap
	ticks int

	executors *Arena[*FlowExecutor]
	listeners []Listener

	workers  []*Worker
	barrier  *Barrier
	inflight sync.WaitGroup
	batch    []Event
	done     bool
	failed   atomic.Bool
	err      error
	hasRun   atomic.Bool
}

// NewSimulator validates the model, partitions it into activity managers and
// returns a simulator ready to run. Construction errors are returned before
// anything runs.
func NewSimulator(model *Model, config SimConfig) (*Simulator, error) {
	if model == nil {
		return nil, errors.New("simulator: nil model")
	}
	if config.EndTs <= config.StartTs {
		return nil, fmt.Errorf("simulator: end %d must be after start %d", config.EndTs, config.StartTs)
	}
	if config.Workers < 0 {
		return nil, fmt.Errorf("simulator: workers must be >= 0, got %d", config.Workers)
	}
	if config.Workers == 0 {
		config.Workers = runtime.NumCPU()
	}
	if model.partitioned {
		return nil, errors.New("simulator: model already belongs to a simulator")
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	s := &Simulator{
		config:    config,
		model:     model,
		runID:     uuid.New().String(),
		rng:       NewPartitionedRNG(NewSimulationKey(config.Seed)),
		heap:      NewEventHeap(),
		executors: NewArena[*FlowExecutor](),
	}
	s.managers = Partition(model, s.rng)
	model.partitioned = true
	s.clock.Store(config.StartTs)
	return s, nil
}

func (s *Simulator) RunID() string                { return s.runID }
func (s *Simulator) Config() SimConfig            { return s.config }
func (s *Simulator) Model() *Model                { return s.model }
func (s *Simulator) Managers() []*ActivityManager { return s.managers }
func (s *Simulator) Clock() int64                 { return s.clock.Load() }
func (s *Simulator) State() State                 { return State(s.state.Load()) }

// Ticks returns the number of batches dispatched so far.
func (s *Simulator) Ticks() int { return s.ticks }

// LiveExecutors returns the number of flow executors that have not finished.
func (s *Simulator) LiveExecutors() int { return s.executors.Len() }

// Executor looks up a live executor by handle.
func (s *Simulator) Executor(h Handle) (*FlowExecutor, bool) {
	return s.executors.Get(h)
}

// AddListener registers a listener. Must be called before Run.
func (s *Simulator) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

func (s *Simulator) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Simulator) notify(rec trace.Record) {
	for _, l := range s.listeners {
		l.Notify(rec)
	}
}

// Schedule adds an event to the future-event heap before Run. Events raised
// during the run go through Worker.Schedule; once Run has started Schedule
// returns ErrRunStarted. Scheduling before the clock returns a
// *CausalityError and leaves the clock unchanged.
func (s *Simulator) Schedule(ev Event) error {
	if s.hasRun.Load() {
		return ErrRunStarted
	}
	if now := s.Clock(); ev.Timestamp() < now {
		return &CausalityError{Now: now, Timestamp: ev.Timestamp(), Event: ev.Name()}
	}
	s.heap.Schedule(ev)
	return nil
}

// AdvanceTo moves the clock of an idle simulator forward. Moving it
// backwards, or past an event already scheduled, returns a
// *CausalityError.
func (s *Simulator) AdvanceTo(ts int64) error {
	if s.hasRun.Load() {
		return ErrRunStarted
	}
	if now := s.Clock(); ts < now {
		return &CausalityError{Now: now, Timestamp: ts, Event: "clock advance"}
	}
	if next := s.heap.Peek(); next != nil && next.Timestamp() < ts {
		return &CausalityError{Now: ts, Timestamp: next.Timestamp(), Event: next.Name()}
	}
	s.clock.Store(ts)
	return nil
}

// Run executes the simulation until no events remain or EndTs is reached.
// It returns the first error raised by any worker; partial results of a
// failed run are not valid.
func (s *Simulator) Run() error {
	if !s.hasRun.CompareAndSwap(false, true) {
		return ErrAlreadyRan
	}
	log := logrus.WithFields(logrus.Fields{"run": s.runID, "workers": s.config.Workers})

	s.scheduleInitialEvents()
	s.notify(trace.Record{Kind: trace.KindSimulationStarted, Clock: s.Clock(), Element: -1})
	log.Infof("Starting simulation with %d managers, start=%d end=%d", len(s.managers), s.config.StartTs, s.config.EndTs)

	s.workers = make([]*Worker, s.config.Workers)
	for i := range s.workers {
		s.workers[i] = &Worker{id: i, sim: s}
	}
	for i, m := range s.managers {
		w := s.workers[i%len(s.workers)]
		m.worker = w.id
		w.managers = append(w.managers, m)
	}
	s.barrier = NewBarrier(len(s.workers), s.advance)

	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.run()
		}(w)
	}
	wg.Wait()

	s.setState(StateEnded)
	s.notify(trace.Record{Kind: trace.KindSimulationEnded, Clock: s.Clock(), Element: -1})
	if s.err != nil {
		log.Errorf("Simulation aborted at %d: %v", s.Clock(), s.err)
		return s.err
	}
	log.Infof("[tick %07d] Simulation ended after %d ticks", s.Clock(), s.ticks)
	return nil
}

func (s *Simulator) scheduleInitialEvents() {
	start := s.Clock()
	for _, r := range s.model.resources {
		for _, entry := range r.timetable {
			if at, ok := entry.Cycle.Next(start); ok {
				s.heap.Schedule(&RoleOnEvent{BaseEvent: newBaseEvent(at), Resource: r, Entry: entry})
			}
		}
	}
	for _, g := range s.model.generators {
		if at, ok := g.Cycle.Next(start); ok {
			s.heap.Schedule(&GenerateEvent{BaseEvent: newBaseEvent(at), Generator: g})
		}
	}
}

// advance is the barrier action: it runs in exactly one worker while all
// others wait. It merges the workers' pending buffers into the heap,
// collects failures, and pops the next batch or ends the run.
func (s *Simulator) advance() {
	defer func() {
		if p := recover(); p != nil {
			s.err = fmt.Errorf("clock advance: %v", p)
			s.done = true
		}
	}()
	s.setState(StateAdvancing)
	var errs []error
	for _, w := range s.workers {
		if w.err != nil {
			errs = append(errs, w.err)
			w.err = nil
		}
		for _, ev := range w.pending {
			s.heap.Schedule(ev)
		}
		w.pending = w.pending[:0]
	}
	if len(errs) > 0 {
		s.err = errors.Join(errs...)
		s.done = true
		return
	}

	next := s.heap.Peek()
	if next == nil || next.Timestamp() >= s.config.EndTs {
		if next != nil {
			s.clock.Store(s.config.EndTs)
		}
		s.batch = nil
		s.done = true
		return
	}
	if ts := next.Timestamp(); ts > s.Clock() {
		s.clock.Store(ts)
		s.notify(trace.Record{Kind: trace.KindClockAdvanced, Clock: ts, Element: -1})
	}
	s.batch = s.heap.PopBatch()
	s.ticks++
	s.inflight.Add(len(s.batch))
	s.setState(StateDispatching)
	logrus.Debugf("[tick %07d] dispatching %d events", s.Clock(), len(s.batch))
}

// startElement creates an element and its first strand at flow.
func (s *Simulator) startElement(w *Worker, kind string, id int64, flow *Flow) *Element {
	e := &Element{
		id:    id,
		kind:  kind,
		sim:   s,
		joins: make(map[*Flow]int),
		attrs: make(map[string]float64),
		rng:   s.rng.ForSubsystem(SubsystemElement(id)),
	}
	w.Notify(trace.Record{Kind: trace.KindElementCreated, Element: id})
	s.spawn(e, flow).start(w)
	return e
}

// spawn creates a new strand of e positioned at flow.
func (s *Simulator) spawn(e *Element, flow *Flow) *FlowExecutor {
	e.mu.Lock()
	seq := e.spawned
	e.spawned++
	e.live++
	e.mu.Unlock()
	x := &FlowExecutor{key: executorKey{element: e.id, seq: seq}, element: e, flow: flow}
	x.handle = s.executors.Insert(x)
	return x
}

// retire removes a finished strand; the element finishes with its last
// strand.
func (s *Simulator) retire(w *Worker, x *FlowExecutor) {
	s.executors.Remove(x.handle)
	e := x.element
	e.mu.Lock()
	e.live--
	last := e.live == 0
	e.mu.Unlock()
	if last {
		s.rng.Forget(SubsystemElement(e.id))
		w.Notify(trace.Record{Kind: trace.KindElementFinished, Element: e.id})
	}
}

// StartElement creates an element outside any generator and starts its
// flow. Intended for ActionEvents that inject work.
func (w *Worker) StartElement(kind string, id int64, flow *Flow) *Element {
	return w.sim.startElement(w, kind, id, flow)
}
