package sim

import (
	"sync"
	"testing"

	"github.com/parades/parades/sim/trace"
	"github.com/stretchr/testify/require"
)

// permanentResource adds a resource available as every given type for the
// whole run.
func permanentResource(m *Model, name string, types ...*ResourceType) *Resource {
	r := m.NewResource(name)
	m.AddTimetableEntry(r, NewPermanentEntry(0, types...))
	return r
}

// mustWorkGroup builds a workgroup and attaches it to a.
func mustWorkGroup(t *testing.T, a *Activity, priority int, duration int64, needs ...Need) *WorkGroup {
	t.Helper()
	wg, err := NewWorkGroup(priority, Constant(duration), needs...)
	require.NoError(t, err)
	require.NoError(t, a.AddWorkGroup(wg))
	return wg
}

// oneShot creates count elements running flow at time at.
func oneShot(m *Model, name string, at int64, count int, flow *Flow) *Generator {
	return m.NewGenerator(name, name, PeriodicCycle{Start: at}, count, flow)
}

// runModel runs m to completion and returns the recorded notifications.
func runModel(t *testing.T, m *Model, cfg SimConfig) (*Simulator, *trace.Recorder) {
	t.Helper()
	s, err := NewSimulator(m, cfg)
	require.NoError(t, err)
	rec := trace.NewRecorder()
	s.AddListener(rec)
	require.NoError(t, s.Run())
	return s, rec
}

// clocksOf returns the clock values of the records of kind, in arrival order.
func clocksOf(rec *trace.Recorder, kind trace.Kind) []int64 {
	var out []int64
	for _, r := range rec.Filter(kind) {
		out = append(out, r.Clock)
	}
	return out
}

// holdingListener fails the test if a resource is acquired while another
// executor still holds it.
type holdingListener struct {
	t        *testing.T
	mu       sync.Mutex
	holders  map[string]int64
	acquired int
}

func newHoldingListener(t *testing.T) *holdingListener {
	return &holdingListener{t: t, holders: make(map[string]int64)}
}

func (l *holdingListener) Notify(rec trace.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch rec.Kind {
	case trace.KindResourceAcquired:
		if h, ok := l.holders[rec.Resource]; ok {
			l.t.Errorf("resource %s acquired by element %d at %d while held by element %d", rec.Resource, rec.Element, rec.Clock, h)
		}
		l.holders[rec.Resource] = rec.Element
		l.acquired++
	case trace.KindResourceReleased:
		delete(l.holders, rec.Resource)
	}
}

// testExecutor returns a detached executor for exercising searches and
// resources without a running simulator.
func testExecutor(id int64) *FlowExecutor {
	e := &Element{id: id, kind: "test", joins: make(map[*Flow]int), attrs: make(map[string]float64)}
	return &FlowExecutor{key: executorKey{element: id}, element: e}
}

// availableResource adds a resource that currently carries every given
// binding.
func availableResource(m *Model, name string, types ...*ResourceType) *Resource {
	r := m.NewResource(name)
	for _, t := range types {
		r.AddRole(t, Forever)
	}
	return r
}
