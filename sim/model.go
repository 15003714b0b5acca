package sim

import (
	"errors"
	"fmt"
)

// Model holds everything a simulation run needs: resource types, resources
// with their timetables, activities, flows and generators. Entities are
// stored in slices indexed by their id; the model is owned by exactly one
// Simulator.
type Model struct {
	types      []*ResourceType
	resources  []*Resource
	activities []*Activity
	flows      []*Flow
	generators []*Generator

	partitioned bool
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{}
}

func (m *Model) ResourceTypes() []*ResourceType { return m.types }
func (m *Model) Resources() []*Resource         { return m.resources }
func (m *Model) Activities() []*Activity        { return m.activities }
func (m *Model) Generators() []*Generator       { return m.generators }

// NewResourceType adds a resource type.
func (m *Model) NewResourceType(name string) *ResourceType {
	t := &ResourceType{id: len(m.types), name: name}
	m.types = append(m.types, t)
	return t
}

// NewResource adds a resource without any availability.
func (m *Model) NewResource(name string) *Resource {
	r := &Resource{id: len(m.resources), name: name, roles: make(map[*ResourceType]int64)}
	m.resources = append(m.resources, r)
	return r
}

// AddTimetableEntry gives r a cyclic availability window.
func (m *Model) AddTimetableEntry(r *Resource, entry *TimetableEntry) {
	r.timetable = append(r.timetable, entry)
	for _, t := range entry.Types {
		t.addMember(r)
	}
}

// NewActivity adds an activity.
func (m *Model) NewActivity(name string, opts ...ActivityOption) *Activity {
	a := &Activity{id: len(m.activities), name: name}
	for _, opt := range opts {
		opt(a)
	}
	m.activities = append(m.activities, a)
	return a
}

func (m *Model) addFlow(f *Flow) *Flow {
	f.id = len(m.flows)
	m.flows = append(m.flows, f)
	return f
}

// NewRequestFlow requests activity a. With hold set the resources stay
// caught after the activity finishes until a release flow frees them.
func (m *Model) NewRequestFlow(name string, a *Activity, hold bool) *Flow {
	return m.addFlow(&Flow{kind: FlowRequest, name: name, activity: a, hold: hold})
}

// NewReleaseFlow releases the resources held by request; nil releases
// everything the strand holds.
func (m *Model) NewReleaseFlow(name string, request *Flow) *Flow {
	return m.addFlow(&Flow{kind: FlowRelease, name: name, releases: request})
}

// NewDelayFlow waits for d without resources.
func (m *Model) NewDelayFlow(name string, d DurationFunc) *Flow {
	return m.addFlow(&Flow{kind: FlowDelay, name: name, delay: d})
}

// NewBranchFlow continues with one of options; the flow's own successor is
// the default when no option is chosen.
func (m *Model) NewBranchFlow(name string, options ...BranchOption) *Flow {
	return m.addFlow(&Flow{kind: FlowBranch, name: name, options: options})
}

// NewForkFlow continues along every target in parallel strands.
func (m *Model) NewForkFlow(name string, targets ...*Flow) *Flow {
	return m.addFlow(&Flow{kind: FlowFork, name: name, targets: targets})
}

// NewJoinFlow continues once arrivals strands of the same element reached it.
func (m *Model) NewJoinFlow(name string, arrivals int) *Flow {
	return m.addFlow(&Flow{kind: FlowJoin, name: name, arrivals: arrivals})
}

// NewGenerator adds an element generator.
func (m *Model) NewGenerator(name, kind string, cycle Cycle, count int, flow *Flow) *Generator {
	g := &Generator{index: len(m.generators), Name: name, Kind: kind, Cycle: cycle, Count: count, Flow: flow}
	m.generators = append(m.generators, g)
	return g
}

// Validate checks the model before a run. All problems are reported
// together.
func (m *Model) Validate() error {
	var errs []error
	types := make(map[*ResourceType]bool, len(m.types))
	for _, t := range m.types {
		types[t] = true
	}
	for _, a := range m.activities {
		if len(a.workGroups) == 0 {
			errs = append(errs, fmt.Errorf("activity %q has no workgroup", a.name))
		}
		for _, wg := range a.workGroups {
			for _, n := range wg.needs {
				if !types[n.Type] {
					errs = append(errs, fmt.Errorf("activity %q: resource type %q is not part of the model", a.name, n.Type.name))
				}
			}
		}
	}
	for _, r := range m.resources {
		for _, e := range r.timetable {
			for _, t := range e.Types {
				if !types[t] {
					errs = append(errs, fmt.Errorf("resource %q: resource type %q is not part of the model", r.name, t.name))
				}
			}
		}
	}
	for _, f := range m.flows {
		if err := f.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, g := range m.generators {
		if g.Cycle == nil {
			errs = append(errs, fmt.Errorf("generator %q: nil cycle", g.Name))
		}
		if g.Count < 1 {
			errs = append(errs, fmt.Errorf("generator %q: count must be >= 1, got %d", g.Name, g.Count))
		}
		if g.Flow == nil {
			errs = append(errs, fmt.Errorf("generator %q: nil flow", g.Name))
		}
	}
	return errors.Join(errs...)
}
