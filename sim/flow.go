package sim

import "fmt"

// FlowKind is the closed set of flow variants interpreted by FlowExecutor.
type FlowKind int

const (
	// FlowRequest requests an activity: wait for a feasible workgroup, hold
	// its resources for the workgroup duration, then release them unless
	// the flow holds them for a later FlowRelease.
	FlowRequest FlowKind = iota
	// FlowRelease releases the resources held by a FlowRequest.
	FlowRelease
	// FlowDelay waits for a duration without resources.
	FlowDelay
	// FlowBranch continues with exactly one of several options.
	FlowBranch
	// FlowFork continues along every target in parallel.
	FlowFork
	// FlowJoin continues once a number of strands of the same element arrived.
	FlowJoin
)

var flowKindNames = map[FlowKind]string{
	FlowRequest: "request",
	FlowRelease: "release",
	FlowDelay:   "delay",
	FlowBranch:  "branch",
	FlowFork:    "fork",
	FlowJoin:    "join",
}

func (k FlowKind) String() string {
	if name, ok := flowKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FlowKind(%d)", int(k))
}

// BranchOption is one outcome of a FlowBranch. Options with a guard and no
// probability are conditional: the first whose guard holds wins. Otherwise
// one draw picks among the probability options whose guard (if any) holds.
type BranchOption struct {
	Target      *Flow
	Probability float64
	Guard       Guard
}

// Flow is one node of a flow graph. A nil successor ends the strand.
type Flow struct {
	id   int
	kind FlowKind
	name string

	activity *Activity
	hold     bool
	releases *Flow
	delay    DurationFunc
	options  []BranchOption
	targets  []*Flow
	arrivals int

	next *Flow
}

func (f *Flow) ID() int             { return f.id }
func (f *Flow) Kind() FlowKind      { return f.kind }
func (f *Flow) Name() string        { return f.name }
func (f *Flow) Activity() *Activity { return f.activity }
func (f *Flow) Next() *Flow         { return f.next }

// Then links next as the successor of f and returns next for chaining.
func (f *Flow) Then(next *Flow) *Flow {
	f.next = next
	return next
}

func (f *Flow) String() string {
	if f.name != "" {
		return f.name
	}
	return fmt.Sprintf("%s#%d", f.kind, f.id)
}

func (f *Flow) validate() error {
	switch f.kind {
	case FlowRequest:
		if f.activity == nil {
			return fmt.Errorf("flow %s: request without activity", f)
		}
	case FlowRelease:
		if f.releases != nil && (f.releases.kind != FlowRequest || !f.releases.hold) {
			return fmt.Errorf("flow %s: releases %s which does not hold resources", f, f.releases)
		}
	case FlowDelay:
		if f.delay == nil {
			return fmt.Errorf("flow %s: nil delay", f)
		}
	case FlowBranch:
		if len(f.options) == 0 {
			return fmt.Errorf("flow %s: branch without options", f)
		}
		total := 0.0
		for _, o := range f.options {
			if o.Probability < 0 {
				return fmt.Errorf("flow %s: negative probability %f", f, o.Probability)
			}
			total += o.Probability
		}
		if total > 1+1e-9 {
			return fmt.Errorf("flow %s: probabilities sum to %f", f, total)
		}
	case FlowFork:
		if len(f.targets) == 0 {
			return fmt.Errorf("flow %s: fork without targets", f)
		}
	case FlowJoin:
		if f.arrivals < 1 {
			return fmt.Errorf("flow %s: join needs at least one arrival, got %d", f, f.arrivals)
		}
	}
	return nil
}
