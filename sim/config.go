package sim

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelConfig is the YAML description of a model and its run parameters.
type ModelConfig struct {
	Start   int64  `yaml:"start"`
	End     int64  `yaml:"end"`
	Workers int    `yaml:"workers"`
	Seed    int64  `yaml:"seed"`
	Origin  string `yaml:"origin"` // RFC 3339 wall-clock time of tick 0, for cron cycles
	Tick    string `yaml:"tick"`   // wall-clock length of one tick, for cron cycles

	ResourceTypes []string         `yaml:"resource_types"`
	Resources     []ResourceConfig `yaml:"resources"`
	Activities    []ActivityConfig `yaml:"activities"`
	Elements      []ElementConfig  `yaml:"elements"`
}

// CycleConfig describes either a periodic cycle or a cron cycle.
type CycleConfig struct {
	Start      int64  `yaml:"start"`
	Period     int64  `yaml:"period"`
	Iterations int    `yaml:"iterations"`
	Cron       string `yaml:"cron"`
}

// TimetableConfig is one availability entry of a resource.
type TimetableConfig struct {
	CycleConfig `yaml:",inline"`
	Types       []string `yaml:"types"`
	Duration    int64    `yaml:"duration"`
}

// ResourceConfig describes a resource, or Count identical resources named
// <name>_<i> when Count > 1. Types lists bindings available for the whole
// run; Timetable lists cyclic ones.
type ResourceConfig struct {
	Name      string            `yaml:"name"`
	Count     int               `yaml:"count"`
	Types     []string          `yaml:"types"`
	Timetable []TimetableConfig `yaml:"timetable"`
}

// NeedConfig is one requirement of a workgroup.
type NeedConfig struct {
	Type  string `yaml:"type"`
	Count int    `yaml:"count"`
}

// WorkGroupConfig describes a workgroup.
type WorkGroupConfig struct {
	Priority int          `yaml:"priority"`
	Duration int64        `yaml:"duration"`
	Needs    []NeedConfig `yaml:"needs"`
}

// ActivityConfig describes an activity.
type ActivityConfig struct {
	Name          string            `yaml:"name"`
	Priority      int               `yaml:"priority"`
	Interruptible bool              `yaml:"interruptible"`
	WorkGroups    []WorkGroupConfig `yaml:"workgroups"`
}

// OptionConfig is one option of a branch step.
type OptionConfig struct {
	Probability float64      `yaml:"probability"`
	Steps       []StepConfig `yaml:"steps"`
}

// StepConfig is one step of a flow. Exactly one of Request, Release, Delay,
// Branch or Fork is set. Branch options and fork strands rejoin the step
// that follows.
type StepConfig struct {
	Name    string         `yaml:"name"`
	Request string         `yaml:"request"`
	Hold    bool           `yaml:"hold"`
	Release string         `yaml:"release"`
	Delay   *int64         `yaml:"delay"`
	Branch  []OptionConfig `yaml:"branch"`
	Fork    [][]StepConfig `yaml:"fork"`
}

// GeneratorConfig describes how elements are created.
type GeneratorConfig struct {
	CycleConfig `yaml:",inline"`
	Count       int `yaml:"count"`
}

// ElementConfig describes an element kind, its flow and its generator.
type ElementConfig struct {
	Name      string          `yaml:"name"`
	Flow      []StepConfig    `yaml:"flow"`
	Generator GeneratorConfig `yaml:"generator"`
}

// LoadModelConfig reads and parses a YAML model file.
func LoadModelConfig(path string) (*ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model config: %w", err)
	}
	return ParseModelConfig(data)
}

// ParseModelConfig parses a YAML model description. Unknown fields are
// rejected.
func ParseModelConfig(data []byte) (*ModelConfig, error) {
	var cfg ModelConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing model config: %w", err)
	}
	return &cfg, nil
}

// SimConfig returns the run parameters of the configuration.
func (c *ModelConfig) SimConfig() SimConfig {
	return SimConfig{StartTs: c.Start, EndTs: c.End, Workers: c.Workers, Seed: c.Seed}
}

func (c *ModelConfig) clock() (time.Time, time.Duration, error) {
	origin := time.Unix(0, 0).UTC()
	if c.Origin != "" {
		t, err := time.Parse(time.RFC3339, c.Origin)
		if err != nil {
			return origin, 0, fmt.Errorf("origin: %w", err)
		}
		origin = t
	}
	unit := time.Minute
	if c.Tick != "" {
		d, err := time.ParseDuration(c.Tick)
		if err != nil {
			return origin, 0, fmt.Errorf("tick: %w", err)
		}
		unit = d
	}
	return origin, unit, nil
}

func (c *ModelConfig) cycle(cc CycleConfig, origin time.Time, unit time.Duration) (Cycle, error) {
	if cc.Cron != "" {
		return NewCronCycle(cc.Cron, origin, unit)
	}
	return PeriodicCycle{Start: cc.Start, Period: cc.Period, Iterations: cc.Iterations}, nil
}

// Validate checks run parameters and names before the model is built.
func (c *ModelConfig) Validate() error {
	if c.End <= c.Start {
		return fmt.Errorf("end %d must be after start %d", c.End, c.Start)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	for _, rc := range c.Resources {
		if rc.Name == "" {
			return errors.New("resource without a name")
		}
		if rc.Count < 0 {
			return fmt.Errorf("resource %q: count must be non-negative, got %d", rc.Name, rc.Count)
		}
	}
	for _, ac := range c.Activities {
		if ac.Name == "" {
			return errors.New("activity without a name")
		}
	}
	for _, ec := range c.Elements {
		if ec.Name == "" {
			return errors.New("element without a name")
		}
		if ec.Generator.Count < 0 {
			return fmt.Errorf("element %q: generator count must be non-negative, got %d", ec.Name, ec.Generator.Count)
		}
	}
	return nil
}

// Build turns the configuration into a validated Model.
func (c *ModelConfig) Build() (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	origin, unit, err := c.clock()
	if err != nil {
		return nil, err
	}
	m := NewModel()

	types := make(map[string]*ResourceType, len(c.ResourceTypes))
	for _, name := range c.ResourceTypes {
		if types[name] != nil {
			return nil, fmt.Errorf("resource type %q defined twice", name)
		}
		types[name] = m.NewResourceType(name)
	}
	lookupTypes := func(names []string) ([]*ResourceType, error) {
		out := make([]*ResourceType, 0, len(names))
		for _, n := range names {
			t := types[n]
			if t == nil {
				return nil, fmt.Errorf("unknown resource type %q", n)
			}
			out = append(out, t)
		}
		return out, nil
	}

	for _, rc := range c.Resources {
		n := max(rc.Count, 1)
		for i := 0; i < n; i++ {
			name := rc.Name
			if rc.Count > 1 {
				name = fmt.Sprintf("%s_%d", rc.Name, i)
			}
			r := m.NewResource(name)
			if len(rc.Types) > 0 {
				ts, err := lookupTypes(rc.Types)
				if err != nil {
					return nil, fmt.Errorf("resource %q: %w", name, err)
				}
				m.AddTimetableEntry(r, NewPermanentEntry(c.Start, ts...))
			}
			for _, tc := range rc.Timetable {
				ts, err := lookupTypes(tc.Types)
				if err != nil {
					return nil, fmt.Errorf("resource %q: %w", name, err)
				}
				cyc, err := c.cycle(tc.CycleConfig, origin, unit)
				if err != nil {
					return nil, fmt.Errorf("resource %q: %w", name, err)
				}
				entry, err := NewTimetableEntry(cyc, tc.Duration, ts...)
				if err != nil {
					return nil, fmt.Errorf("resource %q: %w", name, err)
				}
				m.AddTimetableEntry(r, entry)
			}
		}
	}

	activities := make(map[string]*Activity, len(c.Activities))
	for _, ac := range c.Activities {
		if activities[ac.Name] != nil {
			return nil, fmt.Errorf("activity %q defined twice", ac.Name)
		}
		opts := []ActivityOption{WithPriority(ac.Priority)}
		if ac.Interruptible {
			opts = append(opts, Interruptible())
		}
		a := m.NewActivity(ac.Name, opts...)
		activities[ac.Name] = a
		for _, wc := range ac.WorkGroups {
			needs := make([]Need, 0, len(wc.Needs))
			for _, nc := range wc.Needs {
				t := types[nc.Type]
				if t == nil {
					return nil, fmt.Errorf("activity %q: unknown resource type %q", ac.Name, nc.Type)
				}
				needs = append(needs, Need{Type: t, Count: nc.Count})
			}
			wg, err := NewWorkGroup(wc.Priority, Constant(wc.Duration), needs...)
			if err != nil {
				return nil, fmt.Errorf("activity %q: %w", ac.Name, err)
			}
			if err := a.AddWorkGroup(wg); err != nil {
				return nil, err
			}
		}
	}

	for _, ec := range c.Elements {
		b := &flowBuilder{model: m, activities: activities, holds: make(map[string]*Flow)}
		head, err := b.build(ec.Flow, nil)
		if err != nil {
			return nil, fmt.Errorf("element %q: %w", ec.Name, err)
		}
		if err := b.resolveReleases(); err != nil {
			return nil, fmt.Errorf("element %q: %w", ec.Name, err)
		}
		if head == nil {
			return nil, fmt.Errorf("element %q: empty flow", ec.Name)
		}
		cyc, err := c.cycle(ec.Generator.CycleConfig, origin, unit)
		if err != nil {
			return nil, fmt.Errorf("element %q: %w", ec.Name, err)
		}
		m.NewGenerator(ec.Name, ec.Name, cyc, max(ec.Generator.Count, 1), head)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// flowBuilder turns a list of steps into a flow graph.
type flowBuilder struct {
	model      *Model
	activities map[string]*Activity
	holds      map[string]*Flow
	releases   map[*Flow]string
}

// build creates the flow for steps, linking the last step to cont. Returns
// cont for an empty list.
func (b *flowBuilder) build(steps []StepConfig, cont *Flow) (*Flow, error) {
	head := cont
	for i := len(steps) - 1; i >= 0; i-- {
		f, err := b.step(steps[i], head)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		head = f
	}
	return head, nil
}

func (b *flowBuilder) step(sc StepConfig, next *Flow) (*Flow, error) {
	set := 0
	for _, ok := range []bool{sc.Request != "", sc.Release != "", sc.Delay != nil, len(sc.Branch) > 0, len(sc.Fork) > 0} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, errors.New("exactly one of request, release, delay, branch, fork must be set")
	}
	m := b.model
	switch {
	case sc.Request != "":
		a := b.activities[sc.Request]
		if a == nil {
			return nil, fmt.Errorf("unknown activity %q", sc.Request)
		}
		name := sc.Name
		if name == "" {
			name = sc.Request
		}
		f := m.NewRequestFlow(name, a, sc.Hold)
		if sc.Hold {
			b.holds[name] = f
		}
		f.Then(next)
		return f, nil
	case sc.Release != "":
		f := m.NewReleaseFlow(sc.Name, nil)
		if b.releases == nil {
			b.releases = make(map[*Flow]string)
		}
		b.releases[f] = sc.Release
		f.Then(next)
		return f, nil
	case sc.Delay != nil:
		if *sc.Delay < 0 {
			return nil, fmt.Errorf("negative delay %d", *sc.Delay)
		}
		f := m.NewDelayFlow(sc.Name, Constant(*sc.Delay))
		f.Then(next)
		return f, nil
	case len(sc.Branch) > 0:
		options := make([]BranchOption, 0, len(sc.Branch))
		for i, oc := range sc.Branch {
			target, err := b.build(oc.Steps, next)
			if err != nil {
				return nil, fmt.Errorf("branch option %d: %w", i, err)
			}
			options = append(options, BranchOption{Target: target, Probability: oc.Probability})
		}
		f := m.NewBranchFlow(sc.Name, options...)
		f.Then(next)
		return f, nil
	default:
		join := m.NewJoinFlow(sc.Name, len(sc.Fork))
		join.Then(next)
		targets := make([]*Flow, 0, len(sc.Fork))
		for i, strand := range sc.Fork {
			target, err := b.build(strand, join)
			if err != nil {
				return nil, fmt.Errorf("fork strand %d: %w", i, err)
			}
			targets = append(targets, target)
		}
		return m.NewForkFlow(sc.Name, targets...), nil
	}
}

func (b *flowBuilder) resolveReleases() error {
	for f, name := range b.releases {
		req := b.holds[name]
		if req == nil {
			return fmt.Errorf("release of %q: no holding request with that name", name)
		}
		f.releases = req
	}
	return nil
}
