package sim

import "fmt"

// Activity is a task that needs the resources of one of its workgroups for
// the workgroup's duration.
type Activity struct {
	id            int
	name          string
	priority      int
	interruptible bool
	guard         Guard
	workGroups    []*WorkGroup
	manager       *ActivityManager
}

// ActivityOption configures an Activity.
type ActivityOption func(*Activity)

// WithPriority sets the queue priority of the activity (lower first).
func WithPriority(p int) ActivityOption {
	return func(a *Activity) { a.priority = p }
}

// Interruptible marks the activity as resumable: when a held resource's
// availability window closes, the activity releases its resources and is
// re-queued with the remaining duration.
func Interruptible() ActivityOption {
	return func(a *Activity) { a.interruptible = true }
}

// WithGuard attaches a condition that must hold before any workgroup is
// tried.
func WithGuard(g Guard) ActivityOption {
	return func(a *Activity) { a.guard = g }
}

func (a *Activity) ID() int                   { return a.id }
func (a *Activity) Name() string              { return a.name }
func (a *Activity) Priority() int             { return a.priority }
func (a *Activity) IsInterruptible() bool     { return a.interruptible }
func (a *Activity) WorkGroups() []*WorkGroup  { return a.workGroups }
func (a *Activity) Manager() *ActivityManager { return a.manager }

// AddWorkGroup attaches wg to the activity. A workgroup belongs to exactly
// one activity.
func (a *Activity) AddWorkGroup(wg *WorkGroup) error {
	if wg.activity != nil {
		return fmt.Errorf("activity %q: workgroup already belongs to activity %q", a.name, wg.activity.name)
	}
	wg.activity = a
	wg.index = len(a.workGroups)
	a.workGroups = append(a.workGroups, wg)
	return nil
}

// resourceTypes returns every type used by any workgroup of the activity.
func (a *Activity) resourceTypes() []*ResourceType {
	var out []*ResourceType
	seen := make(map[*ResourceType]bool)
	for _, wg := range a.workGroups {
		for _, n := range wg.needs {
			if !seen[n.Type] {
				seen[n.Type] = true
				out = append(out, n.Type)
			}
		}
	}
	return out
}

func (a *Activity) String() string {
	return a.name
}
