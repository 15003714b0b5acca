package sim

import (
	"sort"
	"sync"
)

// ResourceType is a named pool of interchangeable resources. The available
// set holds every resource that currently carries the binding and is not
// held, kept sorted by resource id so searches scan in index order.
type ResourceType struct {
	id   int
	name string

	mu        sync.Mutex
	available []*Resource

	// members are the resources whose timetable mentions this type.
	members  []*Resource
	managers []*ActivityManager
}

func (t *ResourceType) ID() int      { return t.id }
func (t *ResourceType) Name() string { return t.name }

// Manager returns the activity manager that owns this type after
// partitioning, or nil before.
func (t *ResourceType) Manager() *ActivityManager {
	if len(t.managers) == 0 {
		return nil
	}
	return t.managers[0]
}

// Available returns a snapshot of the available resources in index order.
func (t *ResourceType) Available() []*Resource {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Resource, len(t.available))
	copy(out, t.available)
	return out
}

// AvailableCount returns the number of available resources.
func (t *ResourceType) AvailableCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.available)
}

// Counts reports how many member resources are available, held under this
// binding, and held under this binding after it expired.
func (t *ResourceType) Counts() (available, held, expired int) {
	available = t.AvailableCount()
	for _, r := range t.members {
		h, e := r.heldAs(t)
		if h {
			held++
		}
		if e {
			expired++
		}
	}
	return available, held, expired
}

// addAvailable inserts r keeping index order. Returns false if r was
// already present.
func (t *ResourceType) addAvailable(r *Resource) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := sort.Search(len(t.available), func(i int) bool { return t.available[i].id >= r.id })
	if i < len(t.available) && t.available[i] == r {
		return false
	}
	t.available = append(t.available, nil)
	copy(t.available[i+1:], t.available[i:])
	t.available[i] = r
	return true
}

func (t *ResourceType) removeAvailable(r *Resource) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := sort.Search(len(t.available), func(i int) bool { return t.available[i].id >= r.id })
	if i == len(t.available) || t.available[i] != r {
		return false
	}
	t.available = append(t.available[:i], t.available[i+1:]...)
	return true
}

// notifyAvailable feeds r into the pending-availability queue of every
// manager referencing this type.
func (t *ResourceType) notifyAvailable(r *Resource) {
	for _, m := range t.managers {
		m.notifyAvailable(r)
	}
}

func (t *ResourceType) addMember(r *Resource) {
	for _, m := range t.members {
		if m == r {
			return
		}
	}
	t.members = append(t.members, r)
}

func (t *ResourceType) addManager(m *ActivityManager) {
	for _, existing := range t.managers {
		if existing == m {
			return
		}
	}
	t.managers = append(t.managers, m)
}
