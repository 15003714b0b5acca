package sim

import (
	"sync"
)

// Resource is a unit of capacity with a time-limited availability schedule.
// A resource carries zero or more bindings (roles) to resource types, each
// valid until a timestamp, and has at most one holder at a time.
//
// Tentative bookings are transient: several concurrent searches may book the
// same resource, but only Commit makes an executor its holder.
type Resource struct {
	id   int
	name string

	mu       sync.Mutex
	roles    map[*ResourceType]int64
	holder   *FlowExecutor
	current  *ResourceType
	expired  bool
	bookings []*FlowExecutor

	// heldUntil is the end of the activity the resource was caught for.
	heldUntil int64

	// shared is set when the resource's bindings span several activity
	// managers; bookings on it go through the conflict-zone protocol.
	shared    bool
	timetable []*TimetableEntry
}

func (r *Resource) ID() int      { return r.id }
func (r *Resource) Name() string { return r.name }

// Shared reports whether the resource is referenced by more than one
// activity manager.
func (r *Resource) Shared() bool { return r.shared }

// Timetable returns the availability entries of the resource.
func (r *Resource) Timetable() []*TimetableEntry { return r.timetable }

// Holder returns the executor currently holding the resource, or nil.
func (r *Resource) Holder() *FlowExecutor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holder
}

// CurrentType returns the binding under which the resource is held, or nil.
func (r *Resource) CurrentType() *ResourceType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// HasRole reports whether the resource currently carries the binding t.
func (r *Resource) HasRole(t *ResourceType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.roles[t]
	return ok
}

// IsExpiredWhileHeld reports whether the binding of the current (or last)
// hold closed before the hold ended.
func (r *Resource) IsExpiredWhileHeld() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expired
}

// AddRole binds the resource to t until the given timestamp. Returns true
// if the resource became available for t, in which case every manager
// referencing t has been notified.
func (r *Resource) AddRole(t *ResourceType, until int64) bool {
	r.mu.Lock()
	if prev, ok := r.roles[t]; !ok || until > prev {
		r.roles[t] = until
	}
	if r.holder != nil {
		if r.current == t {
			r.expired = false
		}
		r.mu.Unlock()
		return false
	}
	added := t.addAvailable(r)
	r.mu.Unlock()
	if added {
		t.notifyAvailable(r)
	}
	return added
}

// RemoveRole drops the binding t unless a later window extended it past at.
// If the resource is held under t by an activity that does not end at
// exactly at, the expired flag is set and the holder is returned so the
// caller can interrupt or report it.
func (r *Resource) RemoveRole(t *ResourceType, at int64) (removed bool, holder *FlowExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.roles[t]
	if !ok || until > at {
		return false, nil
	}
	delete(r.roles, t)
	if r.holder == nil {
		t.removeAvailable(r)
		return true, nil
	}
	if r.current == t && r.heldUntil != at {
		r.expired = true
		return true, r.holder
	}
	return true, nil
}

// reopensAt reports whether one of r's timetable entries opens a window for
// t at exactly at. A window closing at that instant is then continued.
func (r *Resource) reopensAt(t *ResourceType, at int64) bool {
	for _, e := range r.timetable {
		if !e.covers(t) {
			continue
		}
		if next, ok := e.Cycle.Next(at); ok && next == at {
			return true
		}
	}
	return false
}

func (r *Resource) holdUntil(ts int64) {
	r.mu.Lock()
	r.heldUntil = ts
	r.mu.Unlock()
}

// TentativelyBook records x as contending for r under binding t. Returns
// false if r is held, lacks the binding, or x already booked it. For shared
// resources x's conflict zone is merged with the zone of every other
// executor booking r.
func (r *Resource) TentativelyBook(x *FlowExecutor, t *ResourceType) bool {
	// the zone must exist before x becomes visible to other bookers
	var zone *ConflictZone
	if r.shared {
		zone = x.ensureZone()
	}
	r.mu.Lock()
	if r.holder != nil {
		r.mu.Unlock()
		return false
	}
	if _, ok := r.roles[t]; !ok {
		r.mu.Unlock()
		return false
	}
	for _, b := range r.bookings {
		if b == x {
			r.mu.Unlock()
			return false
		}
	}
	var others []*FlowExecutor
	if r.shared {
		others = append(others, r.bookings...)
	}
	r.bookings = append(r.bookings, x)
	r.mu.Unlock()

	if r.shared {
		for _, o := range others {
			if oz := o.currentZone(); oz != nil {
				zone = mergeZones(zone, oz)
			}
		}
	}
	return true
}

// unbook withdraws a tentative booking of x.
func (r *Resource) unbook(x *FlowExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, b := range r.bookings {
		if b == x {
			r.bookings = append(r.bookings[:i], r.bookings[i+1:]...)
			return
		}
	}
}

// validFor reports whether a booking of r under t can still be committed.
func (r *Resource) validFor(t *ResourceType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holder != nil {
		return false
	}
	_, ok := r.roles[t]
	return ok
}

// Commit makes x the holder of r under binding t and removes r from every
// available set. Returns false if r was taken in the meantime.
func (r *Resource) Commit(x *FlowExecutor, t *ResourceType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holder != nil {
		return false
	}
	if _, ok := r.roles[t]; !ok {
		return false
	}
	r.holder = x
	r.current = t
	r.expired = false
	for i, b := range r.bookings {
		if b == x {
			r.bookings = append(r.bookings[:i], r.bookings[i+1:]...)
			break
		}
	}
	for rt := range r.roles {
		rt.removeAvailable(r)
	}
	return true
}

// Release frees the resource. It returns false when the held binding closed
// while held; in that case the resource is not re-added for that binding and
// the caller must report the cancellation. Remaining bindings are re-opened
// and their managers notified.
func (r *Resource) Release() bool {
	r.mu.Lock()
	ok := !r.expired
	r.holder = nil
	r.current = nil
	var reopened []*ResourceType
	for rt := range r.roles {
		if rt.addAvailable(r) {
			reopened = append(reopened, rt)
		}
	}
	r.mu.Unlock()
	for _, rt := range reopened {
		rt.notifyAvailable(r)
	}
	return ok
}

// heldAs reports whether r is held under binding t, and whether that hold
// has expired.
func (r *Resource) heldAs(t *ResourceType) (held, expired bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holder == nil || r.current != t {
		return false, false
	}
	return !r.expired, r.expired
}
