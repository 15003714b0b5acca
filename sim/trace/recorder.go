package trace

import (
	"sort"
	"sync"
)

// Recorder collects notifications during a simulation run.
// Safe for concurrent use: the kernel notifies from every worker goroutine.
type Recorder struct {
	mu      sync.Mutex
	RunID   string
	records []Record
}

// NewRecorder creates a Recorder ready for recording.
func NewRecorder() *Recorder {
	return &Recorder{
		records: make([]Record, 0),
	}
}

// Notify appends a record.
func (r *Recorder) Notify(rec Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// Records returns a copy of the records in arrival order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Filter returns the records of the given kinds, in arrival order.
func (r *Recorder) Filter(kinds ...Kind) []Record {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []Record
	for _, rec := range r.Records() {
		if want[rec.Kind] {
			out = append(out, rec)
		}
	}
	return out
}

// Canonical returns the records sorted by clock, kind and element, breaking
// ties on the remaining fields. Notifications produced by different workers within
// the same tick arrive in no particular order; the canonical form makes runs
// comparable.
func Canonical(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Clock != b.Clock {
			return a.Clock < b.Clock
		}
		if kindOrder[a.Kind] != kindOrder[b.Kind] {
			return kindOrder[a.Kind] < kindOrder[b.Kind]
		}
		if a.Element != b.Element {
			return a.Element < b.Element
		}
		if a.Activity != b.Activity {
			return a.Activity < b.Activity
		}
		if a.Resource != b.Resource {
			return a.Resource < b.Resource
		}
		if a.ResourceType != b.ResourceType {
			return a.ResourceType < b.ResourceType
		}
		return a.WorkGroup < b.WorkGroup
	})
	// Worker assignment is not part of the observable behavior.
	for i := range out {
		out[i].Worker = 0
	}
	return out
}
