package sim

import "github.com/parades/parades/sim/trace"

// Listener receives kernel notifications. Notify is called from every worker
// goroutine and must be safe for concurrent use.
type Listener interface {
	Notify(rec trace.Record)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(rec trace.Record)

func (f ListenerFunc) Notify(rec trace.Record) {
	f(rec)
}
