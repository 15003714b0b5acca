package sim

import (
	"errors"
	"fmt"
)

// ErrAlreadyRan is returned by Run when the simulator has already been run.
var ErrAlreadyRan = errors.New("simulator already ran")

// ErrRunStarted is returned by Schedule and AdvanceTo once Run has started.
var ErrRunStarted = errors.New("simulator run already started")

// CausalityError reports an event scheduled before the current clock.
// It indicates a model-construction bug and aborts the run.
type CausalityError struct {
	Now       int64
	Timestamp int64
	Event     string
}

func (e *CausalityError) Error() string {
	return fmt.Sprintf("causality violation: %s scheduled at %d while clock is at %d", e.Event, e.Timestamp, e.Now)
}

// WorkerError wraps a failure raised inside a worker goroutine.
type WorkerError struct {
	Worker int
	Clock  int64
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d failed at %d: %v", e.Worker, e.Clock, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}
