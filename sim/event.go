package sim

// Event defines the interface for all simulation events.
// Each event has a Timestamp (in ticks) and an Execute method that advances
// simulation state when invoked by a worker. Events at the same timestamp
// form one batch and carry no ordering guarantee across workers.
type Event interface {
	Timestamp() int64
	Seq() uint64
	Name() string
	Execute(w *Worker)
	setSeq(seq uint64)
}

// BaseEvent provides the common event fields.
type BaseEvent struct {
	timestamp int64
	seq       uint64
}

func newBaseEvent(timestamp int64) BaseEvent {
	return BaseEvent{timestamp: timestamp}
}

// Timestamp returns the scheduled time of the event.
func (e *BaseEvent) Timestamp() int64 {
	return e.timestamp
}

// Seq returns the sequence number assigned when the event entered the queue.
func (e *BaseEvent) Seq() uint64 {
	return e.seq
}

func (e *BaseEvent) setSeq(seq uint64) {
	e.seq = seq
}

// ActionEvent runs an opaque action at its timestamp.
type ActionEvent struct {
	BaseEvent
	name   string
	action func(w *Worker)
}

// NewActionEvent creates an event that calls action when executed.
func NewActionEvent(timestamp int64, name string, action func(w *Worker)) *ActionEvent {
	return &ActionEvent{
		BaseEvent: newBaseEvent(timestamp),
		name:      name,
		action:    action,
	}
}

func (e *ActionEvent) Name() string {
	return e.name
}

func (e *ActionEvent) Execute(w *Worker) {
	e.action(w)
}

// RoleOnEvent opens an availability window of a resource.
type RoleOnEvent struct {
	BaseEvent
	Resource *Resource
	Entry    *TimetableEntry
}

func (e *RoleOnEvent) Name() string {
	return "RoleOn(" + e.Resource.Name() + ")"
}

func (e *RoleOnEvent) Execute(w *Worker) {
	w.openWindow(e.Resource, e.Entry, e.timestamp)
}

// RoleOffEvent closes an availability window of a resource.
type RoleOffEvent struct {
	BaseEvent
	Resource *Resource
	Entry    *TimetableEntry
}

func (e *RoleOffEvent) Name() string {
	return "RoleOff(" + e.Resource.Name() + ")"
}

func (e *RoleOffEvent) Execute(w *Worker) {
	w.closeWindow(e.Resource, e.Entry)
}

// GenerateEvent creates the elements of one generator activation.
type GenerateEvent struct {
	BaseEvent
	Generator *Generator
}

func (e *GenerateEvent) Name() string {
	return "Generate(" + e.Generator.Name + ")"
}

func (e *GenerateEvent) Execute(w *Worker) {
	w.generate(e.Generator, e.timestamp)
}

// FinishActivityEvent ends the current activity of an executor. The attempt
// token makes the event a no-op once the activity has been interrupted.
type FinishActivityEvent struct {
	BaseEvent
	Executor *FlowExecutor
	attempt  uint64
}

func (e *FinishActivityEvent) Name() string {
	return "FinishActivity(" + e.Executor.String() + ")"
}

func (e *FinishActivityEvent) Execute(w *Worker) {
	e.Executor.finishActivity(w, e.attempt)
}

// ResumeEvent continues an executor after a delay flow.
type ResumeEvent struct {
	BaseEvent
	Executor *FlowExecutor
}

func (e *ResumeEvent) Name() string {
	return "Resume(" + e.Executor.String() + ")"
}

func (e *ResumeEvent) Execute(w *Worker) {
	e.Executor.resume(w)
}
