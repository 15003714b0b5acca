// Package trace provides notification records emitted by the simulation kernel.
// This package has no dependencies on sim/ and stores pure data types.
package trace

// Kind identifies the type of a kernel notification.
type Kind string

const (
	KindSimulationStarted   Kind = "SimulationStarted"
	KindSimulationEnded     Kind = "SimulationEnded"
	KindClockAdvanced       Kind = "ClockAdvanced"
	KindElementCreated      Kind = "ElementCreated"
	KindElementFinished     Kind = "ElementFinished"
	KindActivityRequested   Kind = "ActivityRequested"
	KindActivityStarted     Kind = "ActivityStarted"
	KindActivityInterrupted Kind = "ActivityInterrupted"
	KindActivityFinished    Kind = "ActivityFinished"
	KindResourceAcquired    Kind = "ResourceAcquired"
	KindResourceReleased    Kind = "ResourceReleased"
	// KindResourceExpired is the cancellation notice for a resource whose
	// availability window closed while it was held.
	KindResourceExpired Kind = "ResourceExpired"
	KindRoleOn          Kind = "RoleOn"
	KindRoleOff         Kind = "RoleOff"
)

// kindOrder fixes a stable order between kinds emitted at the same clock value.
var kindOrder = map[Kind]int{
	KindSimulationStarted:   0,
	KindClockAdvanced:       1,
	KindRoleOn:              2,
	KindRoleOff:             3,
	KindElementCreated:      4,
	KindActivityRequested:   5,
	KindActivityInterrupted: 6,
	KindResourceExpired:     7,
	KindResourceReleased:    8,
	KindActivityFinished:    9,
	KindResourceAcquired:    10,
	KindActivityStarted:     11,
	KindElementFinished:     12,
	KindSimulationEnded:     13,
}

// Record captures a single notification. Fields that do not apply to the
// kind are left at their zero value (Element is -1 when no element is involved).
type Record struct {
	Kind         Kind
	Clock        int64
	Element      int64
	Activity     string
	WorkGroup    int
	Resource     string
	ResourceType string
	Worker       int
	Remaining    int64 // remaining duration of an interrupted activity
}
