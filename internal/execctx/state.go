package execctx

// State is the lifecycle state of the execution context. Transitions are
// serialized: Stopped -> Starting -> Ready -> Stopping -> Stopped, with
// Starting -> Stopped on startup failure.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateReady
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// EventKind identifies a state-change notification.
type EventKind int

const (
	// EventStart fires after a subprocess reached ready.
	EventStart EventKind = iota
	// EventStop fires after a subprocess was stopped.
	EventStop
	// EventActivity fires after a successful proxied request.
	EventActivity
	// EventVariant fires when the execution variant changes.
	EventVariant
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventActivity:
		return "activity"
	case EventVariant:
		return "variant"
	default:
		return "unknown"
	}
}

// Event is delivered to state listeners on every transition.
type Event struct {
	Kind EventKind
	// Variant carries the new variant for EventVariant.
	Variant string
	// Endpoint carries the proxied endpoint for EventActivity.
	Endpoint string
}

// StateListener observes context transitions. Listeners are invoked
// synchronously with all context locks released; a panicking listener is
// logged and isolated, never propagated to the triggering transition.
type StateListener interface {
	OnStateChange(Event)
}

// Snapshot is a point-in-time view of the context for status reporting.
type Snapshot struct {
	State     State
	Variant   string
	Alias     string
	PID       int
	Port      int
	Session   string
	LastError string
}
