package connmgr

// State is a client's position in the connection manager's state machine.
//
// Steady states are Drained and Active; Activating and Draining are the
// in-flight transitions between them. If a transition fails it reverts to
// the state it started from:
//
//	              +-----------+            +----------+
//	        +----->  Drained  <---Success--+ Draining +-----+
//	        |     +----+------+            +----^-----+     |
//	      Failed       |                        |           |
//	        |     New connection          Drain request     |
//	        |          |                        |        Failed
//	        |     +----v-------+           +----+-----+     |
//	        +-----+ Activating +--Success-->  Active  <-----+
//	              +------------+           +----------+
type State int

const (
	// Drained is the state in which a new connection triggers draining
	// of the client from every other cluster member before it is admitted.
	Drained State = iota
	// Activating is entered while the drain-other-servers callback runs;
	// new connections block until it resolves.
	Activating
	// Active admits new connections immediately, without draining peers.
	Active
	// Draining is entered while this replica drains its own connections
	// in response to a peer's drain request; a new local connection
	// cancels it back to Active.
	Draining

	numStates = int(Draining) + 1
)

func (s State) String() string {
	switch s {
	case Drained:
		return "drained"
	case Activating:
		return "activating"
	case Active:
		return "active"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// validTransitions mirrors is_transition_valid: each state lists the
// states it may move to directly.
var validTransitions = map[State][]State{
	Drained:    {Activating},
	Activating: {Active, Drained},
	Active:     {Draining},
	Draining:   {Active, Drained},
}

func isTransitionValid(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DrainResult is the outcome of draining a client's connections, either
// locally (a peer's drain request) or reported back from the
// drain-other-servers callback.
type DrainResult int

const (
	// DrainSuccess indicates the drain completed and no connections
	// remain.
	DrainSuccess DrainResult = iota
	// DrainSuccessNoConnections indicates the drain was vacuously
	// successful: the client had no active connections to begin with.
	DrainSuccessNoConnections
	// DrainFailed indicates the drain did not complete, most likely
	// because a new incoming connection canceled it, or because this
	// member was already busy draining peers for the same client.
	DrainFailed
	// DrainFailedTimeout indicates the drain did not complete within
	// the configured timeout.
	DrainFailedTimeout

	numDrainResults = int(DrainFailedTimeout) + 1
)

func (r DrainResult) String() string {
	switch r {
	case DrainSuccess:
		return "success"
	case DrainSuccessNoConnections:
		return "success_no_connections"
	case DrainFailed:
		return "failed"
	case DrainFailedTimeout:
		return "failed_timeout"
	default:
		return "unknown"
	}
}

// ConnectionStartedResult is the verdict connection_started returns for a
// newly-established connection.
type ConnectionStartedResult int

const (
	// Allow means the connection may proceed to execute requests.
	Allow ConnectionStartedResult = iota
	// Drop means the connection must be destroyed: draining the client
	// from the rest of the cluster did not succeed.
	Drop

	numConnectionStartedResults = int(Drop) + 1
)

func (r ConnectionStartedResult) String() string {
	switch r {
	case Allow:
		return "allow"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}
