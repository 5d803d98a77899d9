package lifecycle

// RunState is the transient, in-memory state of a worker.
type RunState int

const (
	Paused RunState = iota
	Running
	Sleeping
)

func (s RunState) String() string {
	switch s {
	case Paused:
		return "paused"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// Next returns the state following current.
//
// A paused worker always goes to Paused. Otherwise Running moves to Sleeping
// when the worker has a pace and stays Running when it has none; Paused and
// Sleeping both move to Running.
func Next(current RunState, paused, hasPace bool) RunState {
	if paused {
		return Paused
	}
	if current == Running && hasPace {
		return Sleeping
	}
	return Running
}

func initialState(enabled bool) RunState {
	if enabled {
		return Running
	}
	return Paused
}
