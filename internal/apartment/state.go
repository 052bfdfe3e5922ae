package apartment

import "sync/atomic"

// State is the lifecycle state of an apartment's worker.
//
//	Starting → Ready            [worker initialized]
//	Ready    → Running          [draining the queue]
//	Running  → Ready            [queue empty]
//	Ready    → Stopping         [quit signal received]
//	Stopping → Terminated       [loop exited]
//
// A worker whose initialization fails goes straight from Starting to
// Terminated.
type State uint32

const (
	StateStarting State = iota
	StateReady
	StateRunning
	StateStopping
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// stateCell holds a State. Only the worker writes it; anyone may read.
type stateCell struct {
	v atomic.Uint32
}

func (c *stateCell) load() State {
	return State(c.v.Load())
}

func (c *stateCell) store(s State) {
	c.v.Store(uint32(s))
}
