package model

import "time"

// Object status constants.
const (
	StatusLive         = "live"
	StatusReleased     = "released"
	StatusDisconnected = "disconnected"
	StatusFailed       = "failed"
)

// validTransitions maps each status to the set of statuses it may transition to.
// Every status other than live is terminal.
var validTransitions = map[string]map[string]bool{
	StatusLive: {
		StatusReleased:     true,
		StatusDisconnected: true,
		StatusFailed:       true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status admits no further transitions.
func IsTerminal(status string) bool {
	_, ok := validTransitions[status]
	return !ok
}

// Object is a hosted object's persisted record.
type Object struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Apartment   string     `json:"apartment"`
	Invocations int        `json:"invocations"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// Invocation is one persisted operation on an object.
type Invocation struct {
	ID         int64     `json:"id"`
	ObjectID   string    `json:"object_id"`
	Seq        int       `json:"seq"`
	Op         string    `json:"op"`
	Args       string    `json:"args,omitempty"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
