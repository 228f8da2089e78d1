// Package trace implements the tamper-evident audit record of one input's
// journey through admission. A Trace is an immutable value: transitions
// produce a new Trace and the lifecycle log only ever grows.
package trace

import (
	"time"
)

// State is the lifecycle state of a trace.
type State string

const (
	StateCreated   State = "CREATED"
	StateActive    State = "ACTIVE"
	StateBlocked   State = "BLOCKED"
	StateCompleted State = "COMPLETED"
	StateInvalid   State = "INVALID"
	StateArchived  State = "ARCHIVED"
)

// closing reports whether entering this state sets the closure timestamp.
func (s State) closing() bool {
	switch s {
	case StateBlocked, StateCompleted, StateInvalid:
		return true
	}
	return false
}

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateCreated, StateActive, StateBlocked, StateCompleted, StateInvalid, StateArchived:
		return true
	}
	return false
}

// Bucket returns the persistence bucket for a state. Pre-admission traces
// (CREATED) live in the active bucket until their verdict lands.
func (s State) Bucket() string {
	switch s {
	case StateBlocked:
		return "blocked"
	case StateCompleted:
		return "completed"
	case StateInvalid:
		return "invalid"
	case StateArchived:
		return "archived"
	default:
		return "active"
	}
}

// Origin describes where the traced input came from.
type Origin struct {
	SourceID string `json:"source_id"`
	Modality string `json:"modality"`
	Adapter  string `json:"adapter"`
}

// Context describes the policy environment the trace runs under.
type Context struct {
	GateProfile string `json:"gate_profile"`
	RuntimeMode string `json:"runtime_mode"`
}

// Event is one entry in the append-only lifecycle log.
type Event struct {
	Name      string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Reason    string         `json:"reason,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Trace is the immutable audit record. Do not mutate Log in place; use
// Manager.Transition, which returns a new Trace with the event appended.
type Trace struct {
	ID        string     `json:"trace_id"`
	State     State      `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Origin    Origin     `json:"origin"`
	Context   Context    `json:"context"`
	Log       []Event    `json:"lifecycle_log"`
}

// Closed reports whether the closure timestamp has been set.
func (t Trace) Closed() bool { return t.ClosedAt != nil }
