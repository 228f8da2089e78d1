package trace

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"cogman/internal/logging"
)

// allowedEdges is the locked transition graph. Any edge not listed here is
// illegal and rejected with InvalidTransitionError.
var allowedEdges = map[State][]State{
	StateCreated:   {StateActive, StateBlocked},
	StateActive:    {StateBlocked, StateCompleted},
	StateBlocked:   {StateInvalid},
	StateCompleted: {StateArchived},
}

// InvalidTransitionError signals an attempted illegal lifecycle edge. It
// indicates a logic error in the caller, not an external fault, and must not
// be swallowed.
type InvalidTransitionError struct {
	TraceID string
	From    State
	To      State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("trace %s: invalid transition %s -> %s", e.TraceID, e.From, e.To)
}

// Manager is the only component allowed to create traces and drive their
// lifecycle.
type Manager struct{}

// NewManager returns a trace manager.
func NewManager() *Manager { return &Manager{} }

// Create mints a new trace in CREATED state with the TRACE_CREATED event
// already logged.
func (m *Manager) Create(origin Origin, context Context) Trace {
	id := uuid.NewString()
	now := time.Now()

	t := Trace{
		ID:        id,
		State:     StateCreated,
		CreatedAt: now,
		Origin:    origin,
		Context:   context,
		Log: []Event{{
			Name:      "TRACE_CREATED",
			Timestamp: now,
			Payload: map[string]any{
				"source":   origin.SourceID,
				"modality": origin.Modality,
			},
		}},
	}

	logging.Get(logging.CategoryTrace).Debugw("trace created",
		"trace_id", id, "source", origin.SourceID, "modality", origin.Modality)
	return t
}

// Transition moves a trace along one edge of the lifecycle graph, returning
// the new trace value. The operation is all-or-nothing: on an illegal edge
// the input trace is returned unchanged together with the error. On success
// a TRACE_<STATE> event is appended and, when the target state closes the
// trace, the closure timestamp is set exactly once.
func (m *Manager) Transition(t Trace, target State, reason string, payload map[string]any) (Trace, error) {
	if !target.Valid() {
		return t, &InvalidTransitionError{TraceID: t.ID, From: t.State, To: target}
	}
	allowed := false
	for _, next := range allowedEdges[t.State] {
		if next == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return t, &InvalidTransitionError{TraceID: t.ID, From: t.State, To: target}
	}

	now := time.Now()
	event := Event{
		Name:      "TRACE_" + string(target),
		Timestamp: now,
		Reason:    reason,
		Payload:   payload,
	}

	// Copy-on-write log append so the input trace stays untouched.
	log := make([]Event, len(t.Log), len(t.Log)+1)
	copy(log, t.Log)
	log = append(log, event)

	closedAt := t.ClosedAt
	if target.closing() && closedAt == nil {
		ts := now
		closedAt = &ts
	}

	next := Trace{
		ID:        t.ID,
		State:     target,
		CreatedAt: t.CreatedAt,
		ClosedAt:  closedAt,
		Origin:    t.Origin,
		Context:   t.Context,
		Log:       log,
	}

	logging.Get(logging.CategoryTrace).Debugw("trace transitioned",
		"trace_id", t.ID, "from", t.State, "to", target, "reason", reason)
	return next, nil
}

// Close is sugar over Transition for terminating a trace. reasonCode must be
// COMPLETED, BLOCKED, or INVALID; it doubles as the target state the way the
// lifecycle graph permits (INVALID is only reachable from BLOCKED, so Close
// with INVALID on an active trace fails like any other illegal edge).
func (m *Manager) Close(t Trace, reasonCode State, reason string) (Trace, error) {
	switch reasonCode {
	case StateCompleted, StateBlocked, StateInvalid:
		return m.Transition(t, reasonCode, reason, nil)
	default:
		return t, fmt.Errorf("trace %s: invalid close reason %q", t.ID, reasonCode)
	}
}
