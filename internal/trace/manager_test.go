package trace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTrace(t *testing.T) (*Manager, Trace) {
	t.Helper()
	m := NewManager()
	tr := m.Create(
		Origin{SourceID: "stdin", Modality: "text", Adapter: "sensory"},
		Context{GateProfile: "default", RuntimeMode: "normal"},
	)
	return m, tr
}

func TestCreate(t *testing.T) {
	_, tr := newTestTrace(t)

	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, StateCreated, tr.State)
	assert.False(t, tr.Closed())
	require.Len(t, tr.Log, 1)
	assert.Equal(t, "TRACE_CREATED", tr.Log[0].Name)
	assert.Equal(t, "stdin", tr.Log[0].Payload["source"])
	assert.Equal(t, "text", tr.Log[0].Payload["modality"])
}

func TestCreateMintsUniqueIDs(t *testing.T) {
	m := NewManager()
	a := m.Create(Origin{}, Context{})
	b := m.Create(Origin{}, Context{})
	assert.NotEqual(t, a.ID, b.ID)
}

func TestTransitionLegalEdges(t *testing.T) {
	tests := []struct {
		name      string
		path      []State
		wantClose bool
	}{
		{"created to active", []State{StateActive}, false},
		{"created to blocked", []State{StateBlocked}, true},
		{"full happy path", []State{StateActive, StateCompleted, StateArchived}, true},
		{"active to blocked", []State{StateActive, StateBlocked}, true},
		{"blocked to invalid", []State{StateBlocked, StateInvalid}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, tr := newTestTrace(t)
			var err error
			for _, target := range tt.path {
				tr, err = m.Transition(tr, target, "test", nil)
				require.NoError(t, err)
				assert.Equal(t, target, tr.State)
			}
			assert.Equal(t, tt.wantClose, tr.Closed())
			// one event per transition plus TRACE_CREATED
			assert.Len(t, tr.Log, len(tt.path)+1)
		})
	}
}

func TestTransitionIllegalEdgeLeavesTraceUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		setup  []State
		target State
	}{
		{"created cannot complete", nil, StateCompleted},
		{"created cannot archive", nil, StateArchived},
		{"active cannot archive", []State{StateActive}, StateArchived},
		{"completed cannot reopen", []State{StateActive, StateCompleted}, StateActive},
		{"blocked cannot complete", []State{StateBlocked}, StateCompleted},
		{"archived is terminal", []State{StateActive, StateCompleted, StateArchived}, StateActive},
		{"unknown state rejected", nil, State("LIMBO")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, tr := newTestTrace(t)
			var err error
			for _, target := range tt.setup {
				tr, err = m.Transition(tr, target, "setup", nil)
				require.NoError(t, err)
			}

			before := tr
			after, err := m.Transition(tr, tt.target, "bad", nil)
			require.Error(t, err)

			var ite *InvalidTransitionError
			require.True(t, errors.As(err, &ite))
			assert.Equal(t, tr.State, ite.From)
			assert.Equal(t, tt.target, ite.To)

			assert.Equal(t, before, after, "failed transition must not alter the trace")
		})
	}
}

func TestTransitionEventCarriesReasonAndPayload(t *testing.T) {
	m, tr := newTestTrace(t)

	tr, err := m.Transition(tr, StateBlocked, "safety rule failed (S == 0)",
		map[string]any{"verdict": "BLOCK"})
	require.NoError(t, err)

	last := tr.Log[len(tr.Log)-1]
	assert.Equal(t, "TRACE_BLOCKED", last.Name)
	assert.Equal(t, "safety rule failed (S == 0)", last.Reason)
	assert.Equal(t, "BLOCK", last.Payload["verdict"])
}

func TestClosedAtSetExactlyOnce(t *testing.T) {
	m, tr := newTestTrace(t)

	tr, err := m.Transition(tr, StateActive, "", nil)
	require.NoError(t, err)
	assert.Nil(t, tr.ClosedAt)

	tr, err = m.Transition(tr, StateCompleted, "", nil)
	require.NoError(t, err)
	require.NotNil(t, tr.ClosedAt)
	closedAt := *tr.ClosedAt

	tr, err = m.Transition(tr, StateArchived, "", nil)
	require.NoError(t, err)
	require.NotNil(t, tr.ClosedAt)
	assert.Equal(t, closedAt, *tr.ClosedAt, "archival must not move the closure timestamp")
}

func TestTransitionCopiesLog(t *testing.T) {
	m, tr := newTestTrace(t)

	next, err := m.Transition(tr, StateActive, "", nil)
	require.NoError(t, err)

	assert.Len(t, tr.Log, 1, "input trace log must stay untouched")
	assert.Len(t, next.Log, 2)
}

func TestClose(t *testing.T) {
	m, tr := newTestTrace(t)
	tr, err := m.Transition(tr, StateActive, "", nil)
	require.NoError(t, err)

	closed, err := m.Close(tr, StateCompleted, "done")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, closed.State)
	assert.True(t, closed.Closed())

	_, err = m.Close(closed, StateArchived, "not a close reason")
	assert.Error(t, err)
}

func TestBucketMapping(t *testing.T) {
	assert.Equal(t, "active", StateCreated.Bucket())
	assert.Equal(t, "active", StateActive.Bucket())
	assert.Equal(t, "blocked", StateBlocked.Bucket())
	assert.Equal(t, "completed", StateCompleted.Bucket())
	assert.Equal(t, "invalid", StateInvalid.Bucket())
	assert.Equal(t, "archived", StateArchived.Bucket())
}
