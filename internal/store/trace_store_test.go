package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cogman/internal/trace"
)

func openTestStore(t *testing.T) *TraceStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "traces.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makeTrace(t *testing.T, target trace.State) trace.Trace {
	t.Helper()
	m := trace.NewManager()
	tr := m.Create(
		trace.Origin{SourceID: "test", Modality: "text", Adapter: "sensory"},
		trace.Context{GateProfile: "default", RuntimeMode: "normal"},
	)
	var path []trace.State
	switch target {
	case trace.StateCreated:
		return tr
	case trace.StateCompleted:
		path = []trace.State{trace.StateActive, trace.StateCompleted}
	case trace.StateArchived:
		path = []trace.State{trace.StateActive, trace.StateCompleted, trace.StateArchived}
	default:
		path = []trace.State{target}
	}
	var err error
	for _, next := range path {
		tr, err = m.Transition(tr, next, "test transition", map[string]any{"verdict": "ALLOW"})
		require.NoError(t, err)
	}
	return tr
}

func TestSaveLoadRoundtrip(t *testing.T) {
	s := openTestStore(t)
	tr := makeTrace(t, trace.StateActive)

	require.NoError(t, s.Save(tr, "active"))

	got, err := s.Load(tr.ID, "active")
	require.NoError(t, err)

	assert.Equal(t, tr.ID, got.ID)
	assert.Equal(t, trace.StateActive, got.State)
	assert.Equal(t, tr.Origin, got.Origin)
	assert.Equal(t, tr.Context, got.Context)
	assert.WithinDuration(t, tr.CreatedAt, got.CreatedAt, time.Second)
	require.Len(t, got.Log, 2)
	assert.Equal(t, "TRACE_CREATED", got.Log[0].Name)
	assert.Equal(t, "TRACE_ACTIVE", got.Log[1].Name)
	assert.Equal(t, "test transition", got.Log[1].Reason)
}

func TestSaveClosedTraceKeepsClosedAt(t *testing.T) {
	s := openTestStore(t)
	tr := makeTrace(t, trace.StateBlocked)
	require.True(t, tr.Closed())

	require.NoError(t, s.Save(tr, "blocked"))

	got, err := s.Load(tr.ID, "blocked")
	require.NoError(t, err)
	require.NotNil(t, got.ClosedAt)
	assert.WithinDuration(t, *tr.ClosedAt, *got.ClosedAt, time.Second)
}

func TestSaveRejectsUnknownBucket(t *testing.T) {
	s := openTestStore(t)
	err := s.Save(makeTrace(t, trace.StateActive), "limbo")
	assert.Error(t, err)
}

func TestLoadSearchesAllBucketsWhenUnspecified(t *testing.T) {
	s := openTestStore(t)
	tr := makeTrace(t, trace.StateCompleted)
	require.NoError(t, s.Save(tr, "completed"))

	got, err := s.Load(tr.ID, "")
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ID)
}

func TestLoadMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load("no-such-trace", "")
	assert.ErrorIs(t, err, ErrTraceNotFound)

	_, err = s.Load("no-such-trace", "active")
	assert.ErrorIs(t, err, ErrTraceNotFound)
}

func TestList(t *testing.T) {
	s := openTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		tr := makeTrace(t, trace.StateActive)
		require.NoError(t, s.Save(tr, "active"))
		ids = append(ids, tr.ID)
	}

	listed, err := s.List("active", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, listed)

	limited, err := s.List("active", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	empty, err := s.List("archived", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMove(t *testing.T) {
	s := openTestStore(t)
	tr := makeTrace(t, trace.StateActive)
	require.NoError(t, s.Save(tr, "active"))

	require.NoError(t, s.Move(tr.ID, "active", "completed"))

	_, err := s.Load(tr.ID, "active")
	assert.ErrorIs(t, err, ErrTraceNotFound)

	got, err := s.Load(tr.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ID)

	err = s.Move(tr.ID, "active", "completed")
	assert.ErrorIs(t, err, ErrTraceNotFound, "move is not idempotent on the source bucket")
}

func TestMoveReplacesExistingRow(t *testing.T) {
	s := openTestStore(t)
	tr := makeTrace(t, trace.StateActive)
	require.NoError(t, s.Save(tr, "active"))
	require.NoError(t, s.Save(tr, "completed"))

	// UPDATE OR REPLACE: the destination row is overwritten, not duplicated
	require.NoError(t, s.Move(tr.ID, "active", "completed"))

	ids, err := s.List("completed", 0)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	tr := makeTrace(t, trace.StateActive)
	require.NoError(t, s.Save(tr, "active"))

	require.NoError(t, s.Delete(tr.ID, "active"))
	assert.ErrorIs(t, s.Delete(tr.ID, "active"), ErrTraceNotFound)
}

func TestValidBucket(t *testing.T) {
	for _, b := range Buckets {
		assert.True(t, ValidBucket(b))
	}
	assert.False(t, ValidBucket("limbo"))
	assert.False(t, ValidBucket(""))
}

func TestSaveIsUpsert(t *testing.T) {
	s := openTestStore(t)
	m := trace.NewManager()
	tr := m.Create(trace.Origin{SourceID: "test"}, trace.Context{})
	require.NoError(t, s.Save(tr, "active"))

	next, err := m.Transition(tr, trace.StateActive, "admitted", nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(next, "active"))

	got, err := s.Load(tr.ID, "active")
	require.NoError(t, err)
	assert.Equal(t, trace.StateActive, got.State)
	assert.Len(t, got.Log, 2)
}
