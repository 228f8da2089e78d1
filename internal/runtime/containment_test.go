package runtime

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleRecordsAndContinues(t *testing.T) {
	c := NewContainment(0)

	h := c.Handle("REASONING", errors.New("model timeout"),
		map[string]any{"runtime_mode": "normal"}, SeverityMedium)

	assert.True(t, h.Handled)
	assert.True(t, h.Continue, "containment never stops the loop")
	assert.Equal(t, "abort_cycle", h.Action)
	assert.Equal(t, "REASONING", h.Phase)

	summary := c.Summary()
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.ByPhase["REASONING"])
	assert.Equal(t, 1, summary.BySeverity[SeverityMedium])
	require.Len(t, summary.Recent, 1)
	assert.Equal(t, "model timeout", summary.Recent[0].Message)
}

func TestHandleToleratesNilError(t *testing.T) {
	c := NewContainment(0)
	h := c.Handle("DECISION", nil, nil, SeverityLow)
	assert.True(t, h.Handled)
	assert.Equal(t, "unknown", h.Kind)
	assert.Equal(t, 1, c.Summary().Total)
}

func TestHandleCountsPerPhaseAndSeverity(t *testing.T) {
	c := NewContainment(0)
	c.Handle("REASONING", errors.New("a"), nil, SeverityHigh)
	c.Handle("REASONING", errors.New("b"), nil, SeverityLow)
	c.Handle("ACTION_OUTPUT", errors.New("c"), nil, SeverityHigh)

	summary := c.Summary()
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.ByPhase["REASONING"])
	assert.Equal(t, 1, summary.ByPhase["ACTION_OUTPUT"])
	assert.Equal(t, 2, summary.BySeverity[SeverityHigh])
	assert.Equal(t, 1, summary.BySeverity[SeverityLow])
}

func TestHistoryIsBounded(t *testing.T) {
	c := NewContainment(5)
	for i := 0; i < 20; i++ {
		c.Handle("REASONING", fmt.Errorf("fault %d", i), nil, SeverityLow)
	}

	summary := c.Summary()
	assert.Equal(t, 20, summary.Total, "counters survive eviction")
	require.Len(t, summary.Recent, 5)
	assert.Equal(t, "fault 19", summary.Recent[4].Message, "newest records kept")
}

func TestSummaryRecentCapped(t *testing.T) {
	c := NewContainment(0)
	for i := 0; i < 25; i++ {
		c.Handle("IDLE", fmt.Errorf("fault %d", i), nil, SeverityLow)
	}
	summary := c.Summary()
	assert.Len(t, summary.Recent, 10)
	assert.Equal(t, "fault 24", summary.Recent[9].Message)
}

func TestReset(t *testing.T) {
	c := NewContainment(0)
	c.Handle("IDLE", errors.New("x"), nil, SeverityCritical)
	c.Reset()

	summary := c.Summary()
	assert.Zero(t, summary.Total)
	assert.Empty(t, summary.Recent)
	assert.Empty(t, summary.ByPhase)
}
