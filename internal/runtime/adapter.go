package runtime

import (
	"fmt"

	"cogman/internal/eps"
	"cogman/internal/gate"
	"cogman/internal/logging"
	"cogman/internal/trace"
)

// Adapter couples trace creation to the admission decision so the audit log
// and the verdict can never be observed out of sync. It is the only caller
// of the gate on the admission path.
type Adapter struct {
	gate   *gate.Gate
	traces *trace.Manager
}

// NewAdapter builds the admission adapter.
func NewAdapter(g *gate.Gate, traces *trace.Manager) *Adapter {
	if traces == nil {
		traces = trace.NewManager()
	}
	return &Adapter{gate: g, traces: traces}
}

// Gate exposes the underlying admission gate (the router shares its safety
// check).
func (a *Adapter) Gate() *gate.Gate { return a.gate }

// AdmitWithTrace runs the full admission step:
//
//	1. create the trace (CREATED)
//	2. run the gate with the trace id attached
//	3. transition the trace to BLOCKED (verdict BLOCK) or ACTIVE
//	   (ALLOW/REVIEW), recording the gate metrics in the event payload
//
// The returned error is nil on a clean decision. An evaluator outage is
// reported as a wrapped gate.ErrEvaluatorUnavailable while the trace and
// result still carry the policy-resolved verdict, so callers can both log
// the degradation and honor the decision. An invalid trace transition is a
// core logic error and is returned as-is, loudly.
func (a *Adapter) AdmitWithTrace(state eps.State, origin trace.Origin, tctx trace.Context, history []float64) (trace.Trace, gate.Result, error) {
	t := a.traces.Create(origin, tctx)

	result, evalErr := a.gate.Admit(state, t.ID, history)

	target := trace.StateActive
	reason := fmt.Sprintf("gate %s", result.Verdict)
	if result.Blocked() {
		target = trace.StateBlocked
		reason = result.Reason
	}

	payload := map[string]any{
		"verdict":      string(result.Verdict),
		"gate_metrics": result.Metrics,
		"protocol":     result.Protocol,
	}

	next, err := a.traces.Transition(t, target, reason, payload)
	if err != nil {
		// A fresh CREATED trace always has this edge; failing here means the
		// lifecycle graph itself is broken.
		return t, result, fmt.Errorf("runtime: admission transition failed: %w", err)
	}

	if result.Blocked() {
		logging.Get(logging.CategoryRuntime).Infow("trajectory admission blocked",
			"trace_id", next.ID, "reason", result.Reason)
	}

	return next, result, evalErr
}
