// Package gate implements the admission gate: the authority that decides
// whether a perceptual signal may proceed into the runtime loop. The gate
// delegates the numeric decision to an Evaluator (CORE-9 ladder by default),
// derives a human-readable reason, and journals every decision.
package gate

import (
	"fmt"
	"sync"
	"time"

	"cogman/internal/eps"
	"cogman/internal/logging"
)

// Result is the admission outcome handed back to the adapter.
type Result struct {
	Verdict   Verdict   `json:"verdict"`
	Reason    string    `json:"reason"`
	Metrics   Metrics   `json:"metrics"`
	RuleFail  bool      `json:"rule_fail"`
	Protocol  string    `json:"protocol"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Blocked reports whether the result short-circuits the cycle.
func (r Result) Blocked() bool { return r.Verdict == VerdictBlock }

// SafetyResult is the outcome of the standalone stability check used by the
// working-memory router.
type SafetyResult struct {
	Pass   bool    `json:"pass"`
	S      float64 `json:"S"`
	SMin   float64 `json:"S_min"`
	Reason string  `json:"reason"`
}

// Gate couples a policy, an evaluator, and a decision journal.
type Gate struct {
	mu        sync.RWMutex
	policy    Policy
	evaluator Evaluator
	journal   *Journal
}

// New builds a gate over the given policy with the in-process CORE-9
// evaluator.
func New(policy Policy) (*Gate, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	evaluator, err := NewCoreEvaluator(policy.Bands)
	if err != nil {
		return nil, err
	}
	return &Gate{
		policy:    policy,
		evaluator: evaluator,
		journal:   NewJournal(0),
	}, nil
}

// NewWithEvaluator builds a gate over an externally supplied evaluator,
// e.g. a remote decision kernel.
func NewWithEvaluator(policy Policy, evaluator Evaluator) (*Gate, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if evaluator == nil {
		return nil, fmt.Errorf("gate: evaluator required")
	}
	return &Gate{
		policy:    policy,
		evaluator: evaluator,
		journal:   NewJournal(0),
	}, nil
}

// Policy returns the active policy.
func (g *Gate) Policy() Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.policy
}

// SetPolicy swaps the active policy. Used by the config watcher for hot
// reload; the evaluator is rebuilt when it is the in-process one.
func (g *Gate) SetPolicy(policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.evaluator.(*CoreEvaluator); ok {
		evaluator, err := NewCoreEvaluator(policy.Bands)
		if err != nil {
			return err
		}
		g.evaluator = evaluator
	}
	g.policy = policy
	logging.Get(logging.CategoryGate).Infow("gate policy updated",
		"name", policy.Name, "version", policy.Version, "fail_closed", policy.FailClosed)
	return nil
}

// Journal exposes the decision journal for inspection.
func (g *Gate) Journal() *Journal { return g.journal }

// Admit runs the full admission check for one energetic state. history is
// the optional ordered sequence of prior readiness (E_mu) values; traceID
// ties the decision to its audit trace and may be empty.
//
// When the evaluator cannot be reached the returned error wraps
// ErrEvaluatorUnavailable and the verdict follows the policy's fail_closed
// flag: BLOCK when fail-closed, ALLOW when the legacy fail-open posture is
// configured. Either way the result is journaled and usable.
func (g *Gate) Admit(state eps.State, traceID string, history []float64) (Result, error) {
	g.mu.RLock()
	policy := g.policy
	evaluator := g.evaluator
	g.mu.RUnlock()

	log := logging.Get(logging.CategoryGate)

	in := DecisionInput{
		Metrics: Metrics{
			EMu: state.EMu,
			H:   state.H,
			S:   state.S,
			// D is the trajectory-drift metric; the perception boundary does
			// not report one yet, so it enters the ladder as zero.
		},
		History: history,
		Context: policy.Name,
	}

	decision, evalErr := evaluator.Evaluate(in)
	result := Result{
		Metrics:   decision.Metrics,
		RuleFail:  decision.RuleFail,
		Protocol:  decision.Protocol,
		TraceID:   traceID,
		Timestamp: time.Now(),
	}

	if evalErr != nil {
		if policy.FailClosed {
			result.Verdict = VerdictBlock
			result.Reason = fmt.Sprintf("evaluator unavailable (%v); fail-closed", evalErr)
		} else {
			result.Verdict = VerdictAllow
			result.Reason = fmt.Sprintf("evaluator unavailable (%v); fail-open per policy", evalErr)
		}
		result.Protocol = Protocol
		log.Errorw("admission evaluator failed",
			"trace_id", traceID, "verdict", result.Verdict, "error", evalErr)
		g.journal.Record(JournalEntry{
			Timestamp: result.Timestamp,
			TraceID:   traceID,
			Verdict:   result.Verdict,
			State:     state,
			Reason:    result.Reason,
		})
		return result, fmt.Errorf("%w: %v", ErrEvaluatorUnavailable, evalErr)
	}

	result.Verdict = decision.Verdict
	if len(decision.Reasons) > 0 {
		result.Reason = decision.Reasons[0]
	}

	g.journal.Record(JournalEntry{
		Timestamp: result.Timestamp,
		TraceID:   traceID,
		Verdict:   result.Verdict,
		State:     state,
		Reason:    result.Reason,
	})

	log.Infow("admission decision",
		"verdict", result.Verdict,
		"trace_id", traceID,
		"H", state.H,
		"S", state.S,
		"E_mu", state.EMu)

	return result, nil
}

// EvaluateSafety checks only the stability floor. It shares the safety
// definition with Admit (same S_min from the same policy) but is independent
// of the full decision ladder, so the router can call it on its own.
func (g *Gate) EvaluateSafety(state eps.State) SafetyResult {
	g.mu.RLock()
	sMin := g.policy.SMin
	g.mu.RUnlock()

	if state.S >= sMin {
		return SafetyResult{Pass: true, S: state.S, SMin: sMin, Reason: "safety gate passed"}
	}
	return SafetyResult{
		Pass:   false,
		S:      state.S,
		SMin:   sMin,
		Reason: fmt.Sprintf("S=%.3f < S_min=%.3f", state.S, sMin),
	}
}
