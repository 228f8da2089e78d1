package gate

import (
	"errors"
	"fmt"
	"math"

	"cogman/internal/eps"
)

// Protocol tag stamped on every decision result for compatibility auditing.
const Protocol = "CORE9_v1.0"

// ErrEvaluatorUnavailable wraps any failure to obtain a decision from the
// configured evaluator. The gate maps it onto a verdict according to the
// policy's fail_closed flag.
var ErrEvaluatorUnavailable = errors.New("gate: evaluator unavailable")

// DecisionInput is the request handed to an evaluator.
type DecisionInput struct {
	Metrics  Metrics
	RuleFail bool      // upstream safety-rule failure, forces BLOCK
	History  []float64 // readiness history; T and V are derived when len >= 2
	Context  string    // policy profile the decision runs under
}

// DecisionResult is the evaluator's answer. Reasons holds one entry per
// matched rule, first match first.
type DecisionResult struct {
	Verdict  Verdict  `json:"verdict"`
	Metrics  Metrics  `json:"metrics"`
	Reasons  []string `json:"reasons"`
	RuleFail bool     `json:"rule_fail"`
	Protocol string   `json:"protocol"`
	Context  string   `json:"context,omitempty"`
}

// Evaluator is the external numeric decision authority. Implementations must
// be pure and deterministic for a given input. The in-process CoreEvaluator
// is the default; a remote kernel can be substituted behind this interface.
type Evaluator interface {
	Evaluate(in DecisionInput) (DecisionResult, error)
}

// CoreEvaluator implements the CORE-9 decision ladder in-process.
type CoreEvaluator struct {
	bands Bands
}

// NewCoreEvaluator builds an evaluator over validated bands.
func NewCoreEvaluator(bands Bands) (*CoreEvaluator, error) {
	if err := bands.Validate(); err != nil {
		return nil, err
	}
	return &CoreEvaluator{bands: bands}, nil
}

// Evaluate runs the decision ladder. The rule order is locked:
//
//	1. rule_fail or S == 0        -> BLOCK
//	2. E_mu in restrict band      -> BLOCK
//	3. H > H_max                  -> REVIEW  (H == H_max allows)
//	4. D > D_max                  -> REVIEW
//	5. V > V_max                  -> REVIEW
//	6. T < 0 and E_mu in caution  -> REVIEW
//	7. otherwise                  -> ALLOW
func (e *CoreEvaluator) Evaluate(in DecisionInput) (DecisionResult, error) {
	if err := validateMetrics(in.Metrics); err != nil {
		return DecisionResult{}, err
	}

	m := in.Metrics
	if len(in.History) >= 2 {
		for i, v := range in.History {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return DecisionResult{}, fmt.Errorf("gate: history[%d]=%v is not finite", i, v)
			}
		}
		m.T = eps.Trend(in.History)
		m.V = eps.Variance(in.History)
	}

	result := DecisionResult{
		Metrics:  m,
		RuleFail: in.RuleFail,
		Protocol: Protocol,
		Context:  in.Context,
	}
	b := e.bands

	switch {
	case in.RuleFail || m.S == 0:
		result.Verdict = VerdictBlock
		result.RuleFail = true
		result.Reasons = append(result.Reasons, "safety rule failed (S == 0)")
	case b.inRestrict(m.EMu):
		result.Verdict = VerdictBlock
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("E_mu=%.3f in restrict range (< %.3f)", m.EMu, b.RestrictMax))
	case m.H > b.HMax:
		result.Verdict = VerdictReview
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("H=%.3f > H_max=%.3f (entropy above threshold)", m.H, b.HMax))
	case m.D > b.DMax:
		result.Verdict = VerdictReview
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("D=%.3f > D_max=%.3f (semantic drift above threshold)", m.D, b.DMax))
	case m.V > b.VMax:
		result.Verdict = VerdictReview
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("V=%.3f > V_max=%.3f (variance above threshold)", m.V, b.VMax))
	case m.T < 0 && b.inCaution(m.EMu):
		result.Verdict = VerdictReview
		result.Reasons = append(result.Reasons,
			"negative trend (T < 0) and E_mu in caution range")
	default:
		result.Verdict = VerdictAllow
		result.Reasons = append(result.Reasons, "all metrics within safety bounds")
	}

	return result, nil
}

func validateMetrics(m Metrics) error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"E_mu", m.EMu}, {"H", m.H}, {"D", m.D},
		{"S", m.S}, {"T", m.T}, {"V", m.V},
	} {
		if math.IsNaN(f.value) {
			return fmt.Errorf("gate: metrics.%s is NaN", f.name)
		}
		if math.IsInf(f.value, 0) {
			return fmt.Errorf("gate: metrics.%s is infinite", f.name)
		}
	}
	if m.H < 0 || m.H > 1 {
		return fmt.Errorf("gate: metrics.H=%v out of range [0,1]", m.H)
	}
	if m.D < 0 || m.D > 1 {
		return fmt.Errorf("gate: metrics.D=%v out of range [0,1]", m.D)
	}
	if m.S < 0 || m.S > 1 {
		return fmt.Errorf("gate: metrics.S=%v out of range [0,1]", m.S)
	}
	return nil
}
