package gate

import "fmt"

// Verdict is the three-valued admission outcome.
type Verdict string

const (
	VerdictAllow  Verdict = "ALLOW"
	VerdictReview Verdict = "REVIEW"
	VerdictBlock  Verdict = "BLOCK"
)

// Code returns the wire code used by external evaluators
// (0=ALLOW, 1=REVIEW, 2=BLOCK).
func (v Verdict) Code() int {
	switch v {
	case VerdictAllow:
		return 0
	case VerdictReview:
		return 1
	case VerdictBlock:
		return 2
	}
	return 2 // unknown verdicts are treated as BLOCK
}

// VerdictFromCode maps a wire code back to a Verdict. Unknown codes map to
// BLOCK, keeping the boundary fail-closed.
func VerdictFromCode(code int) Verdict {
	switch code {
	case 0:
		return VerdictAllow
	case 1:
		return VerdictReview
	case 2:
		return VerdictBlock
	}
	return VerdictBlock
}

// Metrics is the snapshot the decision gate evaluates. T and V are derived
// from the readiness history when one is supplied; D is the trajectory-drift
// metric reported by the caller.
type Metrics struct {
	EMu float64 `json:"E_mu"` // readiness scalar
	H   float64 `json:"H"`    // entropy
	D   float64 `json:"D"`    // trajectory drift
	S   float64 `json:"S"`    // stability
	T   float64 `json:"T"`    // readiness trend
	V   float64 `json:"V"`    // readiness variance
}

func (m Metrics) String() string {
	return fmt.Sprintf("E_mu=%.3f H=%.3f D=%.3f S=%.3f T=%.3f V=%.3f",
		m.EMu, m.H, m.D, m.S, m.T, m.V)
}
