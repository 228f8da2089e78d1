// Package eps defines the EPS-8 energetic state: the eight-scalar perceptual
// summary that flows through every cycle of the runtime loop. States are
// plain value types; every transformation returns a new value and nothing in
// this package mutates a state in place.
package eps

import (
	"fmt"
	"math"
)

// State is the EPS-8 energetic state produced by the perception boundary.
//
//	I     intensity, >= 0
//	P     polarity
//	S     stability, in [0,1]; S == 0 trips the safety rule
//	H     entropy, in [0,1]
//	A     awareness, in [0,1]
//	SA    sub-awareness, in [0,1]
//	EMu   readiness scalar, unconstrained
//	Theta phase angle, unconstrained
type State struct {
	I     float64 `json:"I"`
	P     float64 `json:"P"`
	S     float64 `json:"S"`
	H     float64 `json:"H"`
	A     float64 `json:"A"`
	SA    float64 `json:"S_a"`
	EMu   float64 `json:"E_mu"`
	Theta float64 `json:"theta"`
}

// Validate reports the first field that violates the EPS-8 domain.
func (s State) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"I", s.I}, {"P", s.P}, {"S", s.S}, {"H", s.H},
		{"A", s.A}, {"S_a", s.SA}, {"E_mu", s.EMu}, {"theta", s.Theta},
	} {
		if math.IsNaN(f.value) {
			return fmt.Errorf("eps: %s is NaN", f.name)
		}
		if math.IsInf(f.value, 0) {
			return fmt.Errorf("eps: %s is infinite", f.name)
		}
	}
	if s.I < 0 {
		return fmt.Errorf("eps: I=%v out of range (must be >= 0)", s.I)
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"S", s.S}, {"H", s.H}, {"A", s.A}, {"S_a", s.SA},
	} {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("eps: %s=%v out of range [0,1]", f.name, f.value)
		}
	}
	return nil
}

// WithIntensity returns a copy with I replaced.
func (s State) WithIntensity(i float64) State {
	s.I = i
	return s
}

// WithStability returns a copy with S replaced, clamped to [0,1].
func (s State) WithStability(v float64) State {
	s.S = math.Min(math.Max(v, 0), 1)
	return s
}

// String renders the state compactly for logs and reasons.
func (s State) String() string {
	return fmt.Sprintf("eps(I=%.3f P=%.3f S=%.3f H=%.3f A=%.3f S_a=%.3f E_mu=%.3f theta=%.3f)",
		s.I, s.P, s.S, s.H, s.A, s.SA, s.EMu, s.Theta)
}

// Trend computes the linear trend of a readiness history:
// (last - first) / len(history). Histories shorter than two points have no
// trend and return 0.
func Trend(history []float64) float64 {
	if len(history) < 2 {
		return 0
	}
	return (history[len(history)-1] - history[0]) / float64(len(history))
}

// Variance computes the population variance of a readiness history.
// Histories shorter than two points return 0.
func Variance(history []float64) float64 {
	if len(history) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range history {
		mean += v
	}
	mean /= float64(len(history))

	variance := 0.0
	for _, v := range history {
		d := v - mean
		variance += d * d
	}
	return variance / float64(len(history))
}
