package eps

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validState() State {
	return State{I: 1.2, P: -0.4, S: 0.9, H: 0.3, A: 0.5, SA: 0.6, EMu: 45, Theta: 0.1}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*State)
		wantErr string
	}{
		{"valid", func(s *State) {}, ""},
		{"zero value is valid", func(s *State) { *s = State{} }, ""},
		{"negative intensity", func(s *State) { s.I = -0.1 }, "I=-0.1"},
		{"stability above one", func(s *State) { s.S = 1.5 }, "S=1.5"},
		{"entropy below zero", func(s *State) { s.H = -0.2 }, "H=-0.2"},
		{"awareness above one", func(s *State) { s.A = 2 }, "A=2"},
		{"sub-awareness above one", func(s *State) { s.SA = 1.01 }, "S_a=1.01"},
		{"NaN readiness", func(s *State) { s.EMu = math.NaN() }, "E_mu is NaN"},
		{"infinite theta", func(s *State) { s.Theta = math.Inf(1) }, "theta is infinite"},
		{"unbounded polarity ok", func(s *State) { s.P = -42 }, ""},
		{"unbounded readiness ok", func(s *State) { s.EMu = 1e9 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validState()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWithersReturnCopies(t *testing.T) {
	orig := validState()

	boosted := orig.WithIntensity(3.0)
	assert.Equal(t, 3.0, boosted.I)
	assert.Equal(t, 1.2, orig.I, "original must not change")

	clamped := orig.WithStability(1.4)
	assert.Equal(t, 1.0, clamped.S, "stability clamps to 1")
	assert.Equal(t, 0.0, orig.WithStability(-2).S, "stability clamps to 0")
	assert.Equal(t, 0.9, orig.S)
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name    string
		history []float64
		want    float64
	}{
		{"empty", nil, 0},
		{"single point", []float64{42}, 0},
		{"rising", []float64{10, 20, 30, 40}, 7.5},
		{"falling", []float64{30, 20}, -5},
		{"flat", []float64{5, 9, 5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Trend(tt.history), 1e-12)
		})
	}
}

func TestVariance(t *testing.T) {
	tests := []struct {
		name    string
		history []float64
		want    float64
	}{
		{"empty", nil, 0},
		{"single point", []float64{42}, 0},
		{"constant", []float64{7, 7, 7, 7}, 0},
		// mean 25, squared deviations 225+25+25+225, divided by n=4
		{"population variance", []float64{10, 20, 30, 40}, 125},
		{"two points", []float64{10, 90}, 1600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Variance(tt.history), 1e-12)
		})
	}
}

func TestStringRendersAllFields(t *testing.T) {
	s := validState().String()
	for _, field := range []string{"I=", "P=", "S=", "H=", "A=", "S_a=", "E_mu=", "theta="} {
		assert.Contains(t, s, field)
	}
}
