package gate

import "fmt"

// Bands holds the decision thresholds for the admission gate. The E_mu axis
// is split into three ordered ranges: restrict (below RestrictMax), caution
// [CautionMin, CautionMax), and accept [AcceptMin, AcceptMax].
type Bands struct {
	HMax        float64 `yaml:"h_max" json:"h_max"`
	DMax        float64 `yaml:"d_max" json:"d_max"`
	VMax        float64 `yaml:"v_max" json:"v_max"`
	RestrictMax float64 `yaml:"e_mu_restrict_max" json:"e_mu_restrict_max"`
	CautionMin  float64 `yaml:"e_mu_caution_min" json:"e_mu_caution_min"`
	CautionMax  float64 `yaml:"e_mu_caution_max" json:"e_mu_caution_max"`
	AcceptMin   float64 `yaml:"e_mu_accept_min" json:"e_mu_accept_min"`
	AcceptMax   float64 `yaml:"e_mu_accept_max" json:"e_mu_accept_max"`
}

// DefaultBands returns the locked production thresholds.
func DefaultBands() Bands {
	return Bands{
		HMax:        0.85,
		DMax:        0.7,
		VMax:        8.0,
		RestrictMax: 15.0,
		CautionMin:  15.0,
		CautionMax:  30.0,
		AcceptMin:   30.0,
		AcceptMax:   80.0,
	}
}

// Validate checks band sanity: non-negative ceilings and properly ordered
// E_mu ranges (restrict < caution < accept).
func (b Bands) Validate() error {
	if b.HMax < 0 || b.DMax < 0 || b.VMax < 0 {
		return fmt.Errorf("gate: bands contain negative ceilings")
	}
	if b.RestrictMax > b.CautionMin {
		return fmt.Errorf("gate: restrict band overlaps caution band (%v > %v)", b.RestrictMax, b.CautionMin)
	}
	if b.CautionMax > b.AcceptMin {
		return fmt.Errorf("gate: caution band overlaps accept band (%v > %v)", b.CautionMax, b.AcceptMin)
	}
	if b.AcceptMax <= b.AcceptMin {
		return fmt.Errorf("gate: accept band is empty (%v <= %v)", b.AcceptMax, b.AcceptMin)
	}
	return nil
}

func (b Bands) inRestrict(eMu float64) bool {
	return eMu < b.RestrictMax
}

func (b Bands) inCaution(eMu float64) bool {
	return eMu >= b.CautionMin && eMu < b.CautionMax
}

// Policy is a named, versioned decision profile: bands plus the safety
// minimum and the posture taken when the evaluator is unreachable.
type Policy struct {
	Name       string  `yaml:"name" json:"name"`
	Version    string  `yaml:"version" json:"version"`
	FailClosed bool    `yaml:"fail_closed" json:"fail_closed"`
	SMin       float64 `yaml:"s_min" json:"s_min"`
	Bands      Bands   `yaml:"bands" json:"bands"`
}

// DefaultPolicy returns the default (fail-closed) profile.
func DefaultPolicy() Policy {
	return Policy{
		Name:       "default",
		Version:    "v1.0",
		FailClosed: true,
		SMin:       0.5,
		Bands:      DefaultBands(),
	}
}

// Validate checks the policy, including its bands.
func (p Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("gate: policy name required")
	}
	if p.SMin < 0 || p.SMin > 1 {
		return fmt.Errorf("gate: s_min=%v out of range [0,1]", p.SMin)
	}
	return p.Bands.Validate()
}
