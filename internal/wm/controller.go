// Package wm implements the working-memory controller: the second-stage gate
// and router that decides where an admitted energetic state goes next. Its
// routing step is a pure function of the state and the resonance scores, so
// identical inputs always produce identical decisions.
package wm

import (
	"fmt"
	"time"

	"cogman/internal/eps"
	"cogman/internal/gate"
	"cogman/internal/logging"
)

// Decision is the router's chosen downstream path.
type Decision string

const (
	DecisionCreateNewSN   Decision = "CREATE_NEW_SN"
	DecisionExtendPath    Decision = "EXTEND_PATH"
	DecisionRecallSN      Decision = "RECALL_SN"
	DecisionTriggerAction Decision = "TRIGGER_ACTION"
	DecisionReflex        Decision = "ACTIVATE_REFLEX"
	DecisionBlocked       Decision = "BLOCKED"
)

// MemoryField is the capability a memory collaborator must offer: score the
// resonance between the current state and the field's stored pattern.
// Implementations must return a score in [0,1] and must not mutate shared
// state as an effect of being queried.
type MemoryField interface {
	QueryResonance(state eps.State, traceID string) (float64, error)
}

// SafetyEvaluator is the slice of the admission gate the router depends on.
// *gate.Gate satisfies it; when nil the router falls back to a local S_min
// check so both gates still share one safety definition by configuration.
type SafetyEvaluator interface {
	EvaluateSafety(state eps.State) gate.SafetyResult
}

// BudgetGate is the extension point for a future resource-budget model.
// A nil BudgetGate always passes, matching the original no-op behavior.
type BudgetGate interface {
	Check(state eps.State) (bool, string)
}

// Config holds the router thresholds.
type Config struct {
	HMax             float64 `yaml:"h_max" json:"h_max"`                           // entropy gate ceiling
	SMin             float64 `yaml:"s_min" json:"s_min"`                           // local safety floor when no gate is wired
	EpisodicTrigger  float64 `yaml:"episodic_trigger" json:"episodic_trigger"`     // episodic resonance threshold
	SemanticTrigger  float64 `yaml:"semantic_trigger" json:"semantic_trigger"`     // semantic resonance threshold
	ActionIntensity  float64 `yaml:"action_intensity" json:"action_intensity"`     // modulated I floor for TRIGGER_ACTION
	ActionStability  float64 `yaml:"action_stability" json:"action_stability"`     // modulated S floor for TRIGGER_ACTION
	ReflexEntropyMax float64 `yaml:"reflex_entropy_max" json:"reflex_entropy_max"` // modulated H ceiling for ACTIVATE_REFLEX
}

// DefaultConfig returns the locked router thresholds.
func DefaultConfig() Config {
	return Config{
		HMax:             0.62,
		SMin:             0.5,
		EpisodicTrigger:  0.7,
		SemanticTrigger:  0.8,
		ActionIntensity:  0.8,
		ActionStability:  0.7,
		ReflexEntropyMax: 0.2,
	}
}

// GateStatus records the outcome of the three-part gate, one flag per gate.
type GateStatus struct {
	Entropy bool `json:"entropy"`
	Safety  bool `json:"safety"`
	Budget  bool `json:"budget"`
}

// Pass reports whether every gate passed.
func (g GateStatus) Pass() bool { return g.Entropy && g.Safety && g.Budget }

// Output is the router's result for one invocation.
type Output struct {
	Decision   Decision           `json:"navigation_decision"`
	Modulated  eps.State          `json:"modulated_state"`
	Scores     map[string]float64 `json:"resonance_scores"`
	GateStatus GateStatus         `json:"gate_status"`
	TraceID    string             `json:"trace_id"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Controller routes admitted states: gate, resonate, modulate, navigate.
type Controller struct {
	cfg    Config
	safety SafetyEvaluator
	budget BudgetGate
	fields map[string]MemoryField
}

// NewController builds a router. safety may be nil (local S_min fallback),
// budget may be nil (always pass), fields may be empty.
func NewController(cfg Config, safety SafetyEvaluator, budget BudgetGate, fields map[string]MemoryField) *Controller {
	if fields == nil {
		fields = map[string]MemoryField{}
	}
	return &Controller{cfg: cfg, safety: safety, budget: budget, fields: fields}
}

// Route runs the four router steps for one state. A failed gate returns
// DecisionBlocked immediately with the unmodified state and an empty score
// set. A single memory field failing to answer never aborts routing; its
// score is recorded as zero.
func (c *Controller) Route(state eps.State, traceID string) Output {
	log := logging.Get(logging.CategoryWM)

	// Step 1: three-part gate, fixed order.
	status := c.gateControl(state)
	if !status.Pass() {
		log.Infow("routing blocked by gate",
			"trace_id", traceID,
			"entropy", status.Entropy, "safety", status.Safety, "budget", status.Budget)
		return Output{
			Decision:   DecisionBlocked,
			Modulated:  state,
			Scores:     map[string]float64{},
			GateStatus: status,
			TraceID:    traceID,
			Timestamp:  time.Now(),
		}
	}

	// Step 2: resonance aggregation.
	scores := c.queryResonance(state, traceID)

	// Step 3: bounded modulation.
	modulated := Modulate(state, scores, c.cfg)

	// Step 4: navigation decision.
	decision := Navigate(modulated, scores, c.cfg)

	log.Debugw("routing decision",
		"trace_id", traceID, "decision", decision, "scores", scores)

	return Output{
		Decision:   decision,
		Modulated:  modulated,
		Scores:     scores,
		GateStatus: status,
		TraceID:    traceID,
		Timestamp:  time.Now(),
	}
}

func (c *Controller) gateControl(state eps.State) GateStatus {
	status := GateStatus{Entropy: true, Safety: true, Budget: true}
	log := logging.Get(logging.CategoryWM)

	if state.H > c.cfg.HMax {
		status.Entropy = false
		log.Warnw("entropy gate failed", "H", state.H, "h_max", c.cfg.HMax)
	}

	if c.safety != nil {
		status.Safety = c.safety.EvaluateSafety(state).Pass
	} else if state.S < c.cfg.SMin {
		status.Safety = false
		log.Warnw("safety gate failed", "S", state.S, "s_min", c.cfg.SMin)
	}

	if c.budget != nil {
		ok, reason := c.budget.Check(state)
		status.Budget = ok
		if !ok {
			log.Warnw("budget gate failed", "reason", reason)
		}
	}

	return status
}

func (c *Controller) queryResonance(state eps.State, traceID string) map[string]float64 {
	scores := make(map[string]float64, len(c.fields))
	log := logging.Get(logging.CategoryWM)

	for name, field := range c.fields {
		if field == nil {
			continue
		}
		score, err := field.QueryResonance(state, traceID)
		if err != nil {
			log.Warnw("resonance query failed", "field", name, "error", err)
			scores[name] = 0
			continue
		}
		if score < 0 || score > 1 {
			log.Warnw("resonance score out of range, recording zero",
				"field", name, "score", score)
			scores[name] = 0
			continue
		}
		scores[name] = score
	}
	return scores
}

// Modulate applies the bounded context modulation. At most one intensity
// bonus applies: x1.10 for strong episodic resonance, else x1.05 for strong
// semantic resonance. Stability is scaled x1.05 and clamped to 1.0 only on
// strong semantic resonance. Every other field passes through unchanged.
func Modulate(state eps.State, scores map[string]float64, cfg Config) eps.State {
	episodic := scores["episodic"]
	semantic := scores["semantic"]

	out := state
	switch {
	case episodic > cfg.EpisodicTrigger:
		out = out.WithIntensity(state.I * 1.10)
	case semantic > cfg.SemanticTrigger:
		out = out.WithIntensity(state.I * 1.05)
	}
	if semantic > cfg.SemanticTrigger {
		out = out.WithStability(state.S * 1.05)
	}
	return out
}

// Navigate selects the downstream path, fixed precedence.
func Navigate(modulated eps.State, scores map[string]float64, cfg Config) Decision {
	if scores["episodic"] > cfg.EpisodicTrigger {
		return DecisionExtendPath
	}
	if scores["semantic"] > cfg.SemanticTrigger {
		return DecisionRecallSN
	}
	if modulated.I > cfg.ActionIntensity && modulated.S > cfg.ActionStability {
		return DecisionTriggerAction
	}
	if modulated.H < cfg.ReflexEntropyMax {
		return DecisionReflex
	}
	return DecisionCreateNewSN
}

// Validate checks router thresholds.
func (c Config) Validate() error {
	if c.HMax <= 0 || c.HMax > 1 {
		return fmt.Errorf("wm: h_max=%v out of range (0,1]", c.HMax)
	}
	if c.SMin < 0 || c.SMin > 1 {
		return fmt.Errorf("wm: s_min=%v out of range [0,1]", c.SMin)
	}
	if c.EpisodicTrigger < 0 || c.EpisodicTrigger > 1 {
		return fmt.Errorf("wm: episodic_trigger=%v out of range [0,1]", c.EpisodicTrigger)
	}
	if c.SemanticTrigger < 0 || c.SemanticTrigger > 1 {
		return fmt.Errorf("wm: semantic_trigger=%v out of range [0,1]", c.SemanticTrigger)
	}
	return nil
}
