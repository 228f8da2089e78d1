// Package runtime implements the deterministic execution loop: a fixed,
// totally ordered sequence of phases that admits a perceptual signal through
// the gate, routes it through working memory, and hands it to the
// downstream reasoning, decision, and action collaborators. Per-cycle
// failures are contained; the loop itself never dies on a bad input.
package runtime

import (
	"time"

	"cogman/internal/eps"
	"cogman/internal/gate"
	"cogman/internal/trace"
	"cogman/internal/wm"
)

// Phase enumerates the canonical cycle phases. The order is locked: a cycle
// visits phases in strictly ascending order and never skips one (an early
// return on no-input or a BLOCK verdict ends the cycle, it does not reorder
// it).
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInputIntake
	PhaseSensoryAdaptation
	PhasePerceptionBoundary
	PhaseTrajectoryAdmission
	PhaseWorkingMemoryControl
	PhaseReasoning
	PhaseDecision
	PhaseActionOutput
	PhasePostProcessing
)

var phaseNames = map[Phase]string{
	PhaseIdle:                 "IDLE",
	PhaseInputIntake:          "INPUT_INTAKE",
	PhaseSensoryAdaptation:    "SENSORY_ADAPTATION",
	PhasePerceptionBoundary:   "PERCEPTION_BOUNDARY",
	PhaseTrajectoryAdmission:  "TRAJECTORY_ADMISSION",
	PhaseWorkingMemoryControl: "WORKING_MEMORY_CONTROL",
	PhaseReasoning:            "REASONING",
	PhaseDecision:             "DECISION",
	PhaseActionOutput:         "ACTION_OUTPUT",
	PhasePostProcessing:       "POST_PROCESSING",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// Phases returns the canonical phase order.
func Phases() []Phase {
	return []Phase{
		PhaseIdle, PhaseInputIntake, PhaseSensoryAdaptation,
		PhasePerceptionBoundary, PhaseTrajectoryAdmission,
		PhaseWorkingMemoryControl, PhaseReasoning, PhaseDecision,
		PhaseActionOutput, PhasePostProcessing,
	}
}

// =============================================================================
// PHASE BOUNDARY RECORDS
// =============================================================================

// RawInput is the phase 1 output: the envelope around one external input.
type RawInput struct {
	Payload   any
	RequestID string
	Timestamp time.Time
	SourceID  string
	Metadata  map[string]any
}

// OriginPack is the phase 2 output: the normalized signal.
type OriginPack struct {
	Signal    any
	Modality  string // "text" | "image" | "audio"
	Timestamp time.Time
	SourceID  string
}

// Trajectory is the admitted record that flows from phase 4 onward. It
// couples the energetic state to its audit trace and verdict.
type Trajectory struct {
	TraceID string
	State   eps.State
	Verdict gate.Verdict
	Gate    gate.Result
	Trace   trace.Trace
}

// ReasoningInput is what phase 6 hands the reasoning collaborator.
type ReasoningInput struct {
	Trajectory Trajectory
	Hint       wm.Decision // router navigation decision, may be empty
	TraceID    string
}

// ReasoningOutput is the opaque structure returned by reasoning.
type ReasoningOutput struct {
	StructureType string
	Structure     any
	TraceID       string
}

// DecisionOutput is the opaque final decision from phase 7.
type DecisionOutput struct {
	Decision string
	Payload  any
}

// ActionOutput is the phase 8 output.
type ActionOutput struct {
	ActionType string
	Output     any
	TraceID    string
	Timestamp  time.Time
}

// PhaseResults aggregates per-cycle observations for post-processing.
type PhaseResults struct {
	Verdict    gate.Verdict
	Navigation wm.Decision
	CycleStart time.Time
	Durations  map[string]time.Duration
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================
// All collaborators are optional; a nil collaborator gets the documented
// pass-through fallback so the loop stays runnable in partial assemblies.

// SensoryAdapter normalizes raw input into an origin pack (phase 2).
type SensoryAdapter interface {
	Adapt(in RawInput) (OriginPack, error)
}

// PerceptionModule projects a normalized signal into an energetic state
// (phase 3). Feature extraction internals are outside this core.
type PerceptionModule interface {
	ProjectEnergy(origin OriginPack) (eps.State, error)
}

// Router is the working-memory control stage (phase 5). *wm.Controller
// satisfies it.
type Router interface {
	Route(state eps.State, traceID string) wm.Output
}

// ReasoningModule produces an opaque structure from the trajectory (phase 6).
type ReasoningModule interface {
	Process(in ReasoningInput) (ReasoningOutput, error)
}

// DecisionModule makes the final call on the reasoning structure (phase 7).
type DecisionModule interface {
	Decide(r ReasoningOutput) (DecisionOutput, error)
}

// ActionModule renders the decision into observable output (phase 8).
type ActionModule interface {
	Execute(d DecisionOutput, traj Trajectory, r ReasoningOutput) (ActionOutput, error)
}

// TracePersister stores traces by lifecycle bucket. *store.TraceStore
// satisfies it. Persistence failures are logged, never fatal to a cycle.
type TracePersister interface {
	Save(t trace.Trace, bucket string) error
	Move(id, from, to string) error
}
