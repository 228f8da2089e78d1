package runtime

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cogman/internal/eps"
	"cogman/internal/logging"
	"cogman/internal/trace"
	"cogman/internal/wm"
)

// Input is one queued external input awaiting a cycle.
type Input struct {
	Payload  any
	SourceID string
}

// LoopConfig tunes the sequencer.
type LoopConfig struct {
	QueueSize    int           // input queue depth
	IdlePoll     time.Duration // how long IDLE waits for input before ending the cycle
	HistoryDepth int           // readiness values retained for trend/variance
	RuntimeMode  string        // recorded in every trace context
}

// DefaultLoopConfig returns production defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		QueueSize:    128,
		IdlePoll:     10 * time.Millisecond,
		HistoryDepth: 16,
		RuntimeMode:  "normal",
	}
}

// Deps wires the sequencer's collaborators. Adapter is required; everything
// else is optional and replaced by the documented pass-through fallback.
type Deps struct {
	Sensory     SensoryAdapter
	Perception  PerceptionModule
	Adapter     *Adapter
	Router      Router
	Reasoning   ReasoningModule
	Decision    DecisionModule
	Action      ActionModule
	Post        *Worker
	Containment *Containment
	Persister   TracePersister
}

// Loop is the phase sequencer: single-threaded, cooperative, one cycle at a
// time through the canonical phase order.
type Loop struct {
	cfg  LoopConfig
	deps Deps

	queue   chan Input
	running atomic.Bool
	phase   atomic.Int32

	emuHistory []float64
}

// NewLoop builds a sequencer.
func NewLoop(cfg LoopConfig, deps Deps) (*Loop, error) {
	if deps.Adapter == nil {
		return nil, fmt.Errorf("runtime: admission adapter required")
	}
	if deps.Containment == nil {
		deps.Containment = NewContainment(0)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultLoopConfig().QueueSize
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = DefaultLoopConfig().IdlePoll
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = DefaultLoopConfig().HistoryDepth
	}
	if cfg.RuntimeMode == "" {
		cfg.RuntimeMode = "normal"
	}
	return &Loop{
		cfg:   cfg,
		deps:  deps,
		queue: make(chan Input, cfg.QueueSize),
	}, nil
}

// Enqueue offers one input to the loop without blocking.
func (l *Loop) Enqueue(payload any, sourceID string) error {
	select {
	case l.queue <- Input{Payload: payload, SourceID: sourceID}:
		return nil
	default:
		return fmt.Errorf("runtime: input queue full")
	}
}

// Running reports whether the loop is active.
func (l *Loop) Running() bool { return l.running.Load() }

// CurrentPhase returns the phase the loop last entered.
func (l *Loop) CurrentPhase() Phase { return Phase(l.phase.Load()) }

// Containment exposes the error containment for inspection.
func (l *Loop) Containment() *Containment { return l.deps.Containment }

// Stop flips the running flag; it is observed at the top of the next idle
// check, so shutdown latency is bounded by the current phase, not zero.
func (l *Loop) Stop() {
	l.running.Store(false)
	logging.Get(logging.CategoryRuntime).Info("runtime loop stop requested")
}

// Run drives cycles until Stop is called or ctx is canceled. A fault in any
// phase abandons that cycle and the loop continues; nothing propagates past
// Run and the running flag stays true across contained faults.
func (l *Loop) Run(ctx context.Context) {
	l.running.Store(true)
	log := logging.Get(logging.CategoryRuntime)
	log.Info("runtime loop started")

	for l.running.Load() {
		if ctx.Err() != nil {
			l.running.Store(false)
			break
		}
		l.cycle(ctx)
	}

	log.Info("runtime loop stopped")
}

// cycle executes one guarded cycle. Both returned errors and panics from
// phase handlers land in containment; the loop itself is untouchable.
func (l *Loop) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.deps.Containment.Handle(
				l.CurrentPhase().String(),
				fmt.Errorf("panic: %v", r),
				map[string]any{"runtime_mode": l.cfg.RuntimeMode},
				SeverityHigh,
			)
		}
	}()

	if err := l.executeCycle(ctx); err != nil {
		l.deps.Containment.Handle(
			l.CurrentPhase().String(),
			err,
			map[string]any{"runtime_mode": l.cfg.RuntimeMode},
			SeverityHigh,
		)
	}
}

func (l *Loop) setPhase(p Phase) { l.phase.Store(int32(p)) }

func (l *Loop) executeCycle(ctx context.Context) error {
	log := logging.Get(logging.CategoryRuntime)
	cycleStart := time.Now()
	durations := make(map[string]time.Duration)
	mark := func(p Phase, since time.Time) {
		durations[p.String()] = time.Since(since)
	}

	// PHASE 0: idle / wait.
	l.setPhase(PhaseIdle)
	var in Input
	select {
	case in = <-l.queue:
	case <-ctx.Done():
		l.running.Store(false)
		return nil
	case <-time.After(l.cfg.IdlePoll):
		return nil // no input, cycle ends early
	}

	// PHASE 1: input intake.
	l.setPhase(PhaseInputIntake)
	t1 := time.Now()
	sourceID := in.SourceID
	if sourceID == "" {
		sourceID = "external"
	}
	raw := RawInput{
		Payload:   in.Payload,
		RequestID: uuid.NewString(),
		Timestamp: time.Now(),
		SourceID:  sourceID,
		Metadata:  map[string]any{},
	}
	mark(PhaseInputIntake, t1)

	// PHASE 2: sensory adaptation.
	l.setPhase(PhaseSensoryAdaptation)
	t2 := time.Now()
	origin, err := l.adaptSensory(raw)
	if err != nil {
		return fmt.Errorf("sensory adaptation: %w", err)
	}
	mark(PhaseSensoryAdaptation, t2)

	// PHASE 3: perception boundary.
	l.setPhase(PhasePerceptionBoundary)
	t3 := time.Now()
	state, err := l.projectEnergy(origin)
	if err != nil {
		return fmt.Errorf("perception boundary: %w", err)
	}
	mark(PhasePerceptionBoundary, t3)

	// PHASE 4: trajectory admission.
	l.setPhase(PhaseTrajectoryAdmission)
	t4 := time.Now()
	traj, blocked, err := l.admit(state, raw, origin)
	if err != nil {
		return err
	}
	mark(PhaseTrajectoryAdmission, t4)
	if blocked {
		log.Infow("cycle ended by admission block",
			"request_id", raw.RequestID, "trace_id", traj.TraceID)
		return nil // phases 5-9 are not invoked for this input
	}

	// PHASE 5: working-memory control.
	l.setPhase(PhaseWorkingMemoryControl)
	t5 := time.Now()
	wmOut := l.routeWorkingMemory(traj)
	mark(PhaseWorkingMemoryControl, t5)

	// PHASE 6: reasoning.
	l.setPhase(PhaseReasoning)
	t6 := time.Now()
	reasoning, err := l.reason(traj, wmOut)
	if err != nil {
		return fmt.Errorf("reasoning: %w", err)
	}
	mark(PhaseReasoning, t6)

	// PHASE 7: decision.
	l.setPhase(PhaseDecision)
	t7 := time.Now()
	decision, err := l.decide(reasoning)
	if err != nil {
		return fmt.Errorf("decision: %w", err)
	}
	mark(PhaseDecision, t7)

	// PHASE 8: action / output.
	l.setPhase(PhaseActionOutput)
	t8 := time.Now()
	action, err := l.act(decision, traj, reasoning)
	if err != nil {
		return fmt.Errorf("action output: %w", err)
	}
	mark(PhaseActionOutput, t8)

	completed, err := l.completeTrace(traj, action)
	if err != nil {
		return err
	}
	traj.Trace = completed

	// PHASE 9: post-processing (async, fire and forget).
	l.setPhase(PhasePostProcessing)
	if l.deps.Post != nil {
		l.deps.Post.Submit(PostInput{
			Trajectory: traj,
			Action:     action,
			Results: PhaseResults{
				Verdict:    traj.Verdict,
				Navigation: wmOut.Decision,
				CycleStart: cycleStart,
				Durations:  durations,
			},
		})
	} else {
		log.Debugw("cycle completed", "trace_id", traj.TraceID)
	}

	return nil
}

func (l *Loop) adaptSensory(raw RawInput) (OriginPack, error) {
	if l.deps.Sensory == nil {
		return OriginPack{
			Signal:    raw.Payload,
			Modality:  "text",
			Timestamp: raw.Timestamp,
			SourceID:  raw.SourceID,
		}, nil
	}
	return l.deps.Sensory.Adapt(raw)
}

func (l *Loop) projectEnergy(origin OriginPack) (eps.State, error) {
	if l.deps.Perception == nil {
		// Zero state: S == 0 trips the safety rule downstream, so a missing
		// perception module admits nothing.
		return eps.State{}, nil
	}
	return l.deps.Perception.ProjectEnergy(origin)
}

// admit runs the adapter and persists the post-admission trace. blocked
// reports whether the cycle must end here.
func (l *Loop) admit(state eps.State, raw RawInput, origin OriginPack) (Trajectory, bool, error) {
	gateProfile := l.deps.Adapter.Gate().Policy().Name

	history := make([]float64, len(l.emuHistory))
	copy(history, l.emuHistory)

	tr, result, evalErr := l.deps.Adapter.AdmitWithTrace(state,
		trace.Origin{SourceID: raw.SourceID, Modality: origin.Modality, Adapter: "sensory"},
		trace.Context{GateProfile: gateProfile, RuntimeMode: l.cfg.RuntimeMode},
		history,
	)
	if evalErr != nil {
		// Degraded decision: the verdict already reflects the policy's
		// fail-closed/fail-open posture, so the cycle proceeds on it.
		logging.Get(logging.CategoryRuntime).Errorw("admission ran degraded",
			"trace_id", tr.ID, "verdict", result.Verdict, "error", evalErr)
	}

	// Single-threaded loop: history mutation needs no lock.
	l.emuHistory = append(l.emuHistory, state.EMu)
	if len(l.emuHistory) > l.cfg.HistoryDepth {
		l.emuHistory = l.emuHistory[len(l.emuHistory)-l.cfg.HistoryDepth:]
	}

	l.persist(tr)

	traj := Trajectory{
		TraceID: tr.ID,
		State:   state,
		Verdict: result.Verdict,
		Gate:    result,
		Trace:   tr,
	}
	return traj, result.Blocked(), nil
}

func (l *Loop) routeWorkingMemory(traj Trajectory) wm.Output {
	if l.deps.Router == nil {
		return wm.Output{Modulated: traj.State, Scores: map[string]float64{}, TraceID: traj.TraceID}
	}
	return l.deps.Router.Route(traj.State, traj.TraceID)
}

func (l *Loop) reason(traj Trajectory, wmOut wm.Output) (ReasoningOutput, error) {
	if l.deps.Reasoning == nil {
		return ReasoningOutput{StructureType: "none", TraceID: traj.TraceID}, nil
	}
	return l.deps.Reasoning.Process(ReasoningInput{
		Trajectory: traj,
		Hint:       wmOut.Decision,
		TraceID:    traj.TraceID,
	})
}

func (l *Loop) decide(reasoning ReasoningOutput) (DecisionOutput, error) {
	if l.deps.Decision == nil {
		return DecisionOutput{Decision: "ALLOW"}, nil
	}
	return l.deps.Decision.Decide(reasoning)
}

func (l *Loop) act(decision DecisionOutput, traj Trajectory, reasoning ReasoningOutput) (ActionOutput, error) {
	if l.deps.Action == nil {
		return ActionOutput{ActionType: "none", TraceID: traj.TraceID, Timestamp: time.Now()}, nil
	}
	return l.deps.Action.Execute(decision, traj, reasoning)
}

// completeTrace closes the audit trail for a successful cycle.
func (l *Loop) completeTrace(traj Trajectory, action ActionOutput) (trace.Trace, error) {
	completed, err := l.deps.Adapter.traces.Transition(
		traj.Trace, trace.StateCompleted, "cycle completed",
		map[string]any{"action_type": action.ActionType},
	)
	if err != nil {
		return traj.Trace, fmt.Errorf("runtime: trace completion failed: %w", err)
	}

	if l.deps.Persister != nil {
		if err := l.deps.Persister.Move(completed.ID, trace.StateActive.Bucket(), trace.StateCompleted.Bucket()); err != nil {
			logging.Get(logging.CategoryStore).Warnw("trace move failed",
				"trace_id", completed.ID, "error", err)
		}
		l.persist(completed)
	}
	return completed, nil
}

func (l *Loop) persist(t trace.Trace) {
	if l.deps.Persister == nil {
		return
	}
	if err := l.deps.Persister.Save(t, t.State.Bucket()); err != nil {
		logging.Get(logging.CategoryStore).Warnw("trace save failed",
			"trace_id", t.ID, "error", err)
	}
}
