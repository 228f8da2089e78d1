package runtime

import (
	"fmt"
	"sync"
	"time"

	"cogman/internal/logging"
)

// Severity classifies a contained failure. Supplied by the caller, never
// inferred.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorRecord is one contained failure.
type ErrorRecord struct {
	Phase     string         `json:"phase"`
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Severity  Severity       `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
}

// Handled is the containment verdict returned to the sequencer. Action is
// always "abort_cycle" and Continue is always true: a faulting phase costs
// its cycle, never the loop.
type Handled struct {
	Handled  bool
	Phase    string
	Kind     string
	Action   string
	Continue bool
}

// ErrorSummary is the inspectable containment state.
type ErrorSummary struct {
	Total      int
	ByPhase    map[string]int
	BySeverity map[Severity]int
	Recent     []ErrorRecord
}

const defaultErrorHistory = 256

// Containment is the last line of defense for the sequencer: it records
// failures raised by any phase and never raises itself. Inject one instance
// into the loop; there is no shared singleton.
type Containment struct {
	mu         sync.Mutex
	history    []ErrorRecord
	maxHistory int
	total      int
	byPhase    map[string]int
	bySeverity map[Severity]int
}

// NewContainment builds a containment with a bounded history.
// maxHistory <= 0 selects the default bound.
func NewContainment(maxHistory int) *Containment {
	if maxHistory <= 0 {
		maxHistory = defaultErrorHistory
	}
	return &Containment{
		maxHistory: maxHistory,
		byPhase:    make(map[string]int),
		bySeverity: make(map[Severity]int),
	}
}

// Handle records one failure and tells the sequencer to abort the cycle and
// continue. It tolerates nil errors and never panics.
func (c *Containment) Handle(phase string, err error, context map[string]any, severity Severity) Handled {
	kind := "unknown"
	message := ""
	if err != nil {
		kind = fmt.Sprintf("%T", err)
		message = err.Error()
	}

	record := ErrorRecord{
		Phase:     phase,
		Kind:      kind,
		Message:   message,
		Severity:  severity,
		Timestamp: time.Now(),
		Context:   context,
	}

	c.mu.Lock()
	c.total++
	c.byPhase[phase]++
	c.bySeverity[severity]++
	if len(c.history) >= c.maxHistory {
		c.history = c.history[len(c.history)-c.maxHistory+1:]
	}
	c.history = append(c.history, record)
	c.mu.Unlock()

	log := logging.Get(logging.CategoryErrors)
	switch severity {
	case SeverityLow:
		log.Debugw("phase fault contained", "phase", phase, "error", message)
	case SeverityMedium:
		log.Warnw("phase fault contained", "phase", phase, "error", message)
	default:
		log.Errorw("phase fault contained", "phase", phase, "severity", severity, "error", message)
	}

	return Handled{
		Handled:  true,
		Phase:    phase,
		Kind:     kind,
		Action:   "abort_cycle",
		Continue: true,
	}
}

// Summary returns the running counters and the ten most recent records.
func (c *Containment) Summary() ErrorSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	byPhase := make(map[string]int, len(c.byPhase))
	for k, v := range c.byPhase {
		byPhase[k] = v
	}
	bySeverity := make(map[Severity]int, len(c.bySeverity))
	for k, v := range c.bySeverity {
		bySeverity[k] = v
	}

	n := len(c.history)
	start := n - 10
	if start < 0 {
		start = 0
	}
	recent := make([]ErrorRecord, n-start)
	copy(recent, c.history[start:])

	return ErrorSummary{
		Total:      c.total,
		ByPhase:    byPhase,
		BySeverity: bySeverity,
		Recent:     recent,
	}
}

// Reset clears history and counters.
func (c *Containment) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.total = 0
	c.byPhase = make(map[string]int)
	c.bySeverity = make(map[Severity]int)
}
