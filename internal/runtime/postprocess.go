package runtime

import (
	"sync"
	"sync/atomic"
	"time"

	"cogman/internal/logging"
)

// PostInput is the payload handed to post-processing after a cycle.
type PostInput struct {
	Trajectory Trajectory
	Action     ActionOutput
	Results    PhaseResults
}

// PostProcessor is the external post-processing collaborator. Errors are
// logged and dropped; nothing a processor does may reach back into the loop.
type PostProcessor interface {
	Process(in PostInput) error
}

// CycleMetrics is the per-cycle metrics record derived by the worker.
type CycleMetrics struct {
	TraceID    string        `json:"trace_id"`
	Verdict    string        `json:"gate_verdict"`
	ActionType string        `json:"action_type"`
	Navigation string        `json:"navigation_decision"`
	Duration   time.Duration `json:"cycle_duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

// MetricsSink receives cycle metrics. Optional.
type MetricsSink interface {
	Record(m CycleMetrics)
}

const defaultPostBuffer = 64

// Worker is the one sanctioned asynchronous boundary: a bounded FIFO queue
// drained by a single goroutine. Ordering within the queue is preserved;
// there is no ordering guarantee relative to the loop's next cycle, and by
// construction nothing here can affect a later cycle's outcome.
type Worker struct {
	queue     chan PostInput
	processor PostProcessor
	sink      MetricsSink

	wg       sync.WaitGroup
	stopOnce sync.Once
	started  atomic.Bool
	dropped  atomic.Int64
}

// NewWorker builds a post-processing worker. processor and sink may be nil;
// buffer <= 0 selects the default queue depth.
func NewWorker(processor PostProcessor, sink MetricsSink, buffer int) *Worker {
	if buffer <= 0 {
		buffer = defaultPostBuffer
	}
	return &Worker{
		queue:     make(chan PostInput, buffer),
		processor: processor,
		sink:      sink,
	}
}

// Start launches the drain goroutine. Idempotent.
func (w *Worker) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for in := range w.queue {
			w.process(in)
		}
	}()
}

// Submit enqueues one post-processing item without blocking. When the queue
// is full the item is dropped and counted; post-processing is best-effort by
// contract and must never stall the loop.
func (w *Worker) Submit(in PostInput) bool {
	select {
	case w.queue <- in:
		return true
	default:
		w.dropped.Add(1)
		logging.Get(logging.CategoryPost).Warnw("post-processing queue full, dropping item",
			"trace_id", in.Trajectory.TraceID)
		return false
	}
}

// Stop closes the queue and waits for the worker to drain it. Safe to call
// more than once. The loop must stop before its worker; Submit after Stop
// panics on the closed channel.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.queue)
	})
	w.wg.Wait()
}

// Dropped returns the number of items rejected by the full queue.
func (w *Worker) Dropped() int64 {
	return w.dropped.Load()
}

func (w *Worker) process(in PostInput) {
	log := logging.Get(logging.CategoryPost)
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("post-processor panicked", "trace_id", in.Trajectory.TraceID, "panic", r)
		}
	}()

	metrics := CycleMetrics{
		TraceID:    in.Trajectory.TraceID,
		Verdict:    string(in.Results.Verdict),
		ActionType: in.Action.ActionType,
		Navigation: string(in.Results.Navigation),
		Duration:   time.Since(in.Results.CycleStart),
		Timestamp:  time.Now(),
	}
	if w.sink != nil {
		w.sink.Record(metrics)
	}

	if w.processor != nil {
		if err := w.processor.Process(in); err != nil {
			log.Errorw("post-processing failed", "trace_id", in.Trajectory.TraceID, "error", err)
		}
		return
	}
	log.Debugw("cycle completed", "trace_id", in.Trajectory.TraceID, "verdict", metrics.Verdict)
}
