package observers

import (
	"log/slog"
	"sync"

	"github.com/harunnryd/resep/pkg/metrics"
)

// RunLatency is the time one run spent waiting on the model and on tools.
type RunLatency struct {
	SessionID  string
	ModelMS    float64
	ToolMS     float64
	ModelCalls int
	ToolCalls  int
}

// LatencyObserver sums model and tool latency per session and logs the total
// when the run reaches its final state.
type LatencyObserver struct {
	mu   sync.Mutex
	runs map[string]*RunLatency
	log  *slog.Logger
	done func(RunLatency)
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{runs: make(map[string]*RunLatency), log: log}
}

// OnRun registers a callback for every completed run.
func (o *LatencyObserver) OnRun(fn func(RunLatency)) { o.done = fn }

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := sessionOf(ev)
	if id == "" {
		return
	}
	o.mu.Lock()
	run := o.runs[id]
	if run == nil {
		run = &RunLatency{SessionID: id}
		o.runs[id] = run
	}
	var finished *RunLatency
	switch ev.Name {
	case metrics.EventModelCall:
		run.ModelMS += ev.Value
		run.ModelCalls++
	case metrics.EventToolCall:
		run.ToolMS += ev.Value
		run.ToolCalls++
	case metrics.EventModelError:
		delete(o.runs, id)
	case metrics.EventStateChange:
		if ev.Tags["to"] == "DONE" {
			snapshot := *run
			finished = &snapshot
			delete(o.runs, id)
		}
	}
	o.mu.Unlock()

	if finished == nil {
		return
	}
	o.log.Info("run_latency",
		"session_id", finished.SessionID,
		"model_ms", finished.ModelMS,
		"tool_ms", finished.ToolMS,
		"model_calls", finished.ModelCalls,
		"tool_calls", finished.ToolCalls,
	)
	if o.done != nil {
		o.done(*finished)
	}
}

var _ metrics.Observer = (*LatencyObserver)(nil)
