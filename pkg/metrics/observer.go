package metrics

import "time"

// Event names emitted by the conversation loop and its collaborators.
const (
	EventModelCall     = "model_call"
	EventModelError    = "model_error"
	EventToolCall      = "tool_call"
	EventToolError     = "tool_error"
	EventStateChange   = "state_change"
	EventRetry         = "retry"
	EventRateLimit     = "rate_limit"
	EventBreakerOpen   = "breaker_open"
	EventBreakerClose  = "breaker_close"
	EventBreakerDenied = "breaker_denied"
	EventIndexUpload   = "index_upload"
	EventIndexQuery    = "index_query"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// OrNoop returns obs, or a NoopObserver when obs is nil.
func OrNoop(obs Observer) Observer {
	if obs == nil {
		return NoopObserver{}
	}
	return obs
}

// Record is a shorthand for emitting a tagged event stamped with the current time.
func Record(obs Observer, name string, value float64, tags map[string]string) {
	if obs == nil {
		return
	}
	obs.RecordEvent(MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags})
}
