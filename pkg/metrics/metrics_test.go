package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMemoryObserverCount(t *testing.T) {
	m := NewMemoryObserver()
	Record(m, EventToolCall, 1, map[string]string{"tool": "calculator"})
	Record(m, EventToolCall, 1, nil)
	Record(m, EventModelCall, 1, nil)
	if m.Count(EventToolCall) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", m.Count(EventToolCall))
	}
	if len(m.Events()) != 3 {
		t.Fatalf("expected 3 events")
	}
}

func TestJSONLObserverWritesTags(t *testing.T) {
	var buf bytes.Buffer
	o := NewJSONLObserver(&buf, EventModelCall)
	o.RecordEvent(MetricsEvent{
		Name:   EventModelCall,
		Time:   time.Now(),
		Tags:   map[string]string{"provider": "mock"},
		Fields: map[string]any{"total_tokens": 12},
	})
	o.RecordEvent(MetricsEvent{Name: EventToolCall, Time: time.Now()})
	if buf.Len() != 0 {
		t.Fatalf("expected output buffered until flush")
	}
	if err := o.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"name":"model_call"`) || !strings.Contains(out, `"provider":"mock"`) {
		t.Fatalf("unexpected output %s", out)
	}
	if !strings.Contains(out, `"fields":{"total_tokens":12}`) {
		t.Fatalf("expected grouped fields, got %s", out)
	}
	if strings.Count(out, "\n") != 1 || strings.Contains(out, "tool_call") {
		t.Fatalf("expected only model_call lines, got %s", out)
	}
}

func TestAsyncObserverFlushIsABarrier(t *testing.T) {
	mem := NewMemoryObserver()
	a := NewAsyncObserver(mem, 64)
	defer a.Close()
	for i := 0; i < 10; i++ {
		a.RecordEvent(MetricsEvent{Name: EventModelCall})
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := mem.Count(EventModelCall) + int(a.Dropped()); got != 10 {
		t.Fatalf("expected all 10 events handled by flush, got %d", got)
	}
}

func TestAsyncObserverDeliversBeforeClose(t *testing.T) {
	mem := NewMemoryObserver()
	a := NewAsyncObserver(mem, 8)
	for i := 0; i < 5; i++ {
		a.RecordEvent(MetricsEvent{Name: EventToolCall})
	}
	a.Close()
	if got := mem.Count(EventToolCall) + int(a.Dropped()); got != 5 {
		t.Fatalf("expected 5 delivered or dropped, got %d", got)
	}
	a.RecordEvent(MetricsEvent{Name: EventToolCall})
	if mem.Count(EventToolCall) > 5 {
		t.Fatalf("events after close must be ignored")
	}
}

func TestRecordNilObserver(t *testing.T) {
	Record(nil, EventToolCall, 1, nil)
	OrNoop(nil).RecordEvent(MetricsEvent{})
}
