package observers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/resep/pkg/logging"
	"github.com/harunnryd/resep/pkg/metrics"
)

func event(name string, value float64, tags map[string]string, fields map[string]any) metrics.MetricsEvent {
	return metrics.MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags, Fields: fields}
}

func TestTimelineObserverWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	obs.RecordEvent(event(metrics.EventStateChange, 1, map[string]string{
		"session_id": "sess/1",
		"from":       "AWAITING_MODEL",
		"to":         "TOOL_REQUESTED",
	}, nil))
	obs.RecordEvent(event(metrics.EventToolCall, 3, map[string]string{"session_id": "sess/1", "tool": "calculator"},
		map[string]any{"note": "mail me at jane@example.com"}))
	obs.RecordEvent(event(metrics.EventToolCall, 3, map[string]string{"tool": "untagged"}, nil))
	if err := obs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "sess_1.jsonl"))
	if err != nil {
		t.Fatalf("open timeline: %v", err)
	}
	defer f.Close()
	var events []timelineEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev timelineEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Event != "state_tool_requested" || events[0].SessionID != "sess/1" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if _, ok := events[1].Tags["session_id"]; ok {
		t.Fatalf("session id should not be repeated in tags")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("untagged events should not create files, got %d files", len(entries))
	}
}

func TestUsageObserverSumsTokens(t *testing.T) {
	dir := t.TempDir()
	obs := NewUsageObserver(dir)
	tags := map[string]string{"session_id": "s1", "provider": "openai"}
	obs.RecordEvent(event(metrics.EventModelCall, 10, tags, map[string]any{"prompt_tokens": 80, "completion_tokens": 20, "total_tokens": 100}))
	obs.RecordEvent(event(metrics.EventModelCall, 10, tags, map[string]any{"prompt_tokens": 120.0, "completion_tokens": 5, "total_tokens": 125}))
	obs.RecordEvent(event(metrics.EventToolCall, 1, map[string]string{"session_id": "s1"}, nil))
	obs.RecordEvent(event(metrics.EventToolError, 1, map[string]string{"session_id": "s1"}, nil))

	sum, ok := obs.Summary("s1")
	if !ok {
		t.Fatalf("expected summary")
	}
	if sum.ModelCalls != 2 || sum.PromptTokens != 200 || sum.TotalTokens != 225 || sum.ToolCalls != 1 || sum.ToolErrors != 1 || sum.Provider != "openai" {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if err := obs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "s1.usage.json"))
	if err != nil {
		t.Fatalf("read usage: %v", err)
	}
	if !strings.Contains(string(raw), `"total_tokens": 225`) {
		t.Fatalf("unexpected usage file %s", raw)
	}
}

func TestLatencyObserverReportsCompletedRuns(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLatencyObserver(logging.NewLogger(&buf, "info", "json"))
	var got []RunLatency
	obs.OnRun(func(r RunLatency) { got = append(got, r) })

	tags := func(extra map[string]string) map[string]string {
		out := map[string]string{"session_id": "s1"}
		for k, v := range extra {
			out[k] = v
		}
		return out
	}
	obs.RecordEvent(event(metrics.EventModelCall, 100, tags(nil), nil))
	obs.RecordEvent(event(metrics.EventToolCall, 5, tags(nil), nil))
	obs.RecordEvent(event(metrics.EventModelCall, 50, tags(nil), nil))
	obs.RecordEvent(event(metrics.EventStateChange, 1, tags(map[string]string{"to": "DONE"}), nil))

	if len(got) != 1 {
		t.Fatalf("expected one completed run, got %d", len(got))
	}
	if got[0].ModelMS != 150 || got[0].ToolMS != 5 || got[0].ModelCalls != 2 || got[0].ToolCalls != 1 {
		t.Fatalf("unexpected run %+v", got[0])
	}
	if !strings.Contains(buf.String(), "run_latency") {
		t.Fatalf("expected run_latency log line")
	}

	// a new run under the same session starts from zero
	obs.RecordEvent(event(metrics.EventModelCall, 7, tags(nil), nil))
	obs.RecordEvent(event(metrics.EventStateChange, 1, tags(map[string]string{"to": "DONE"}), nil))
	if len(got) != 2 || got[1].ModelMS != 7 {
		t.Fatalf("unexpected second run %+v", got)
	}
}

func TestMultiObserverFansOut(t *testing.T) {
	a, b := metrics.NewMemoryObserver(), metrics.NewMemoryObserver()
	m := NewMultiObserver(a, nil, b, NewLoggerObserver(logging.Discard()))
	m.RecordEvent(event(metrics.EventToolCall, 1, nil, nil))
	if a.Count(metrics.EventToolCall) != 1 || b.Count(metrics.EventToolCall) != 1 {
		t.Fatalf("expected both observers to receive the event")
	}

	var buf bytes.Buffer
	jsonl := metrics.NewJSONLObserver(&buf)
	m = NewMultiObserver(a, jsonl)
	m.RecordEvent(event(metrics.EventModelCall, 1, map[string]string{"session_id": "s9"}, nil))
	if err := m.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !strings.Contains(buf.String(), `"session_id":"s9"`) {
		t.Fatalf("expected flushed jsonl, got %q", buf.String())
	}
}

func TestPurgeArtifacts(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-72 * time.Hour)
	for _, name := range []string{"a.jsonl", "a.usage.json", "keep.txt"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "fresh.jsonl"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	n, err := PurgeArtifacts(dir, 24*time.Hour, time.Now())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "keep.txt")); err != nil {
		t.Fatalf("non-artifact should survive: %v", err)
	}
	if n, err := PurgeArtifacts(filepath.Join(dir, "missing"), time.Hour, time.Now()); n != 0 || err != nil {
		t.Fatalf("missing dir should be a no-op: %d %v", n, err)
	}
}
