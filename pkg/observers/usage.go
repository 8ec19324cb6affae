package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/resep/pkg/metrics"
)

// UsageSummary is the token spend of one session.
type UsageSummary struct {
	SessionID        string `json:"session_id"`
	Provider         string `json:"provider,omitempty"`
	ModelCalls       int    `json:"model_calls"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ToolCalls        int    `json:"tool_calls"`
	ToolErrors       int    `json:"tool_errors"`
	RecordedAtUTC    string `json:"recorded_at_utc,omitempty"`
}

// UsageObserver accumulates token usage per session and writes one
// <session>.usage.json per session into dir on Close.
type UsageObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*UsageSummary
}

func NewUsageObserver(dir string) *UsageObserver {
	return &UsageObserver{dir: dir, stats: make(map[string]*UsageSummary)}
}

func (o *UsageObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := sessionOf(ev)
	if id == "" {
		return
	}
	switch ev.Name {
	case metrics.EventModelCall, metrics.EventToolCall, metrics.EventToolError:
	default:
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	stat := o.stats[id]
	if stat == nil {
		stat = &UsageSummary{SessionID: id}
		o.stats[id] = stat
	}
	switch ev.Name {
	case metrics.EventModelCall:
		stat.ModelCalls++
		if p := ev.Tags["provider"]; p != "" {
			stat.Provider = p
		}
		stat.PromptTokens += intField(ev.Fields, "prompt_tokens")
		stat.CompletionTokens += intField(ev.Fields, "completion_tokens")
		stat.TotalTokens += intField(ev.Fields, "total_tokens")
	case metrics.EventToolCall:
		stat.ToolCalls++
	case metrics.EventToolError:
		stat.ToolErrors++
	}
}

// Summary returns a copy of the running totals for a session.
func (o *UsageObserver) Summary(sessionID string) (UsageSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	stat, ok := o.stats[sessionID]
	if !ok {
		return UsageSummary{}, false
	}
	return *stat, true
}

func (o *UsageObserver) Close() error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	var errOut error
	for id, stat := range o.stats {
		stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
		b, err := json.MarshalIndent(stat, "", "  ")
		if err != nil {
			errOut = errors.Join(errOut, err)
			continue
		}
		path := filepath.Join(o.dir, sanitizeID(id)+".usage.json")
		if err := os.WriteFile(path, b, 0o644); err != nil {
			errOut = errors.Join(errOut, err)
		}
	}
	return errOut
}

// intField reads a count that may have passed through JSON as a float.
func intField(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

var _ metrics.Observer = (*UsageObserver)(nil)
