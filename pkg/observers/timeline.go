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
	"github.com/harunnryd/resep/pkg/redact"
)

// TimelineObserver appends every event of a session to <dir>/<session>.jsonl.
type TimelineObserver struct {
	dir   string
	mu    sync.Mutex
	files map[string]*os.File
}

func NewTimelineObserver(dir string) *TimelineObserver {
	return &TimelineObserver{dir: dir, files: make(map[string]*os.File)}
}

func (o *TimelineObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := sessionOf(ev)
	if id == "" || strings.TrimSpace(o.dir) == "" {
		return
	}
	entry := timelineEvent{
		Time:      ev.Time.UTC(),
		Event:     eventName(ev),
		SessionID: id,
		Value:     ev.Value,
		Tags:      copyTags(ev.Tags),
		Fields:    sanitizeFields(ev.Fields),
	}
	delete(entry.Tags, "session_id")
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	f := o.fileForLocked(id)
	if f == nil {
		return
	}
	_, _ = f.Write(append(line, '\n'))
}

// Close closes every open timeline file.
func (o *TimelineObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var err error
	for _, f := range o.files {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	o.files = make(map[string]*os.File)
	return err
}

type timelineEvent struct {
	Time      time.Time         `json:"time"`
	Event     string            `json:"event"`
	SessionID string            `json:"session_id"`
	Value     float64           `json:"value,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	Fields    map[string]any    `json:"fields,omitempty"`
}

func (o *TimelineObserver) fileForLocked(id string) *os.File {
	safe := sanitizeID(id)
	if safe == "" {
		return nil
	}
	if f := o.files[safe]; f != nil {
		return f
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(o.dir, safe+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	o.files[safe] = f
	return f
}

// eventName spells state changes out as state_<to>, e.g. state_tool_requested.
func eventName(ev metrics.MetricsEvent) string {
	if ev.Name == metrics.EventStateChange && ev.Tags["to"] != "" {
		return "state_" + strings.ToLower(ev.Tags["to"])
	}
	return ev.Name
}

func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '_'
	}, strings.TrimSpace(id))
}

func copyTags(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sanitizeFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = redact.Text(s)
			continue
		}
		out[k] = v
	}
	return out
}

var _ metrics.Observer = (*TimelineObserver)(nil)
