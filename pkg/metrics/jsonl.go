package metrics

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
)

// JSONLObserver writes one JSON object per event, optionally only for the
// listed event names. Output is buffered until Flush.
type JSONLObserver struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	logger *slog.Logger
	only   map[string]bool
}

func NewJSONLObserver(w io.Writer, names ...string) *JSONLObserver {
	if w == nil {
		w = io.Discard
	}
	buf := bufio.NewWriter(w)
	o := &JSONLObserver{buf: buf, logger: slog.New(slog.NewJSONHandler(buf, nil))}
	if len(names) > 0 {
		o.only = make(map[string]bool, len(names))
		for _, n := range names {
			o.only[n] = true
		}
	}
	return o
}

func (o *JSONLObserver) RecordEvent(ev MetricsEvent) {
	if o.only != nil && !o.only[ev.Name] {
		return
	}
	attrs := []slog.Attr{
		slog.String("name", ev.Name),
		slog.Time("time", ev.Time),
		slog.Float64("value", ev.Value),
	}
	for _, k := range sortedKeys(ev.Tags) {
		attrs = append(attrs, slog.String(k, ev.Tags[k]))
	}
	if len(ev.Fields) > 0 {
		keys := make([]string, 0, len(ev.Fields))
		for k := range ev.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]any, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, slog.Any(k, ev.Fields[k]))
		}
		attrs = append(attrs, slog.Group("fields", fields...))
	}
	o.mu.Lock()
	o.logger.LogAttrs(context.Background(), slog.LevelInfo, "metrics", attrs...)
	o.mu.Unlock()
}

func (o *JSONLObserver) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Flush()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
