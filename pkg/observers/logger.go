// Package observers holds metrics sinks that turn loop events into logs and
// per-session artifacts.
package observers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/harunnryd/resep/pkg/metrics"
)

// LoggerObserver logs every event at debug level.
type LoggerObserver struct {
	log *slog.Logger
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log}
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	if !o.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := make([]slog.Attr, 0, 3+len(ev.Tags)+len(ev.Fields))
	attrs = append(attrs,
		slog.String("name", ev.Name),
		slog.Time("time", ev.Time),
		slog.Float64("value", ev.Value),
	)
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	o.log.LogAttrs(context.Background(), slog.LevelDebug, "metrics", attrs...)
}

// MultiObserver fans one event out to several observers.
type MultiObserver struct {
	list []metrics.Observer
}

func NewMultiObserver(list ...metrics.Observer) *MultiObserver {
	return &MultiObserver{list: list}
}

func (m *MultiObserver) RecordEvent(ev metrics.MetricsEvent) {
	for _, obs := range m.list {
		if obs != nil {
			obs.RecordEvent(ev)
		}
	}
}

// Flush flushes every member that buffers output.
func (m *MultiObserver) Flush() error {
	var errs []error
	for _, obs := range m.list {
		if f, ok := obs.(metrics.Flusher); ok {
			errs = append(errs, f.Flush())
		}
	}
	return errors.Join(errs...)
}

func sessionOf(ev metrics.MetricsEvent) string {
	if ev.Tags == nil {
		return ""
	}
	return ev.Tags["session_id"]
}
