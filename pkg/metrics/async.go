package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncObserver hands events to inner on a background goroutine, dropping
// events when the buffer is full so callers never block on metrics.
type AsyncObserver struct {
	inner   Observer
	ch      chan asyncItem
	dropped atomic.Int64
	closed  atomic.Bool
	mu      sync.RWMutex
	once    sync.Once
	done    chan struct{}
}

// asyncItem carries either an event or a flush barrier.
type asyncItem struct {
	ev  MetricsEvent
	ack chan struct{}
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncObserver{
		inner: OrNoop(inner),
		ch:    make(chan asyncItem, buffer),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed.Load() {
		return
	}
	select {
	case a.ch <- asyncItem{ev: ev}:
	default:
		a.dropped.Add(1)
	}
}

func (a *AsyncObserver) Dropped() int64 {
	return a.dropped.Load()
}

// Flush blocks until every event queued before the call reached inner,
// then flushes inner if it is a Flusher.
func (a *AsyncObserver) Flush() error {
	if a == nil {
		return nil
	}
	ack := make(chan struct{})
	a.mu.RLock()
	if a.closed.Load() {
		a.mu.RUnlock()
		return nil
	}
	a.ch <- asyncItem{ack: ack}
	a.mu.RUnlock()
	<-ack
	if f, ok := a.inner.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// Close stops accepting events and waits for the queue to drain.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		a.mu.Lock()
		a.closed.Store(true)
		close(a.ch)
		a.mu.Unlock()
	})
	<-a.done
}

// Drain lets the observer plug into runner.Drainer.
func (a *AsyncObserver) Drain() error {
	a.Close()
	if f, ok := a.inner.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func (a *AsyncObserver) loop() {
	defer close(a.done)
	for item := range a.ch {
		if item.ack != nil {
			close(item.ack)
			continue
		}
		a.inner.RecordEvent(item.ev)
	}
}
