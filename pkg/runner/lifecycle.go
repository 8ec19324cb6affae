package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var ErrDrainTimeout = errors.New("drain timeout")

type LifecycleRunner struct {
	state    int32
	ctx      context.Context
	cancel   context.CancelFunc
	onceStop sync.Once
	hooks    Hooks
	drainer  Drainer
	stopErr  error
	timeout  time.Duration
	banner   io.Writer
	quiet    bool
}

type Option func(*LifecycleRunner)

// WithBannerWriter redirects the banner; nil suppresses it.
func WithBannerWriter(w io.Writer) Option {
	return func(r *LifecycleRunner) {
		r.banner = w
		r.quiet = w == nil
	}
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration, opts ...Option) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &LifecycleRunner{
		state:   int32(StateNew),
		ctx:     ctx,
		cancel:  cancel,
		hooks:   hooks,
		drainer: drainer,
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run blocks until ctx is cancelled or Stop is called, then drains.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.casState(StateNew, StateStarting) {
		return fmt.Errorf("runner: cannot run from state %s", r.State())
	}
	if !r.quiet {
		PrintBanner(r.banner)
	}
	if ctx != nil {
		r.cancel()
		r.ctx, r.cancel = context.WithCancel(ctx)
	}
	if r.hooks.OnStart != nil {
		if err := r.hooks.OnStart(r.ctx); err != nil {
			r.cancel()
			_ = r.stop()
			return fmt.Errorf("runner: start: %w", err)
		}
	}
	r.setState(StateRunning)
	<-r.ctx.Done()
	return r.stop()
}

func (r *LifecycleRunner) Stop() error {
	r.cancel()
	return r.stop()
}

func (r *LifecycleRunner) State() State {
	return State(atomic.LoadInt32(&r.state))
}

func (r *LifecycleRunner) stop() error {
	r.onceStop.Do(func() {
		r.setState(StateDraining)
		if r.drainer != nil {
			done := make(chan error, 1)
			go func() { done <- r.drainer.Drain() }()
			select {
			case err := <-done:
				r.stopErr = err
			case <-time.After(r.timeout):
				r.stopErr = ErrDrainTimeout
			}
		}
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.setState(StateStopped)
	})
	return r.stopErr
}

func (r *LifecycleRunner) casState(from, to State) bool {
	return atomic.CompareAndSwapInt32(&r.state, int32(from), int32(to))
}

func (r *LifecycleRunner) setState(s State) {
	atomic.StoreInt32(&r.state, int32(s))
}
