package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// RetryPolicy retries an outbound call with exponential backoff and jitter.
// The wait before attempt n (0-based) is min(BaseDelay*2^n, MaxDelay) plus up
// to Jitter of that value.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	IsRetryable func(error) bool
	Sleep       func(context.Context, time.Duration) error

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRetryPolicy fills zero values with defaults (3 attempts, 100ms..2s).
func NewRetryPolicy(maxAttempts int, base, max time.Duration, jitter float64) *RetryPolicy {
	p := &RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		MaxDelay:    max,
		Jitter:      jitter,
	}
	p.applyDefaults()
	return p
}

// EmbeddingRetryPolicy waits a random exponential 1s..20s and stops after six attempts.
func EmbeddingRetryPolicy() *RetryPolicy {
	return NewRetryPolicy(6, time.Second, 20*time.Second, 1)
}

func (p *RetryPolicy) applyDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 2 * time.Second
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.IsRetryable == nil {
		p.IsRetryable = DefaultIsRetryable
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. The last error is returned wrapped.
func (p *RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	if p == nil {
		return fn(ctx)
	}
	p.applyDefaults()
	var lastErr error
	attempts := 0
	for i := 0; i < p.MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !p.IsRetryable(err) || i == p.MaxAttempts-1 {
			break
		}
		if err := p.Sleep(ctx, p.Delay(i)); err != nil {
			return err
		}
	}
	return fmt.Errorf("retry failed after %d attempt(s): %w", attempts, lastErr)
}

// Delay returns the wait before retrying after the given 0-based attempt.
// Jitter is applied before the cap, so the result never exceeds MaxDelay.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	p.applyDefaults()
	d := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * p.float())
	}
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d
}

func (p *RetryPolicy) float() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return p.rng.Float64()
}

// Retry is Do for calls that produce a value.
func Retry[T any](ctx context.Context, p *RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// DefaultIsRetryable retries everything except cancellation and permanent errors.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perm permanentError
	return !errors.As(err, &perm)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
