package resilience

import (
	"errors"
	"sync"
	"time"
)

// RateLimitError represents a provider rate limit response.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e RateLimitError) Error() string {
	if e.Message != "" {
		return e.Provider + ": " + e.Message
	}
	return e.Provider + ": rate limit"
}

// IsRateLimit returns true when the error is a RateLimitError.
func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreaker stops calls to a provider after threshold consecutive rate
// limits. Once the cooldown passes a single trial call is let through; its
// outcome closes or reopens the breaker.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	threshold int
	openedAt  time.Time
	cooldown  time.Duration
	trial     bool
	now       func() time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{state: BreakerClosed, threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a call may go out now. In the half-open state only
// one caller gets true until that call reports back.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case BreakerOpen:
		if c.now().Sub(c.openedAt) < c.cooldown {
			return false
		}
		c.state = BreakerHalfOpen
		c.trial = true
		return true
	case BreakerHalfOpen:
		if c.trial {
			return false
		}
		c.trial = true
		return true
	}
	return true
}

func (c *CircuitBreaker) State() BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Failures returns the consecutive rate limit count.
func (c *CircuitBreaker) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	c.state = BreakerClosed
	c.failures = 0
	c.trial = false
	c.mu.Unlock()
}

// OnError counts rate limit errors only. Any other failure of a half-open
// trial frees the slot for the next caller.
func (c *CircuitBreaker) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trial = false
	if !IsRateLimit(err) {
		return
	}
	c.failures++
	if c.state == BreakerHalfOpen || c.failures >= c.threshold {
		c.state = BreakerOpen
		c.openedAt = c.now()
	}
}
