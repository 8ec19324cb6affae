package llm

import (
	"context"
	"time"

	"github.com/harunnryd/resep/pkg/metrics"
	"github.com/harunnryd/resep/pkg/resilience"
)

// CircuitBreakerGateway wraps a Gateway with rate-limit circuit breaking.
// Denied calls fail with a permanent RateLimitError so retries stop at once.
type CircuitBreakerGateway struct {
	inner   Gateway
	breaker *resilience.CircuitBreaker
	obs     metrics.Observer
}

func NewCircuitBreakerGateway(inner Gateway, breaker *resilience.CircuitBreaker) *CircuitBreakerGateway {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(3, 30*time.Second)
	}
	return &CircuitBreakerGateway{inner: inner, breaker: breaker, obs: metrics.NoopObserver{}}
}

func (g *CircuitBreakerGateway) Name() string { return g.inner.Name() }

// SetObserver allows metrics emission for breaker events.
func (g *CircuitBreakerGateway) SetObserver(obs metrics.Observer) { g.obs = metrics.OrNoop(obs) }

func (g *CircuitBreakerGateway) Generate(ctx context.Context, req Request) (Response, error) {
	if !g.breaker.Allow() {
		g.record(metrics.EventBreakerDenied, resilience.BreakerOpen)
		return Response{}, resilience.Permanent(resilience.RateLimitError{Provider: g.Name(), Message: "circuit open"})
	}
	before := g.breaker.State()
	resp, err := g.inner.Generate(ctx, req)
	if err != nil {
		if resilience.IsRateLimit(err) {
			g.record(metrics.EventRateLimit, before)
		}
		g.breaker.OnError(err)
	} else {
		g.breaker.OnSuccess()
	}
	if after := g.breaker.State(); after != before {
		switch after {
		case resilience.BreakerOpen:
			g.record(metrics.EventBreakerOpen, after)
		case resilience.BreakerClosed:
			g.record(metrics.EventBreakerClose, after)
		}
	}
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

func (g *CircuitBreakerGateway) record(name string, state resilience.BreakerState) {
	metrics.Record(g.obs, name, 1, map[string]string{
		"provider":  g.inner.Name(),
		"component": "llm",
		"state":     string(state),
	})
}
