package llm

import (
	"context"

	"github.com/harunnryd/resep/pkg/metrics"
	"github.com/harunnryd/resep/pkg/resilience"
)

// RetryGateway retries failed Generate calls under a resilience.RetryPolicy.
type RetryGateway struct {
	inner  Gateway
	policy *resilience.RetryPolicy
	obs    metrics.Observer
}

func NewRetryGateway(inner Gateway, policy *resilience.RetryPolicy) *RetryGateway {
	if policy == nil {
		policy = resilience.NewRetryPolicy(0, 0, 0, 0.2)
	}
	return &RetryGateway{inner: inner, policy: policy, obs: metrics.NoopObserver{}}
}

func (g *RetryGateway) Name() string { return g.inner.Name() }

func (g *RetryGateway) SetObserver(obs metrics.Observer) { g.obs = metrics.OrNoop(obs) }

func (g *RetryGateway) Generate(ctx context.Context, req Request) (Response, error) {
	attempt := 0
	return resilience.Retry(ctx, g.policy, func(ctx context.Context) (Response, error) {
		if attempt > 0 {
			metrics.Record(g.obs, metrics.EventRetry, float64(attempt), map[string]string{
				"provider":  g.inner.Name(),
				"component": "llm",
			})
		}
		attempt++
		return g.inner.Generate(ctx, req)
	})
}
