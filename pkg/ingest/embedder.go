package ingest

import (
	"context"

	"github.com/harunnryd/resep/pkg/errorsx"
	"github.com/harunnryd/resep/pkg/metrics"
	"github.com/harunnryd/resep/pkg/resilience"
	"github.com/harunnryd/resep/pkg/search"
)

// RetryingEmbedder retries failed Embed calls under a resilience.RetryPolicy.
type RetryingEmbedder struct {
	inner  search.Embedder
	policy *resilience.RetryPolicy
	obs    metrics.Observer
}

// NewRetryingEmbedder defaults to resilience.EmbeddingRetryPolicy.
func NewRetryingEmbedder(inner search.Embedder, policy *resilience.RetryPolicy) *RetryingEmbedder {
	if policy == nil {
		policy = resilience.EmbeddingRetryPolicy()
	}
	return &RetryingEmbedder{inner: inner, policy: policy, obs: metrics.NoopObserver{}}
}

func (e *RetryingEmbedder) SetObserver(obs metrics.Observer) { e.obs = metrics.OrNoop(obs) }

func (e *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	attempt := 0
	vec, err := resilience.Retry(ctx, e.policy, func(ctx context.Context) ([]float32, error) {
		if attempt > 0 {
			metrics.Record(e.obs, metrics.EventRetry, float64(attempt), map[string]string{
				"component": "embedding",
			})
		}
		attempt++
		return e.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonEmbedding)
	}
	return vec, nil
}

var _ search.Embedder = (*RetryingEmbedder)(nil)
