package embed

import (
	"context"
	"time"

	cderrors "github.com/uqsoft/crossdock/internal/errors"
)

// RetryingEmbedder wraps a remote provider with exponential-backoff retry.
// Only retryable errors (provider failures, timeouts, rate limits) trigger
// another attempt; validation and context errors surface immediately.
//
// Local providers (static) are never wrapped: their failures are not
// transient.
type RetryingEmbedder struct {
	inner Embedder
	cfg   cderrors.RetryConfig
}

// Verify interface implementation at compile time
var _ Embedder = (*RetryingEmbedder)(nil)

// NewRetryingEmbedder wraps an embedder with the default retry policy:
// 3 retries starting at 500ms with jitter, capped at 8s.
func NewRetryingEmbedder(inner Embedder) *RetryingEmbedder {
	cfg := cderrors.DefaultRetryConfig()
	cfg.InitialDelay = 500 * time.Millisecond
	cfg.MaxDelay = 8 * time.Second
	cfg.Jitter = true
	cfg.RetryIf = cderrors.IsRetryable
	return &RetryingEmbedder{inner: inner, cfg: cfg}
}

// Embed generates a document embedding, retrying transient failures.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return cderrors.RetryWithResult(ctx, r.cfg, func() ([]float32, error) {
		return r.inner.Embed(ctx, text)
	})
}

// EmbedBatch generates document embeddings, retrying transient failures.
// The whole batch is retried; providers skip empty slots cheaply, so a
// retried batch costs one extra API round trip, not one per text.
func (r *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return cderrors.RetryWithResult(ctx, r.cfg, func() ([][]float32, error) {
		return r.inner.EmbedBatch(ctx, texts)
	})
}

// EmbedQuery generates a query embedding, retrying transient failures.
func (r *RetryingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return cderrors.RetryWithResult(ctx, r.cfg, func() ([]float32, error) {
		return r.inner.EmbedQuery(ctx, text)
	})
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (r *RetryingEmbedder) Dimensions() int {
	return r.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (r *RetryingEmbedder) ModelName() string {
	return r.inner.ModelName()
}

// Available checks if the embedder is ready (passthrough to inner).
func (r *RetryingEmbedder) Available(ctx context.Context) bool {
	return r.inner.Available(ctx)
}

// Close releases resources and closes the inner embedder.
func (r *RetryingEmbedder) Close() error {
	return r.inner.Close()
}

// Inner returns the underlying embedder.
func (r *RetryingEmbedder) Inner() Embedder {
	return r.inner
}
