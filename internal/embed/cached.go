package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize bounds the LRU when the config does not.
// Roughly 4MB at 1024 dims * 4 bytes * 1000 entries.
const DefaultEmbeddingCacheSize = 1000

// Cache key task markers. Document and query embeddings of the same text
// differ on task-aware providers, so they must not share cache entries.
const (
	cacheTaskDocument = "d"
	cacheTaskQuery    = "q"
)

// CachedEmbedder puts an LRU in front of an Embedder. Repeated questions
// are common on a help channel, so query caching saves a provider round
// trip per repeat; document caching pays off when a rebuild re-embeds
// artifacts that did not change.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with a cache holding cacheSize vectors.
// Non-positive sizes fall back to the default.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache}
}

// NewCachedEmbedderWithDefaults wraps inner with the default cache size.
func NewCachedEmbedderWithDefaults(inner Embedder) *CachedEmbedder {
	return NewCachedEmbedder(inner, DefaultEmbeddingCacheSize)
}

// cacheKey hashes task, text and model into a fixed-length key. The
// model name is part of the key so a config change never serves vectors
// from the old model.
func (c *CachedEmbedder) cacheKey(task, text string) string {
	sum := sha256.Sum256([]byte(task + "\x00" + text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.lookup(ctx, cacheTaskDocument, text, c.inner.Embed)
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.lookup(ctx, cacheTaskQuery, text, c.inner.EmbedQuery)
}

// lookup serves from cache or computes through fn and remembers the
// result.
func (c *CachedEmbedder) lookup(ctx context.Context, task, text string, fn func(context.Context, string) ([]float32, error)) ([]float32, error) {
	key := c.cacheKey(task, text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := fn(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch serves what it can from cache and sends only the misses to
// the provider, so a rebuild that touches one new artifact does not
// re-pay for the rest of the department.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(cacheTaskDocument, text)); ok {
			vectors[i] = vec
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
		}
	}
	if len(missTexts) == 0 {
		return vectors, nil
	}

	computed, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		vectors[i] = computed[j]
		c.cache.Add(c.cacheKey(cacheTaskDocument, texts[i]), computed[j])
	}

	return vectors, nil
}

func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

func (c *CachedEmbedder) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}

// Inner exposes the wrapped embedder for callers that need features
// outside the Embedder interface.
func (c *CachedEmbedder) Inner() Embedder {
	return c.inner
}
