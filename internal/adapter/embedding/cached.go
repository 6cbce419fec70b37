package embedding

import (
	"context"
	"hash/fnv"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/lru"
)

// CachedEmbedder wraps a provider with a per-text LRU cache. Batch calls
// only send the texts that are not cached yet.
type CachedEmbedder struct {
	inner domain.EmbeddingProvider
	cache *lru.Cache[uint64, []float32]
}

// NewCachedEmbedder wraps inner with a cache of maxSize vectors. If
// maxSize <= 0, inner is returned directly.
func NewCachedEmbedder(inner domain.EmbeddingProvider, maxSize int) domain.EmbeddingProvider {
	if maxSize <= 0 {
		return inner
	}
	return &CachedEmbedder{inner: inner, cache: lru.New[uint64, []float32](maxSize)}
}

// Embed implements domain.EmbeddingProvider.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	keys := make([]uint64, len(texts))
	var (
		missing []string
		slots   []int
	)
	for i, t := range texts {
		keys[i] = hashText(t)
		if v, ok := c.cache.Get(keys[i]); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		slots = append(slots, i)
	}

	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if err := checkCount(len(vecs), len(missing)); err != nil {
		return nil, err
	}

	for j, i := range slots {
		out[i] = vecs[j]
		c.cache.Put(keys[i], vecs[j])
	}
	return out, nil
}

// Name implements domain.EmbeddingProvider.
func (c *CachedEmbedder) Name() string { return c.inner.Name() }

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

func hashText(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
