package embedding

import (
	"context"
	"crypto/sha256"

	"github.com/dgraph-io/ristretto"

	"github.com/engramlabs/engram/internal/domain"
	"github.com/engramlabs/engram/internal/metrics"
)

// LocalCachedEmbedder keeps recently encoded vectors in process memory,
// in front of the slower store-backed cache.
type LocalCachedEmbedder struct {
	inner domain.Embedder
	cache *ristretto.Cache
}

// NewLocalCachedEmbedder creates the in-process cache layer sized for
// maxEntries vectors.
func NewLocalCachedEmbedder(inner domain.Embedder, maxEntries int64) (*LocalCachedEmbedder, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns a locally cached embedding or calls the inner embedder.
func (l *LocalCachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := sha256.Sum256([]byte(text))

	if v, ok := l.cache.Get(key[:]); ok {
		if vec, ok := v.([]float32); ok {
			metrics.EmbeddingCacheTotal.WithLabelValues("local", "hit").Inc()
			return domain.EmbeddingResult{Embedding: vec}, nil
		}
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("local", "miss").Inc()

	result, err := l.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	l.cache.Set(key[:], result.Embedding, 1)
	return result, nil
}

// Close releases the cache resources.
func (l *LocalCachedEmbedder) Close() {
	l.cache.Close()
}
