package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
	"github.com/chimera-protocol/chimera/apps/state/internal/store"
)

// CachedEmbedder wraps an embedder with content-hash caching via SQLite.
type CachedEmbedder struct {
	next  store.Embedder
	cache *store.EmbeddingCacheStore
	model string
	log   *logger.Logger
}

func NewCachedEmbedder(next store.Embedder, cache *store.EmbeddingCacheStore, model string, log *logger.Logger) *CachedEmbedder {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachedEmbedder{next: next, cache: cache, model: model, log: log}
}

// Embed returns the embedding for text, using the cache when available.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := ContentHash(text)

	vec, ok, err := e.cache.Get(hash, e.model)
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if ok {
		return vec, nil
	}

	vec, err = e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Put(hash, e.model, vec); err != nil {
		// Non-fatal: the vector is still good.
		e.log.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

// ContentHash computes a SHA-256 hash of text content.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}
