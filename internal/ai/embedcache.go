package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/harishm17/study-buddy/internal/cache"
	"github.com/harishm17/study-buddy/pkg/models"
)

// CachingEmbedder serves repeated query embeddings from the cache. Cache
// failures are logged and fall through to the inner embedder.
type CachingEmbedder struct {
	inner models.Embedder
	cache cache.Cache
	model string
	ttl   time.Duration
}

func NewCachingEmbedder(inner models.Embedder, c cache.Cache, model string, ttl time.Duration) *CachingEmbedder {
	return &CachingEmbedder{inner: inner, cache: c, model: model, ttl: ttl}
}

func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.EmbeddingKey(e.model, text)

	raw, found, err := e.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("embedding cache read failed", "error", err)
	}
	if found {
		var vec []float32
		if err := json.Unmarshal(raw, &vec); err == nil {
			return vec, nil
		}
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vec); err == nil {
		if err := e.cache.Set(ctx, key, data, e.ttl); err != nil {
			slog.Warn("embedding cache write failed", "error", err)
		}
	}
	return vec, nil
}

// EmbedBatch is not cached; chunk texts are embedded once per material.
func (e *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.inner.EmbedBatch(ctx, texts)
}

var _ models.Embedder = (*CachingEmbedder)(nil)
