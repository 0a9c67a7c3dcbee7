package cache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"ragdoll/internal/ai"
)

// VectorCache is the storage CachingEmbedder memoizes into.
type VectorCache interface {
	GetMany(ctx context.Context, texts []string) ([][]float32, error)
	SetMany(ctx context.Context, texts []string, vectors [][]float32) error
}

// CachingEmbedder serves document embeddings from cache where possible and embeds only
// the misses. Cache failures degrade to calling the provider. Query embeddings always go
// to the provider and are never stored.
type CachingEmbedder struct {
	inner ai.Embedder
	cache VectorCache
}

func NewCachingEmbedder(inner ai.Embedder, cache VectorCache) *CachingEmbedder {
	return &CachingEmbedder{inner: inner, cache: cache}
}

func (e *CachingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	cached, err := e.cache.GetMany(ctx, texts)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("embedding cache read failed")
		cached = nil
	}
	if len(cached) != len(texts) {
		cached = make([][]float32, len(texts))
	}

	var missIdx []int
	var missTexts []string
	for i, v := range cached {
		if v == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	zerolog.Ctx(ctx).Debug().Int("total", len(texts)).Int("misses", len(missTexts)).Msg("embedding cache lookup")
	if len(missTexts) == 0 {
		return cached, nil
	}

	fresh, err := e.inner.EmbedDocuments(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(missTexts), len(fresh))
	}
	for j, i := range missIdx {
		cached[i] = fresh[j]
	}

	if err := e.cache.SetMany(ctx, missTexts, fresh); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("embedding cache write failed")
	}
	return cached, nil
}

func (e *CachingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.inner.EmbedQuery(ctx, text)
}
