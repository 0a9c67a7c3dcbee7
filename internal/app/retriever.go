package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ragdoll/internal/ai"
	"ragdoll/internal/index"
)

// Retriever finds the segments of an index closest to a query.
type Retriever struct {
	embedder ai.Embedder
	topK     int
	timeout  time.Duration
}

func NewRetriever(embedder ai.Embedder, topK int, timeout time.Duration) *Retriever {
	return &Retriever{embedder: embedder, topK: topK, timeout: timeout}
}

// Retrieve returns up to topK hits from idx. A nil idx yields no hits and no error.
func (r *Retriever) Retrieve(ctx context.Context, idx *index.Index, query string) ([]index.Hit, error) {
	if idx == nil {
		return nil, nil
	}

	embedCtx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	vec, err := r.embedder.EmbedQuery(embedCtx, query)
	if err != nil {
		return nil, providerError(embedCtx, "embed query", err)
	}

	hits, err := idx.Search(ctx, vec, r.topK)
	if err != nil {
		if errors.Is(err, index.ErrMalformedVector) || errors.Is(err, index.ErrDimensionMismatch) {
			return nil, fmt.Errorf("embed query: %w: %w", ErrProvider, err)
		}
		return nil, fmt.Errorf("search index: %w", err)
	}
	return hits, nil
}
