package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ragdoll/internal/ai"
	"ragdoll/internal/index"
	"ragdoll/internal/model"
)

// Indexer embeds segments and builds a complete index. It never touches the live index;
// committing the result is the caller's job.
type Indexer struct {
	embedder ai.Embedder
	timeout  time.Duration
}

func NewIndexer(embedder ai.Embedder, timeout time.Duration) *Indexer {
	return &Indexer{embedder: embedder, timeout: timeout}
}

func (x *Indexer) Build(ctx context.Context, filename string, segments []model.Segment) (*index.Index, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no segments", ErrInvalidInput)
	}

	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Content
	}

	embedCtx, cancel := withTimeout(ctx, x.timeout)
	defer cancel()

	started := time.Now()
	vectors, err := x.embedder.EmbedDocuments(embedCtx, texts)
	if err != nil {
		return nil, providerError(embedCtx, "embed segments", err)
	}
	if len(vectors) != len(segments) {
		return nil, fmt.Errorf("embed segments: %w: got %d vectors for %d segments", ErrProvider, len(vectors), len(segments))
	}
	log.Debug().Int("segments", len(segments)).Dur("took", time.Since(started)).Msg("segments embedded")

	idx, err := index.Build(ctx, uuid.NewString(), filename, segments, vectors)
	if err != nil {
		return nil, fmt.Errorf("build index: %w: %w", ErrProvider, err)
	}
	return idx, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
