package ai

import (
	"context"
	"fmt"

	"ragdoll/internal/config"
)

// Embedder turns text into vectors. Document and query embeddings come from the same model.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator submits a rendered prompt to a generative model and returns its text output.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewProviders builds the embedding and generation clients selected by cfg.Provider.
func NewProviders(cfg config.LLMConfig) (Embedder, Generator, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		p, err := NewOllamaProvider(cfg)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	case config.ProviderOpenAI:
		client := NewOpenAICompatibleClient()
		emb := NewOpenAIEmbedder(client, EmbeddingConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.EmbeddingModel}, cfg.EmbedBatchSize)
		gen := NewOpenAIGenerator(client, ChatConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model})
		return emb, gen, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
