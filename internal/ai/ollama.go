package ai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"ragdoll/internal/config"
)

// OllamaProvider talks to an Ollama server for both embeddings and generation.
type OllamaProvider struct {
	llm      *ollama.LLM
	embedder *embeddings.EmbedderImpl
}

func NewOllamaProvider(cfg config.LLMConfig) (*OllamaProvider, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("init ollama llm failed: %w", err)
	}

	embLLM, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("init ollama embedding model failed: %w", err)
	}

	opts := []embeddings.Option{}
	if cfg.EmbedBatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.EmbedBatchSize))
	}
	embedder, err := embeddings.NewEmbedder(embLLM, opts...)
	if err != nil {
		return nil, fmt.Errorf("init ollama embedder failed: %w", err)
	}

	return &OllamaProvider{llm: llm, embedder: embedder}, nil
}

func (p *OllamaProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedder.EmbedDocuments(ctx, texts)
}

func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embedder.EmbedQuery(ctx, text)
}

func (p *OllamaProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, p.llm, prompt)
}
