package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// defaultEmbeddingBatchSize keeps requests under common provider limits.
const defaultEmbeddingBatchSize = 10

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Embed returns the embedding vector for the given text.
func (c *OpenAICompatibleClient) Embed(ctx context.Context, cfg EmbeddingConfig, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}
	vectors, err := c.EmbedBatch(ctx, cfg, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding per input text, in input order.
func (c *OpenAICompatibleClient) EmbedBatch(ctx context.Context, cfg EmbeddingConfig, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("embedding input %d is empty", i)
		}
	}

	reqBody := map[string]interface{}{
		"model": cfg.Model,
		"input": texts,
	}
	raw, err := c.postJSON(ctx, cfg.BaseURL, cfg.APIKey, "/embeddings", reqBody, "embedding")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(parsed.Data))
	}
	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	result := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		result[i] = parsed.Data[i].Embedding
	}
	return result, nil
}

// OpenAIEmbedder adapts the client to the Embedder interface, batching document calls.
type OpenAIEmbedder struct {
	client    *OpenAICompatibleClient
	cfg       EmbeddingConfig
	batchSize int
}

func NewOpenAIEmbedder(client *OpenAICompatibleClient, cfg EmbeddingConfig, batchSize int) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, cfg: cfg, batchSize: batchSize}
}

func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	size := e.batchSize
	if size <= 0 {
		size = defaultEmbeddingBatchSize
	}
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += size {
		end := min(i+size, len(texts))
		batch, err := e.client.EmbedBatch(ctx, e.cfg, texts[i:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.client.Embed(ctx, e.cfg, text)
}
