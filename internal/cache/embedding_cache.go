package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// EmbeddingCache memoizes segment embeddings in Redis, keyed by provider, model and text hash.
// It never holds the index itself: a restart still starts with no document loaded.
type EmbeddingCache struct {
	client   *redisv9.Client
	provider string
	model    string
	ttl      time.Duration
}

func NewEmbeddingCache(client *redisv9.Client, provider, model string, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EmbeddingCache{
		client:   client,
		provider: provider,
		model:    model,
		ttl:      ttl,
	}
}

// GetMany returns one entry per text; misses are nil.
func (c *EmbeddingCache) GetMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget embeddings failed: %w", err)
	}

	out := make([][]float32, len(texts))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil || len(vec) == 0 {
			continue
		}
		out[i] = vec
	}
	return out, nil
}

func (c *EmbeddingCache) SetMany(ctx context.Context, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("embedding cache: %d texts for %d vectors", len(texts), len(vectors))
	}
	pipe := c.client.Pipeline()
	for i, t := range texts {
		payload, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("marshal embedding failed: %w", err)
		}
		pipe.Set(ctx, c.key(t), payload, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set embeddings failed: %w", err)
	}
	return nil
}

func (c *EmbeddingCache) key(text string) string {
	return embeddingKey(c.provider, c.model, text)
}

func embeddingKey(provider, model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("docqa:embedding:%s:%s:%s", provider, model, hex.EncodeToString(sum[:]))
}
