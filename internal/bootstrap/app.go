package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"ragdoll/internal/ai"
	"ragdoll/internal/app"
	"ragdoll/internal/cache"
	"ragdoll/internal/config"
	"ragdoll/internal/index"
	"ragdoll/internal/platform/logger"
	rabbitmqClient "ragdoll/internal/platform/rabbitmq"
	redisClient "ragdoll/internal/platform/redis"
)

type App struct {
	Config  *config.Config
	Service *app.DocQAService
	// Redis and MQConn are nil unless enabled in config.
	Redis  *redis.Client
	MQConn *amqp.Connection

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger.Setup(cfg.App.Env, cfg.App.LogLevel)

	embedder, generator, err := ai.NewProviders(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create model providers failed: %w", err)
	}
	return NewWithProviders(ctx, cfg, embedder, generator)
}

// NewWithProviders wires the service around the given model providers and connects the
// optional Redis cache and RabbitMQ publisher.
func NewWithProviders(ctx context.Context, cfg *config.Config, embedder ai.Embedder, generator ai.Generator) (*App, error) {
	a := &App{Config: cfg, StartedAt: time.Now()}

	if cfg.Redis.Enabled {
		redisCli, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.Redis = redisCli
		embedder = cache.NewCachingEmbedder(embedder, cache.NewEmbeddingCache(redisCli, cfg.LLM.Provider, cfg.LLM.EmbeddingModel, cfg.EmbeddingTTL()))
		log.Info().Str("addr", cfg.Redis.Addr).Msg("embedding cache enabled")
	}

	var publisher app.EventPublisher
	if cfg.RabbitMQ.Enabled {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IndexEventQueue)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.MQConn = mqConn
		publisher = rabbitmqClient.NewIndexEventPublisher(mqConn, cfg.RabbitMQ.IndexEventQueue)
		log.Info().Str("queue", cfg.RabbitMQ.IndexEventQueue).Msg("index events enabled")
	}

	timeout := cfg.LLMTimeout()
	a.Service = app.NewDocQAService(
		index.NewHolder(),
		app.NewIndexer(embedder, timeout),
		app.NewRetriever(embedder, cfg.RAG.TopK, timeout),
		app.NewAnswerer(generator, cfg.RAG.NoDocumentMessage, timeout),
		app.DocQAOptions{
			Chunks:    app.ChunkConfig{Size: cfg.RAG.ChunkSize, Overlap: cfg.RAG.ChunkOverlap},
			TempDir:   cfg.App.TempDir,
			MaxBytes:  cfg.MaxUploadBytes(),
			Publisher: publisher,
		},
	)
	return a, nil
}

// Preload indexes app.preload_pdf when set. A failure leaves the service empty.
func (a *App) Preload(ctx context.Context) {
	path := a.Config.App.PreloadPDF
	if path == "" {
		return
	}
	res, err := a.Service.Preload(ctx, path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("preload failed, starting without a document")
		return
	}
	log.Info().Str("filename", res.Filename).Int("segments", res.SegmentCount).Msg("preloaded document")
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
