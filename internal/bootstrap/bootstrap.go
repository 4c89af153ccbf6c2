package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/config"
	"github.com/kirillkom/hybrid-retrieval/internal/core/ports"
	"github.com/kirillkom/hybrid-retrieval/internal/core/usecase"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/cache/redis"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/chunking"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/embedding"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/lexical/bm25"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/queue/nats"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/repository/memory"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/resilience"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/vector/inmemory"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	// Queue is nil when NATS is disabled.
	Queue          *nats.Queue
	Documents      *usecase.IngestUseCase
	Retriever      *usecase.RetrieveUseCase
	EmbeddingCache *embedding.Cache

	closeFn func()
}

// Observers carries optional measurement sinks. Nil fields disable reporting.
type Observers struct {
	Retrieval    ports.RetrievalObserver
	Dependencies resilience.Observer
}

// New wires the engine from cfg.
func New(ctx context.Context, cfg config.Config, obs Observers) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*App, error) {
		closeAll()
		return nil, err
	}

	store, db, err := newChunkStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if db != nil {
		closers = append(closers, func() { _ = db.Close() })
	}

	var shared ports.VectorCache
	if cfg.RedisAddr != "" {
		redisCache, err := redis.NewVectorCache(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RedisCacheTTL,
		})
		if err != nil {
			// The shared tier is an optimisation; the LRU still serves.
			slog.Warn("redis_cache_disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			shared = redisCache
			closers = append(closers, func() { _ = redisCache.Close() })
		}
	}

	cache, err := embedding.NewCache(cfg.EmbeddingCacheSize)
	if err != nil {
		return fail(fmt.Errorf("init embedding cache: %w", err))
	}
	embedder := embedding.NewProvider(newEmbeddingModel(cfg, obs.Dependencies), cache, embedding.Options{
		BatchSize:   cfg.EmbeddingBatchSize,
		Concurrency: cfg.EmbeddingConcurrency,
		CallTimeout: cfg.EmbeddingTimeout,
		Shared:      shared,
	})

	vectors, err := newVectorIndex(ctx, cfg, obs.Dependencies)
	if err != nil {
		return fail(err)
	}
	lexical := bm25.NewStore(bm25.Params{K1: cfg.BM25K1, B: cfg.BM25B})

	var queue *nats.Queue
	var messageQueue ports.MessageQueue
	if cfg.NATSEnabled {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			QueueGroup:         cfg.NATSQueueGroup,
			HandlerTimeout:     cfg.WorkerEventTimeout,
			ResilienceExecutor: resilience.NewExecutor(resiliencePolicy(0, obs.Dependencies)),
		})
		if err != nil {
			return fail(fmt.Errorf("init message queue: %w", err))
		}
		messageQueue = queue
		closers = append(closers, queue.Close)
	}

	documents := usecase.NewIngestUseCase(
		chunking.NewSplitter(0),
		embedder,
		vectors,
		store,
		lexical,
		messageQueue,
		obs.Retrieval,
		usecase.IngestOptions{
			DefaultChunkSize: cfg.ChunkSize,
			DefaultOverlap:   cfg.ChunkOverlap,
		},
	)
	retriever := usecase.NewRetrieveUseCase(embedder, vectors, lexical, obs.Retrieval, usecase.RetrieveOptions{
		DefaultTopK:      cfg.RAGTopK,
		MaxTopK:          cfg.RAGMaxTopK,
		LexicalTimeout:   cfg.LexicalTimeout,
		EmbeddingTimeout: cfg.EmbeddingTimeout,
		VectorTimeout:    cfg.VectorTimeout,
		Weights: usecase.HybridWeights{
			Lexical:  cfg.HybridLexicalWeight,
			Semantic: cfg.HybridSemanticWeight,
		},
	})

	slog.Info("engine_wired",
		"store", cfg.StoreBackend,
		"vectors", cfg.VectorBackend,
		"embedding_model", embedder.ModelID(),
		"shared_cache", shared != nil,
		"queue", cfg.NATSEnabled,
	)

	return &App{
		Config:         cfg,
		Queue:          queue,
		Documents:      documents,
		Retriever:      retriever,
		EmbeddingCache: cache,
		closeFn:        closeAll,
	}, nil
}

func newChunkStore(ctx context.Context, cfg config.Config) (ports.ChunkStore, *sql.DB, error) {
	if cfg.StoreBackend == config.BackendMemory {
		return memory.NewChunkStore(), nil, nil
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return postgres.NewChunkRepository(db), db, nil
}

func resiliencePolicy(attemptTimeout time.Duration, observer resilience.Observer) resilience.Config {
	p := resilience.DefaultConfig()
	p.AttemptTimeout = attemptTimeout
	p.Observer = observer
	return p
}

func newEmbeddingModel(cfg config.Config, observer resilience.Observer) ports.EmbeddingModel {
	if cfg.EmbeddingBackend == config.BackendHashing {
		return embedding.NewHashingModel(cfg.EmbeddingDimension)
	}
	client := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:           cfg.EmbeddingTimeout,
		Resilience:        resiliencePolicy(cfg.EmbeddingTimeout, observer),
		RequestsPerSecond: cfg.EmbeddingRPS,
		Burst:             cfg.EmbeddingBurst,
	})
	return ollama.NewEmbeddingModel(client, cfg.EmbeddingDimension)
}

func newVectorIndex(ctx context.Context, cfg config.Config, observer resilience.Observer) (ports.VectorIndex, error) {
	if cfg.VectorBackend == config.BackendMemory {
		return inmemory.New(), nil
	}
	client := qdrant.NewWithOptions(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
		Timeout:    cfg.VectorTimeout,
		Resilience: resiliencePolicy(cfg.VectorTimeout, observer),
	})
	if err := client.EnsureCollection(ctx, cfg.EmbeddingDimension); err != nil {
		// The collection is also created lazily on first upsert.
		slog.Warn("qdrant_collection_not_ready", "collection", cfg.QdrantCollection, "error", err)
	}
	return client, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
