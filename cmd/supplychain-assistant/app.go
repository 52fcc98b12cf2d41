package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/supplychain-assistant/internal/adapters/driven/ai"
	"github.com/custodia-labs/supplychain-assistant/internal/adapters/driven/auth"
	"github.com/custodia-labs/supplychain-assistant/internal/adapters/driven/postgres"
	pgqueue "github.com/custodia-labs/supplychain-assistant/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/supplychain-assistant/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/supplychain-assistant/internal/adapters/driven/redis"
	"github.com/custodia-labs/supplychain-assistant/internal/adapters/driven/vespa"
	"github.com/custodia-labs/supplychain-assistant/internal/adapters/driving/http"
	"github.com/custodia-labs/supplychain-assistant/internal/anomaly"
	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driving"
	"github.com/custodia-labs/supplychain-assistant/internal/core/services"
	"github.com/custodia-labs/supplychain-assistant/internal/extractors"
	"github.com/custodia-labs/supplychain-assistant/internal/temporal"
	"github.com/custodia-labs/supplychain-assistant/internal/worker"
)

// app holds every wired component of a running instance.
type app struct {
	cfg    config
	logger *slog.Logger

	db    *postgres.DB
	redis *redis.Client
	queue driven.TaskQueue

	files     driving.FileService
	chat      driving.ChatService
	retrieval driving.RetrievalService
	knowledge driving.KnowledgeService
	vespa     driving.VespaAdminService
	ingestion *services.IngestionPipeline
	scheduler *services.Scheduler
	auth      *auth.Adapter
}

// newApp connects to Postgres, Redis and Vespa and builds the services.
func newApp(ctx context.Context, cfg config, logger *slog.Logger) (*app, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, auth: auth.NewAdapter(cfg.JWTSecret)}

	// ===== PostgreSQL =====
	logger.Info("connecting to postgres")
	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", postgres.DefaultConfig("").ConnMaxLifetime),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE", postgres.DefaultConfig("").ConnMaxIdleTime),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	if err := db.InitSchema(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	// ===== Redis =====
	logger.Info("connecting to redis")
	a.redis, err = openRedis(ctx, cfg.RedisURL)
	if err != nil {
		a.close()
		return nil, err
	}
	switch cfg.QueueBackend {
	case "postgres":
		a.queue = pgqueue.NewQueue(db.DB)
	default:
		q, err := redisqueue.NewQueue(ctx, a.redis, fmt.Sprintf("worker-%d", os.Getpid()))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create task queue: %w", err)
		}
		a.queue = q
	}
	logger.Info("task queue configured", "backend", cfg.QueueBackend)

	// ===== Stores =====
	var encryptor *postgres.BlobEncryptor
	if cfg.BlobEncryptionKey != "" {
		encryptor, err = postgres.NewBlobEncryptorFromHex(cfg.BlobEncryptionKey)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("BLOB_ENCRYPTION_KEY: %w", err)
		}
		logger.Info("blob encryption enabled")
	}
	fileStore := postgres.NewFileStore(db)
	alertStore := postgres.NewAlertStore(db)
	messageStore := postgres.NewMessageStore(db)
	blobStore := postgres.NewBlobStore(db, encryptor)

	var lock driven.DistributedLock
	switch cfg.LockBackend {
	case "postgres":
		lock = postgres.NewAdvisoryLock(db)
	default:
		lock = redisadapter.NewLock(a.redis)
	}
	logger.Info("distributed lock configured", "backend", cfg.LockBackend)

	// ===== Vespa =====
	chunkIndex := vespa.NewChunkIndex(vespaConfig(cfg, logger))
	knowledgeIndex := vespa.NewKnowledgeIndex(vespaConfig(cfg, logger))
	a.vespa, err = newVespaAdmin(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	if status, err := a.vespa.Status(ctx); err != nil || !status.Ready() {
		logger.Warn("vespa is not ready, search will fail until schemas are deployed", "error", err)
	}

	// ===== AI =====
	embedder, err := newEmbedder(cfg, a.redis, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	llm, err := ai.NewFactory().CreateLLMService(&cfg.Chat)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	// ===== Services =====
	a.retrieval = services.NewRetrievalService(services.RetrievalConfig{
		Chunks:      chunkIndex,
		Knowledge:   knowledgeIndex,
		Embedder:    embedder,
		TopK:        cfg.TopK,
		DocumentTTL: cfg.DocumentTTL,
		Logger:      logger,
	})
	a.knowledge = services.NewKnowledgeService(knowledgeIndex, embedder, logger)
	a.files = services.NewFileService(services.FileServiceConfig{
		Files:       fileStore,
		Alerts:      alertStore,
		Blobs:       blobStore,
		Queue:       a.queue,
		Retrieval:   a.retrieval,
		MaxFileSize: cfg.MaxFileSize,
		DocumentTTL: cfg.DocumentTTL,
		Logger:      logger,
	})
	a.chat = services.NewChatService(services.ChatConfig{
		Messages:  messageStore,
		Retrieval: a.retrieval,
		Embedder:  embedder,
		LLM:       llm,
		Options:   domain.GenerationOptions{Temperature: cfg.Chat.Temperature},
		Logger:    logger,
	})

	a.ingestion, err = services.NewIngestionPipeline(services.IngestionConfig{
		Files:      fileStore,
		Alerts:     alertStore,
		Blobs:      blobStore,
		Extractors: newExtractors(logger),
		Detector: anomaly.NewDetector(anomaly.Config{
			MaxLeadTimeDays: &cfg.LeadTimeMaxDays,
			MinLeadTimeDays: &cfg.LeadTimeMinDays,
			Logger:          logger,
		}),
		Retrieval: a.retrieval,
		Logger:    logger,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create ingestion pipeline: %w", err)
	}

	if cfg.SchedulerEnabled {
		a.scheduler = services.NewScheduler(services.SchedulerConfig{
			Chunks:    chunkIndex,
			Blobs:     blobStore,
			Files:     fileStore,
			TaskQueue: a.queue,
			Lock:      lock,
			Logger:    logger,
			Interval:  cfg.PurgeInterval,
		})
	}

	return a, nil
}

func (a *app) server() *http.Server {
	httpCfg := http.DefaultConfig()
	httpCfg.Port = a.cfg.Port
	httpCfg.Version = version
	httpCfg.CORSOrigins = a.cfg.CORSOrigins
	httpCfg.MaxUploadBytes = a.cfg.MaxFileSize
	httpCfg.MessagesPerMinute = a.cfg.MessagesPerMinute
	httpCfg.Logger = a.logger

	return http.NewServer(httpCfg, http.Services{
		Files:      a.files,
		Chat:       a.chat,
		Retrieval:  a.retrieval,
		Knowledge:  a.knowledge,
		VespaAdmin: a.vespa,
	}, a.auth, http.Infrastructure{
		DB:    a.db,
		Redis: http.PingFunc(func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }),
		Queue: a.queue,
	})
}

func (a *app) worker() *worker.Worker {
	w := worker.WorkerConfig{
		TaskQueue:      a.queue,
		Ingestion:      a.ingestion,
		Logger:         a.logger,
		Concurrency:    a.cfg.WorkerConcurrency,
		DequeueTimeout: a.cfg.WorkerDequeueTimeout,
	}
	// A nil *Scheduler must not become a non-nil interface.
	if a.scheduler != nil {
		w.Scheduler = a.scheduler
	}
	return worker.NewWorker(w)
}

func (a *app) close() {
	if a.queue != nil {
		_ = a.queue.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func vespaConfig(cfg config, logger *slog.Logger) vespa.Config {
	vc := vespa.DefaultConfig(cfg.VespaContainerURL)
	vc.Logger = logger
	return vc
}

func newVespaAdmin(cfg config, logger *slog.Logger) (driving.VespaAdminService, error) {
	deployer, err := vespa.NewDeployer(vespa.DeployerConfig{
		Endpoint: cfg.VespaConfigURL,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create vespa deployer: %w", err)
	}
	return services.NewVespaAdminService(services.VespaAdminConfig{
		Deployer:     deployer,
		Endpoint:     cfg.VespaConfigURL,
		EmbeddingDim: cfg.Embedding.Dimensions,
		Logger:       logger,
	}), nil
}

// newEmbedder builds the cached embedder. A nil redis client disables caching.
func newEmbedder(cfg config, client *redis.Client, logger *slog.Logger) (*services.Embedder, error) {
	svc, err := ai.NewFactory().CreateEmbeddingService(&cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("create embedding service: %w", err)
	}
	if svc == nil {
		return nil, errors.New("embedding service is not configured")
	}

	ecfg := services.EmbedderConfig{
		Service:     svc,
		CacheTTL:    cfg.EmbeddingCacheTTL,
		Concurrency: cfg.EmbeddingConcurrency,
		RateLimit:   cfg.EmbeddingRateLimit,
		Logger:      logger,
	}
	if client != nil {
		ecfg.Cache = redisadapter.NewEmbeddingCache(client)
	}
	return services.NewEmbedder(ecfg)
}

func newExtractors(logger *slog.Logger) *extractors.Registry {
	return extractors.NewDefaultRegistry(extractors.Config{
		Analyzer: temporal.NewAnalyzer(temporal.Config{Logger: logger}),
		Logger:   logger,
	})
}
