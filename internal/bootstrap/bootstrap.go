package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/avdeenko/docqa/internal/config"
	"github.com/avdeenko/docqa/internal/core/ports"
	"github.com/avdeenko/docqa/internal/core/usecase"
	badgerlog "github.com/avdeenko/docqa/internal/infrastructure/auditlog/badger"
	"github.com/avdeenko/docqa/internal/infrastructure/chunking"
	"github.com/avdeenko/docqa/internal/infrastructure/extractor"
	"github.com/avdeenko/docqa/internal/infrastructure/keyword"
	"github.com/avdeenko/docqa/internal/infrastructure/llm/cascade"
	"github.com/avdeenko/docqa/internal/infrastructure/llm/ollama"
	"github.com/avdeenko/docqa/internal/infrastructure/llm/openrouter"
	natsqueue "github.com/avdeenko/docqa/internal/infrastructure/queue/nats"
	"github.com/avdeenko/docqa/internal/infrastructure/repository/postgres"
	"github.com/avdeenko/docqa/internal/infrastructure/resilience"
	"github.com/avdeenko/docqa/internal/infrastructure/storage/localfs"
	"github.com/avdeenko/docqa/internal/infrastructure/vector/flat"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Store ports.DocumentStore
	Queue ports.MessageQueue
	Audit ports.AuditLog
	Index ports.VectorIndex

	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	AnswerUC  ports.QuestionAnswerer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	rules, err := cfg.Rules()
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	audit, err := badgerlog.Open(cfg.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	index, err := flat.New(cfg.IndexDir, cfg.EmbeddingDim, logger)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)
	embedder := ollama.NewEmbedder(ollamaClient)

	providers := []cascade.Provider{ollama.NewGenerator(ollamaClient)}
	if cfg.OpenRouterAPIKey != "" {
		for _, model := range cfg.OpenRouterModels {
			providers = append(providers, openrouter.New(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, model))
		}
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.GenerationRPS), 1)
	generator := cascade.New(providers, executor, ollama.ClassifyError, limiter, logger)

	source := extractor.NewSource(storage, nil)
	chunker := chunking.NewSplitter()
	scanner := keyword.NewScanner(index)

	retriever := usecase.NewHybridRetriever(embedder, index, scanner, keyword.ExtractQueryKeywords, rules, logger)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(repo, source, chunker, embedder, index, audit, cfg.ChunkMaxBytes, logger)
	answerUC := usecase.NewAnswerQuestionUseCase(retriever, embedder, index, generator, audit, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		Store: repo,
		Queue: queue,
		Audit: audit,
		Index: index,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		AnswerUC:  answerUC,

		closeFn: func() {
			queue.Close()
			_ = audit.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
