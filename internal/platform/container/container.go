package container

import (
	"context"
	"fmt"
	"log/slog"

	coreask "github.com/matthias-truyzelaere/documindr/internal/core/ask"
	"github.com/matthias-truyzelaere/documindr/internal/core/document"
	"github.com/matthias-truyzelaere/documindr/internal/core/embedding"
	coreingestion "github.com/matthias-truyzelaere/documindr/internal/core/ingestion"
	"github.com/matthias-truyzelaere/documindr/internal/core/ingestion/chunk"
	coresearch "github.com/matthias-truyzelaere/documindr/internal/core/search"
	"github.com/matthias-truyzelaere/documindr/internal/infra/lexical"
	"github.com/matthias-truyzelaere/documindr/internal/infra/loader"
	"github.com/matthias-truyzelaere/documindr/internal/infra/memory"
	"github.com/matthias-truyzelaere/documindr/internal/infra/openai"
	"github.com/matthias-truyzelaere/documindr/internal/infra/postgres"
	"github.com/matthias-truyzelaere/documindr/internal/infra/tokenizer"
	"github.com/matthias-truyzelaere/documindr/internal/platform/metrics"
	"github.com/matthias-truyzelaere/documindr/pkg/config"
	"github.com/matthias-truyzelaere/documindr/pkg/db"
)

// Store はドキュメントストアとヘルスチェックの両方を提供する
type Store interface {
	document.Repository
	document.HealthReporter
}

// TokenCounter はトークン数を数える
type TokenCounter interface {
	CountTokens(text string) int
}

// LLMClient は回答生成とヘルスチェックに使う生成モデルクライアント
type LLMClient interface {
	coreask.LLMClient
	Ping(ctx context.Context) error
}

// ServiceContainer はアプリケーション全体の依存関係を保持する
type ServiceContainer struct {
	Config           *config.Config
	Store            Store
	Embeddings       *embedding.Gateway
	LLM              LLMClient
	IngestionService *coreingestion.Service
	Retriever        *coresearch.Retriever
	AskService       *coreask.AskService
	Metrics          *metrics.Metrics

	logger   *slog.Logger
	database *db.DB
}

type containerOptions struct {
	logger         *slog.Logger
	store          Store
	backendFactory embedding.BackendFactory
	llmClient      LLMClient
	tokenCounter   TokenCounter
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerStore はドキュメントストアを差し替える
func WithContainerStore(store Store) ContainerOption {
	return func(opts *containerOptions) {
		opts.store = store
	}
}

// WithContainerEmbeddingBackend は Embedding バックエンドの生成方法を差し替える
func WithContainerEmbeddingBackend(factory embedding.BackendFactory) ContainerOption {
	return func(opts *containerOptions) {
		opts.backendFactory = factory
	}
}

// WithContainerLLMClient は LLM クライアントを差し替える
func WithContainerLLMClient(client LLMClient) ContainerOption {
	return func(opts *containerOptions) {
		opts.llmClient = client
	}
}

// WithContainerTokenCounter は TokenCounter を差し替える
func WithContainerTokenCounter(counter TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.tokenCounter = counter
	}
}

// NewContainer は設定からコンテナを生成する
// STORE_DRIVER が postgres の場合はDBに接続する
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	var database *db.DB
	store := options.store
	if store == nil {
		switch cfg.StoreDriver {
		case config.StoreDriverMemory:
			options.logger.Warn("using in-memory document store; data is lost on exit")
			store = memory.NewStore()
		default:
			var err error
			database, err = db.New(ctx, db.ConnectionParams{
				Host:     cfg.Database.Host,
				Port:     cfg.Database.Port,
				User:     cfg.Database.User,
				Password: cfg.Database.Password,
				DBName:   cfg.Database.DBName,
				SSLMode:  cfg.Database.SSLMode,
				MaxConns: int32(cfg.Database.MaxConns),
				MinConns: int32(cfg.Database.MinConns),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to initialize database: %w", err)
			}
			store = postgres.NewStore(database.Pool, postgres.WithStoreLogger(options.logger))
		}
	}

	c := newServiceContainer(cfg, store, options)
	c.database = database
	return c, nil
}

func newServiceContainer(cfg *config.Config, store Store, options containerOptions) *ServiceContainer {
	logger := options.logger
	m := metrics.New()

	// Embedding (Ollama)
	factory := options.backendFactory
	if factory == nil {
		factory = func() (embedding.Backend, error) {
			return openai.NewEmbedder(
				cfg.Ollama.BaseURL,
				cfg.Ollama.APIKey,
				openai.WithEmbeddingModel(cfg.Ollama.EmbeddingModel),
				openai.WithEmbeddingDimension(cfg.Ollama.EmbeddingDimension),
			), nil
		}
	}
	gateway := embedding.NewGateway(factory,
		embedding.WithLogger(logger),
		embedding.WithMetrics(m),
	)

	// LLM (Ollama)
	llm := options.llmClient
	if llm == nil {
		llm = openai.NewClient(
			cfg.Ollama.BaseURL,
			cfg.Ollama.APIKey,
			openai.WithModel(cfg.Ollama.ChatModel),
			openai.WithTemperature(cfg.Ollama.Temperature),
			openai.WithReasoningEffort(cfg.Ollama.ReasoningEffort),
			openai.WithKeepAlive(cfg.Ollama.KeepAlive),
		)
	}

	// TokenCounter はエンコーディングを取得できなくても起動を妨げない
	tokens := options.tokenCounter
	if tokens == nil {
		counter, err := tokenizer.New()
		if err != nil {
			logger.Warn("token counting disabled", "error", err)
		} else {
			tokens = counter
		}
	}

	chunker := chunk.New(
		chunk.WithBaseSize(cfg.Chunking.ChunkSize),
		chunk.WithMinChars(cfg.Chunking.ChunkSizeMin),
		chunk.WithOverlap(cfg.Chunking.ChunkOverlap),
	)

	ingestOpts := []coreingestion.ServiceOption{
		coreingestion.WithIngestLogger(logger),
		coreingestion.WithIngestMetrics(m),
		coreingestion.WithDataPath(cfg.Upload.DataPath),
		coreingestion.WithMaxFileSize(cfg.Upload.MaxFileSize),
	}
	askOpts := []coreask.AskServiceOption{
		coreask.WithAskLogger(logger),
		coreask.WithRetrieverK(cfg.Chunking.RetrieverK),
		coreask.WithAskMetrics(m),
	}
	if tokens != nil {
		ingestOpts = append(ingestOpts, coreingestion.WithTokenCounter(tokens))
		askOpts = append(askOpts, coreask.WithPromptTokenCounter(tokens))
	}

	ingestionService := coreingestion.NewService(
		store,
		loader.New(loader.WithLogger(logger)),
		chunker,
		gateway,
		ingestOpts...,
	)

	retriever := coresearch.NewRetriever(
		store,
		gateway,
		lexical.NewBleveReranker(logger),
		coresearch.WithSearchLogger(logger),
		coresearch.WithDefaultK(cfg.Chunking.RetrieverK),
		coresearch.WithSearchMetrics(m),
	)

	askService := coreask.NewAskService(retriever, llm, askOpts...)

	return &ServiceContainer{
		Config:           cfg,
		Store:            store,
		Embeddings:       gateway,
		LLM:              llm,
		IngestionService: ingestionService,
		Retriever:        retriever,
		AskService:       askService,
		Metrics:          m,
		logger:           logger,
	}
}

// Close は内部リソースを解放する
func (c *ServiceContainer) Close() {
	if c != nil && c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Database はデータベースを返す。メモリストア使用時は nil
func (c *ServiceContainer) Database() *db.DB {
	if c == nil {
		return nil
	}
	return c.database
}
