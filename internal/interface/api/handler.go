package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/matthias-truyzelaere/documindr/internal/core/ask"
	"github.com/matthias-truyzelaere/documindr/internal/core/document"
	"github.com/matthias-truyzelaere/documindr/internal/core/ingestion"
)

// APIバージョンと作者（ルートエンドポイントで返す）
const (
	Version = "1.0.0"
	Author  = "Matthias Truyzelaere"
)

// RequestTimeoutSeconds はストリーミング応答で通知するタイムアウト秒数
const RequestTimeoutSeconds = "300"

// Ingester はアップロードの取り込みを行う
type Ingester interface {
	Ingest(ctx context.Context, upload ingestion.Upload) (*ingestion.Result, error)
}

// DocumentStore は一覧・削除・存在確認に使うストア操作
type DocumentStore interface {
	ListDocuments(ctx context.Context) ([]document.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error)
	DocumentExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Asker は回答と要約をストリーミングする
type Asker interface {
	StreamAnswer(ctx context.Context, query string, documentID mo.Option[uuid.UUID], emit ask.Emit) error
	StreamSummary(ctx context.Context, documentID uuid.UUID, length ask.SummaryLength, emit ask.Emit) error
}

// LLMPinger は生成モデルへの疎通確認を行う
type LLMPinger interface {
	Ping(ctx context.Context) error
}

// Handler は HTTP ハンドラ群
type Handler struct {
	ingester  Ingester
	documents DocumentStore
	asker     Asker
	llm       LLMPinger
	health    document.HealthReporter
	logger    *slog.Logger
}

// HandlerOption は Handler のオプション設定
type HandlerOption func(*Handler)

// WithHandlerLogger はロガーを設定する
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler は新しい Handler を作成する
func NewHandler(
	ingester Ingester,
	documents DocumentStore,
	asker Asker,
	llm LLMPinger,
	health document.HealthReporter,
	opts ...HandlerOption,
) *Handler {
	h := &Handler{
		ingester:  ingester,
		documents: documents,
		asker:     asker,
		llm:       llm,
		health:    health,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}
