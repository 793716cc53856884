package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

// Retriever はベクトル検索で候補を集め、同じ候補集合を語彙スコアで並べ替える
type Retriever struct {
	repo     Repository
	embedder Embedder
	reranker Reranker
	defaultK int
	metrics  Metrics
	logger   *slog.Logger
}

// Option は Retriever のオプション設定
type Option func(*Retriever)

// WithSearchLogger はロガーを設定する
func WithSearchLogger(logger *slog.Logger) Option {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// WithDefaultK は k 未指定時の取得件数を設定する
func WithDefaultK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.defaultK = k
		}
	}
}

// WithSearchMetrics は計測先を設定する
func WithSearchMetrics(m Metrics) Option {
	return func(r *Retriever) {
		r.metrics = m
	}
}

// NewRetriever は新しい Retriever を作成する。reranker が nil の場合はベクトル検索の順序をそのまま返す
func NewRetriever(repo Repository, embedder Embedder, reranker Reranker, opts ...Option) *Retriever {
	r := &Retriever{
		repo:     repo,
		embedder: embedder,
		reranker: reranker,
		defaultK: DefaultK,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Search はハイブリッド検索を実行する
// ベクトル検索が0件なら語彙検索にフォールバックせず空を返す
func (r *Retriever) Search(ctx context.Context, query string, k int, documentID mo.Option[uuid.UUID]) ([]document.Chunk, error) {
	if k <= 0 {
		k = r.defaultK
	}

	start := time.Now()
	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := r.repo.NearestChunks(ctx, queryVector, k, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	r.observe(StageSemantic, len(candidates), start)

	if len(candidates) == 0 || r.reranker == nil {
		return candidates, nil
	}

	start = time.Now()
	ranked, err := r.reranker.Rerank(ctx, query, candidates, k)
	if err != nil {
		return nil, fmt.Errorf("failed to rerank candidates: %w", err)
	}
	r.observe(StageLexical, len(ranked), start)

	r.logger.Debug("Hybrid search completed",
		"candidates", len(candidates),
		"results", len(ranked),
		"scoped", documentID.IsPresent(),
	)
	return ranked, nil
}

// DocumentChunks は要約用にドキュメントの全チャンクを chunk_index 順で返す
func (r *Retriever) DocumentChunks(ctx context.Context, documentID uuid.UUID) ([]document.Chunk, error) {
	chunks, err := r.repo.AllChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get document chunks: %w", err)
	}
	return chunks, nil
}

func (r *Retriever) observe(stage string, candidates int, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveSearch(stage, candidates, time.Since(start))
	}
}
