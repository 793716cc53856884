package search

import (
	"context"
	"time"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

// DefaultK は k 未指定時の取得件数
const DefaultK = 5

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reranker は候補チャンクを語彙的なスコアで並べ替える
// 候補集合の外からチャンクを追加してはならない
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []document.Chunk, k int) ([]document.Chunk, error)
}

// Metrics は検索処理の計測値を受け取る
type Metrics interface {
	ObserveSearch(stage string, candidates int, elapsed time.Duration)
}

// 計測ステージ名
const (
	StageSemantic = "semantic"
	StageLexical  = "lexical"
)
