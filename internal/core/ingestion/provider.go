package ingestion

import (
	"context"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

// Loader はファイルから論理単位（ページ・スライドなど）を抽出する
// 抽出エラーはそのまま返し、パイプラインはそのアップロードを失敗として扱う
type Loader interface {
	Load(ctx context.Context, path string) ([]document.Unit, error)
}

// Embedder はチャンク本文をまとめてベクトル化する
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// Splitter は論理単位をチャンクへ分割する
type Splitter interface {
	Split(units []document.Unit) []document.Unit
}

// TokenCounter はチャンクのトークン数を数える
type TokenCounter interface {
	CountTokens(text string) int
}
