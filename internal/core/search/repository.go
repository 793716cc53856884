package search

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

// Repository は検索に必要なチャンク取得だけを定義する
type Repository interface {
	// NearestChunks はベクトル距離の近い順に最大k件を返す
	NearestChunks(ctx context.Context, queryVector []float32, k int, documentID mo.Option[uuid.UUID]) ([]document.Chunk, error)
	// AllChunks は chunk_index 昇順で全チャンクを返す
	AllChunks(ctx context.Context, documentID uuid.UUID) ([]document.Chunk, error)
}

var _ Repository = (document.Repository)(nil)
