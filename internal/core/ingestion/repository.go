package ingestion

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

// Repository はインジェストに必要なデータアクセスだけを定義する
// テスト時のモック用に消費者側で定義
type Repository interface {
	GetDocumentByHash(ctx context.Context, contentHash string) (mo.Option[uuid.UUID], error)
	InsertDocument(ctx context.Context, doc document.NewDocument) (uuid.UUID, error)
	InsertChunksAndComplete(ctx context.Context, documentID uuid.UUID, chunks []document.NewChunk) (int, error)
}

var _ Repository = (document.Repository)(nil)
