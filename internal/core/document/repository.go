package document

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

var (
	// ErrNotFound は指定IDのドキュメントが存在しない場合のエラー
	ErrNotFound = errors.New("document not found")

	// ErrDuplicateHash は content_hash の一意制約違反
	ErrDuplicateHash = errors.New("document with the same content hash already exists")
)

// Repository はドキュメントとチャンクの永続化を担う
type Repository interface {
	// GetDocumentByHash は content_hash に一致する completed のドキュメントIDを返す
	GetDocumentByHash(ctx context.Context, contentHash string) (mo.Option[uuid.UUID], error)
	DocumentExists(ctx context.Context, id uuid.UUID) (bool, error)
	// InsertDocument は processing 状態でドキュメントを作成する
	// 同じハッシュの processing 行が残っていれば再利用し、completed 行があれば ErrDuplicateHash を返す
	InsertDocument(ctx context.Context, doc NewDocument) (uuid.UUID, error)
	InsertChunks(ctx context.Context, documentID uuid.UUID, chunks []NewChunk) (int, error)
	MarkCompleted(ctx context.Context, documentID uuid.UUID) error
	// InsertChunksAndComplete は既存チャンクを置き換えて completed へ遷移させる（1トランザクション）
	// 既に completed なら ErrDuplicateHash を返す
	InsertChunksAndComplete(ctx context.Context, documentID uuid.UUID, chunks []NewChunk) (int, error)
	// ListDocuments は作成日時の新しい順に返す
	ListDocuments(ctx context.Context) ([]Document, error)
	// DeleteDocument は実際に削除した場合に true を返す（チャンクも連鎖削除）
	DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error)
	// NearestChunks はベクトル距離の近い順に最大k件を返す
	NearestChunks(ctx context.Context, queryVector []float32, k int, documentID mo.Option[uuid.UUID]) ([]Chunk, error)
	// AllChunks は chunk_index 昇順で全チャンクを返す
	AllChunks(ctx context.Context, documentID uuid.UUID) ([]Chunk, error)
}

// HealthReporter はヘルスチェック用の情報を提供する
type HealthReporter interface {
	Ping(ctx context.Context) error
	Stats() PoolStats
}
