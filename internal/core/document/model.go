package document

import (
	"time"

	"github.com/google/uuid"
)

// Status はドキュメントの処理状態を表す
type Status string

const (
	// StatusProcessing はチャンク登録前の状態。検索対象として扱わない
	StatusProcessing Status = "processing"
	// StatusCompleted は全チャンクの永続化が完了した状態
	StatusCompleted Status = "completed"
)

// Document はアップロードされた1ファイルを表す（content_hash 単位で一意）
type Document struct {
	ID          uuid.UUID
	Filename    string
	FileType    string
	FileSize    int64
	ContentHash string
	Status      Status
	CreatedAt   time.Time
}

// NewDocument はドキュメント登録時の入力
type NewDocument struct {
	Filename    string
	FileType    string
	FileSize    int64
	ContentHash string
}

// Unit はローダーが抽出した論理単位（PDFの1ページなど）、またはその分割結果
type Unit struct {
	Text     string
	Metadata Metadata
}

// Chunk は永続化済みのチャンク
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Content    string
	Embedding  []float32
	Metadata   Metadata
}

// NewChunk はチャンク登録時の入力。ChunkIndex はストアが並び順から採番する
type NewChunk struct {
	Content   string
	Embedding []float32
	Metadata  Metadata
}

// PoolStats は接続プールの使用状況
type PoolStats struct {
	Size      int
	Available int
}
