package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
	"github.com/matthias-truyzelaere/documindr/internal/platform/database"
)

// Store は document.Repository を実装する PostgreSQL ストア
type Store struct {
	pool   *pgxpool.Pool
	q      *Queries
	logger *slog.Logger
}

// StoreOption は Store のオプション設定
type StoreOption func(*Store)

// WithStoreLogger はロガーを設定する
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore は新しい Store を作成する
func NewStore(pool *pgxpool.Pool, opts ...StoreOption) *Store {
	s := &Store{
		pool:   pool,
		q:      NewQueries(pool),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// コンパイル時の型チェック
var (
	_ document.Repository     = (*Store)(nil)
	_ document.HealthReporter = (*Store)(nil)
)

// fail は操作名付きでログを出し、"failed to <op>" でラップする
// 呼び出し側で判定するセンチネルはラップしてもそのまま errors.Is で辿れる
func (s *Store) fail(op string, err error) error {
	s.logger.Error("database operation failed", "op", op, "error", err)
	return fmt.Errorf("failed to %s: %w", op, err)
}

func (s *Store) GetDocumentByHash(ctx context.Context, contentHash string) (mo.Option[uuid.UUID], error) {
	id, err := s.q.GetDocumentIDByHash(ctx, contentHash)
	if err != nil {
		return mo.None[uuid.UUID](), s.fail("get document by hash", err)
	}
	return id, nil
}

func (s *Store) DocumentExists(ctx context.Context, id uuid.UUID) (bool, error) {
	exists, err := s.q.DocumentExists(ctx, id)
	if err != nil {
		return false, s.fail("check document existence", err)
	}
	return exists, nil
}

func (s *Store) InsertDocument(ctx context.Context, doc document.NewDocument) (uuid.UUID, error) {
	id, err := s.q.InsertDocument(ctx, doc)
	if err != nil {
		if errors.Is(err, document.ErrDuplicateHash) {
			return uuid.Nil, err
		}
		return uuid.Nil, s.fail("insert document", err)
	}
	return id, nil
}

func (s *Store) InsertChunks(ctx context.Context, documentID uuid.UUID, chunks []document.NewChunk) (int, error) {
	count, err := s.q.InsertChunks(ctx, documentID, chunks)
	if err != nil {
		return 0, s.fail("insert document chunks", err)
	}
	return count, nil
}

func (s *Store) MarkCompleted(ctx context.Context, documentID uuid.UUID) error {
	if err := s.q.MarkDocumentCompleted(ctx, documentID); err != nil {
		return s.fail("mark document as completed", err)
	}
	return nil
}

// InsertChunksAndComplete はチャンク登録と completed への遷移を1トランザクションで行う
// ドキュメント行をロックしてから既存チャンクを置き換えるため、再利用した processing 行でも重複しない
// 既に他の取り込みが completed にしていれば document.ErrDuplicateHash を返す
func (s *Store) InsertChunksAndComplete(ctx context.Context, documentID uuid.UUID, chunks []document.NewChunk) (int, error) {
	count, err := database.Transact(ctx, s.pool, func(tx pgx.Tx) (int, error) {
		q := s.q.WithTx(tx)
		status, err := q.LockDocumentStatus(ctx, documentID)
		if err != nil {
			return 0, fmt.Errorf("lock document: %w", err)
		}
		if status == document.StatusCompleted {
			return 0, document.ErrDuplicateHash
		}
		if err := q.DeleteChunks(ctx, documentID); err != nil {
			return 0, fmt.Errorf("delete stale chunks: %w", err)
		}
		count, err := q.InsertChunks(ctx, documentID, chunks)
		if err != nil {
			return 0, fmt.Errorf("insert chunks: %w", err)
		}
		if err := q.MarkDocumentCompleted(ctx, documentID); err != nil {
			return 0, fmt.Errorf("mark completed: %w", err)
		}
		return count, nil
	})
	if errors.Is(err, document.ErrDuplicateHash) {
		return 0, err
	}
	if err != nil {
		return 0, s.fail("index document chunks", err)
	}
	return count, nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]document.Document, error) {
	docs, err := s.q.ListDocuments(ctx)
	if err != nil {
		return nil, s.fail("list documents", err)
	}
	return docs, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error) {
	deleted, err := s.q.DeleteDocument(ctx, id)
	if err != nil {
		return false, s.fail("delete document", err)
	}
	return deleted, nil
}

func (s *Store) NearestChunks(ctx context.Context, queryVector []float32, k int, documentID mo.Option[uuid.UUID]) ([]document.Chunk, error) {
	if k <= 0 {
		return nil, nil
	}
	chunks, err := s.q.NearestChunks(ctx, queryVector, k, documentID)
	if err != nil {
		return nil, s.fail("search similar chunks", err)
	}
	return chunks, nil
}

func (s *Store) AllChunks(ctx context.Context, documentID uuid.UUID) ([]document.Chunk, error) {
	chunks, err := s.q.ChunksByDocument(ctx, documentID)
	if err != nil {
		return nil, s.fail("get document chunks", err)
	}
	return chunks, nil
}

// Ping は SELECT 1 で接続を確認する
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Stats は接続プールの総数とアイドル数を返す
func (s *Store) Stats() document.PoolStats {
	stat := s.pool.Stat()
	return document.PoolStats{
		Size:      int(stat.TotalConns()),
		Available: int(stat.IdleConns()),
	}
}
