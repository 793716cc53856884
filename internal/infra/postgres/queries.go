package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

// DBTX は Queries が利用する接続。pgxpool.Pool と pgx.Tx の両方が満たす
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Queries は documents / document_chunks テーブルへのSQLをまとめる
type Queries struct {
	db DBTX
}

// NewQueries は新しい Queries を作成する
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx はトランザクションに束縛した Queries を返す
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const uniqueViolation = "23505"

// 取り込み途中で中断した processing の行は重複とみなさない
const getDocumentIDByHash = `SELECT id FROM documents WHERE content_hash = $1 AND status = 'completed'`

func (q *Queries) GetDocumentIDByHash(ctx context.Context, contentHash string) (mo.Option[uuid.UUID], error) {
	var id pgtype.UUID
	if err := q.db.QueryRow(ctx, getDocumentIDByHash, contentHash).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[uuid.UUID](), nil
		}
		return mo.None[uuid.UUID](), err
	}
	return mo.Some(PgtypeToUUID(id)), nil
}

const documentExists = `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`

func (q *Queries) DocumentExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, documentExists, UUIDToPgtype(id)).Scan(&exists)
	return exists, err
}

// 同じハッシュの processing 行が残っていれば再利用し、completed 行があれば何も返さない
const insertDocument = `
INSERT INTO documents (filename, file_type, file_size, content_hash, status)
VALUES ($1, $2, $3, $4, 'processing')
ON CONFLICT (content_hash) DO UPDATE
SET filename = EXCLUDED.filename, file_type = EXCLUDED.file_type, file_size = EXCLUDED.file_size
WHERE documents.status = 'processing'
RETURNING id`

// InsertDocument は completed 済みのハッシュと一意制約違反を document.ErrDuplicateHash に変換する
func (q *Queries) InsertDocument(ctx context.Context, doc document.NewDocument) (uuid.UUID, error) {
	var id pgtype.UUID
	err := q.db.QueryRow(ctx, insertDocument, doc.Filename, doc.FileType, doc.FileSize, doc.ContentHash).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, document.ErrDuplicateHash
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return uuid.Nil, document.ErrDuplicateHash
		}
		return uuid.Nil, err
	}
	return PgtypeToUUID(id), nil
}

const lockDocumentStatus = `SELECT status FROM documents WHERE id = $1 FOR UPDATE`

// LockDocumentStatus はトランザクション終了までドキュメント行をロックし、現在の状態を返す
func (q *Queries) LockDocumentStatus(ctx context.Context, id uuid.UUID) (document.Status, error) {
	var status string
	if err := q.db.QueryRow(ctx, lockDocumentStatus, UUIDToPgtype(id)).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", document.ErrNotFound
		}
		return "", err
	}
	return document.Status(status), nil
}

const deleteChunksByDocument = `DELETE FROM document_chunks WHERE document_id = $1`

// DeleteChunks は中断した取り込みが残したチャンクを消す
func (q *Queries) DeleteChunks(ctx context.Context, documentID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteChunksByDocument, UUIDToPgtype(documentID))
	return err
}

const insertChunk = `
INSERT INTO document_chunks (document_id, chunk_index, content, embedding, metadata)
VALUES ($1, $2, $3, $4, $5)`

// InsertChunks は chunk_index を入力順に0から採番し、1回のバッチで送る
func (q *Queries) InsertChunks(ctx context.Context, documentID uuid.UUID, chunks []document.NewChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for i, c := range chunks {
		meta := c.Metadata.Clone()
		meta.ChunkIndex = i
		metaJSON, err := MetadataToJSONB(meta)
		if err != nil {
			return 0, err
		}
		batch.Queue(insertChunk, UUIDToPgtype(documentID), int32(i), c.Content, VectorToPg(c.Embedding), metaJSON)
	}

	results := q.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := range chunks {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	return len(chunks), nil
}

const markDocumentCompleted = `UPDATE documents SET status = 'completed' WHERE id = $1`

func (q *Queries) MarkDocumentCompleted(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, markDocumentCompleted, UUIDToPgtype(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return document.ErrNotFound
	}
	return nil
}

const listDocuments = `
SELECT id, filename, file_type, file_size, content_hash, status, created_at
FROM documents
ORDER BY created_at DESC`

func (q *Queries) ListDocuments(ctx context.Context) ([]document.Document, error) {
	rows, err := q.db.Query(ctx, listDocuments)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		var (
			id        pgtype.UUID
			status    string
			createdAt pgtype.Timestamptz
			doc       document.Document
		)
		if err := rows.Scan(&id, &doc.Filename, &doc.FileType, &doc.FileSize, &doc.ContentHash, &status, &createdAt); err != nil {
			return nil, err
		}
		doc.ID = PgtypeToUUID(id)
		doc.Status = document.Status(status)
		doc.CreatedAt = PgtypeToTime(createdAt)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

const deleteDocument = `DELETE FROM documents WHERE id = $1`

func (q *Queries) DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, deleteDocument, UUIDToPgtype(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const chunkColumns = `id, document_id, chunk_index, content, embedding, metadata`

const nearestChunks = `
SELECT ` + chunkColumns + `
FROM document_chunks
ORDER BY embedding <-> $1
LIMIT $2`

const nearestChunksByDocument = `
SELECT ` + chunkColumns + `
FROM document_chunks
WHERE document_id = $1
ORDER BY embedding <-> $2
LIMIT $3`

func (q *Queries) NearestChunks(ctx context.Context, queryVector []float32, k int, documentID mo.Option[uuid.UUID]) ([]document.Chunk, error) {
	if id, ok := documentID.Get(); ok {
		return q.queryChunks(ctx, nearestChunksByDocument, UUIDToPgtype(id), VectorToPg(queryVector), int32(k))
	}
	return q.queryChunks(ctx, nearestChunks, VectorToPg(queryVector), int32(k))
}

const chunksByDocument = `
SELECT ` + chunkColumns + `
FROM document_chunks
WHERE document_id = $1
ORDER BY chunk_index ASC`

func (q *Queries) ChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]document.Chunk, error) {
	return q.queryChunks(ctx, chunksByDocument, UUIDToPgtype(documentID))
}

func (q *Queries) queryChunks(ctx context.Context, sql string, args ...any) ([]document.Chunk, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []document.Chunk
	for rows.Next() {
		var (
			id         pgtype.UUID
			documentID pgtype.UUID
			chunkIndex int32
			content    string
			embedding  pgvector.Vector
			metaJSON   []byte
		)
		if err := rows.Scan(&id, &documentID, &chunkIndex, &content, &embedding, &metaJSON); err != nil {
			return nil, err
		}
		meta, err := MetadataFromJSONB(metaJSON)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, document.Chunk{
			ID:         PgtypeToUUID(id),
			DocumentID: PgtypeToUUID(documentID),
			ChunkIndex: int(chunkIndex),
			Content:    content,
			Embedding:  embedding.Slice(),
			Metadata:   meta,
		})
	}
	return chunks, rows.Err()
}
