// Package memory はプロセス内で完結する document.Repository 実装を提供する
// テストやDBなしでのローカル実行向けで、近傍検索は全件のL2距離計算で行う
package memory

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

// Store はメモリ上のドキュメントストア
type Store struct {
	mu        sync.RWMutex
	documents map[uuid.UUID]*document.Document
	byHash    map[string]uuid.UUID
	chunks    map[uuid.UUID][]document.Chunk
	now       func() time.Time
}

var (
	_ document.Repository     = (*Store)(nil)
	_ document.HealthReporter = (*Store)(nil)
)

// NewStore は空の Store を作成する
func NewStore() *Store {
	return &Store{
		documents: make(map[uuid.UUID]*document.Document),
		byHash:    make(map[string]uuid.UUID),
		chunks:    make(map[uuid.UUID][]document.Chunk),
		now:       time.Now,
	}
}

// GetDocumentByHash は content_hash に一致する completed のドキュメントIDを返す
func (s *Store) GetDocumentByHash(_ context.Context, contentHash string) (mo.Option[uuid.UUID], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.byHash[contentHash]; ok && s.documents[id].Status == document.StatusCompleted {
		return mo.Some(id), nil
	}
	return mo.None[uuid.UUID](), nil
}

// DocumentExists はドキュメントの存在を確認する
func (s *Store) DocumentExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.documents[id]
	return ok, nil
}

// InsertDocument は processing 状態でドキュメントを作成する
// 同じハッシュの processing 行が残っていればそれを再利用する
func (s *Store) InsertDocument(_ context.Context, doc document.NewDocument) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byHash[doc.ContentHash]; ok {
		existing := s.documents[id]
		if existing.Status == document.StatusCompleted {
			return uuid.Nil, document.ErrDuplicateHash
		}
		existing.Filename = doc.Filename
		existing.FileType = doc.FileType
		existing.FileSize = doc.FileSize
		return id, nil
	}

	id := uuid.New()
	s.documents[id] = &document.Document{
		ID:          id,
		Filename:    doc.Filename,
		FileType:    doc.FileType,
		FileSize:    doc.FileSize,
		ContentHash: doc.ContentHash,
		Status:      document.StatusProcessing,
		CreatedAt:   s.now(),
	}
	s.byHash[doc.ContentHash] = id
	return id, nil
}

// InsertChunks はドキュメントのチャンクを置き換える。chunk_index は入力順に0から採番する
func (s *Store) InsertChunks(_ context.Context, documentID uuid.UUID, chunks []document.NewChunk) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertChunksLocked(documentID, chunks)
}

// MarkCompleted はドキュメントを completed にする
func (s *Store) MarkCompleted(_ context.Context, documentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.markCompletedLocked(documentID)
}

// InsertChunksAndComplete はチャンク登録と completed への遷移を1つのロック区間で行う
// 既に completed なら document.ErrDuplicateHash を返す
func (s *Store) InsertChunksAndComplete(_ context.Context, documentID uuid.UUID, chunks []document.NewChunk) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc, ok := s.documents[documentID]; ok && doc.Status == document.StatusCompleted {
		return 0, document.ErrDuplicateHash
	}

	count, err := s.insertChunksLocked(documentID, chunks)
	if err != nil {
		return 0, err
	}
	if err := s.markCompletedLocked(documentID); err != nil {
		delete(s.chunks, documentID)
		return 0, err
	}
	return count, nil
}

func (s *Store) insertChunksLocked(documentID uuid.UUID, chunks []document.NewChunk) (int, error) {
	if _, ok := s.documents[documentID]; !ok {
		return 0, fmt.Errorf("failed to insert chunks: %w", document.ErrNotFound)
	}

	rows := make([]document.Chunk, 0, len(chunks))
	for i, c := range chunks {
		meta := c.Metadata.Clone()
		meta.ChunkIndex = i
		rows = append(rows, document.Chunk{
			ID:         uuid.New(),
			DocumentID: documentID,
			ChunkIndex: i,
			Content:    c.Content,
			Embedding:  slices.Clone(c.Embedding),
			Metadata:   meta,
		})
	}
	s.chunks[documentID] = rows
	return len(rows), nil
}

func (s *Store) markCompletedLocked(documentID uuid.UUID) error {
	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("failed to mark document as completed: %w", document.ErrNotFound)
	}
	doc.Status = document.StatusCompleted
	return nil
}

// ListDocuments は作成日時の新しい順に返す
func (s *Store) ListDocuments(_ context.Context) ([]document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]document.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, *doc)
	}
	slices.SortStableFunc(docs, func(a, b document.Document) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return docs, nil
}

// DeleteDocument はドキュメントとそのチャンクを削除する
func (s *Store) DeleteDocument(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return false, nil
	}
	delete(s.byHash, doc.ContentHash)
	delete(s.documents, id)
	delete(s.chunks, id)
	return true, nil
}

// NearestChunks はL2距離の近い順に最大k件を返す
func (s *Store) NearestChunks(_ context.Context, queryVector []float32, k int, documentID mo.Option[uuid.UUID]) ([]document.Chunk, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		chunk    document.Chunk
		distance float64
	}

	var candidates []scored
	collect := func(chunks []document.Chunk) {
		for _, c := range chunks {
			candidates = append(candidates, scored{chunk: c, distance: l2Distance(queryVector, c.Embedding)})
		}
	}

	if id, ok := documentID.Get(); ok {
		collect(s.chunks[id])
	} else {
		for _, chunks := range s.chunks {
			collect(chunks)
		}
	}

	slices.SortStableFunc(candidates, func(a, b scored) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.chunk.ChunkIndex, b.chunk.ChunkIndex)
	})

	out := make([]document.Chunk, 0, min(k, len(candidates)))
	for _, c := range candidates[:min(k, len(candidates))] {
		out = append(out, c.chunk)
	}
	return out, nil
}

// AllChunks は chunk_index 昇順で全チャンクを返す
func (s *Store) AllChunks(_ context.Context, documentID uuid.UUID) ([]document.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.chunks[documentID])
	slices.SortFunc(out, func(a, b document.Chunk) int {
		return cmp.Compare(a.ChunkIndex, b.ChunkIndex)
	})
	return out, nil
}

// Document はIDでドキュメントを返す
func (s *Store) Document(id uuid.UUID) mo.Option[document.Document] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.documents[id]; ok {
		return mo.Some(*doc)
	}
	return mo.None[document.Document]()
}

// Ping は常に成功する
func (s *Store) Ping(_ context.Context) error {
	return nil
}

// Stats はプールを持たないため0を返す
func (s *Store) Stats() document.PoolStats {
	return document.PoolStats{}
}

// l2Distance は次元が異なる場合、不足分を0として扱う
func l2Distance(a, b []float32) float64 {
	n := max(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = float64(a[i])
		}
		if i < len(b) {
			y = float64(b[i])
		}
		d := x - y
		sum += d * d
	}
	return math.Sqrt(sum)
}
