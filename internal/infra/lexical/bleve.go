// Package lexical はベクトル検索の候補集合を語彙スコアで並べ替える
package lexical

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/blevesearch/bleve"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
	"github.com/matthias-truyzelaere/documindr/internal/core/search"
)

const contentField = "content"

// BleveReranker は候補ごとにメモリ上のbleveインデックスを作り、マッチクエリのスコアで並べ替える
// 語彙的にヒットしなかった候補は、ヒットした候補の後ろに元の順序のまま並べる
type BleveReranker struct {
	logger *slog.Logger
}

var _ search.Reranker = (*BleveReranker)(nil)

// NewBleveReranker は新しい BleveReranker を作成する
func NewBleveReranker(logger *slog.Logger) *BleveReranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &BleveReranker{logger: logger}
}

type indexedChunk struct {
	Content string `json:"content"`
}

// Rerank は candidates を語彙スコア順に並べ替え、上位k件を返す
func (r *BleveReranker) Rerank(ctx context.Context, query string, candidates []document.Chunk, k int) ([]document.Chunk, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if k <= 0 || k > len(candidates) {
		k = len(candidates)
	}

	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create lexical index: %w", err)
	}
	defer index.Close()

	batch := index.NewBatch()
	for i, c := range candidates {
		if err := batch.Index(strconv.Itoa(i), indexedChunk{Content: c.Content}); err != nil {
			return nil, fmt.Errorf("failed to index candidate %d: %w", i, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("failed to index candidates: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := bleve.NewMatchQuery(query)
	q.SetField(contentField)
	req := bleve.NewSearchRequestOptions(q, len(candidates), 0, false)
	res, err := index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to run lexical search: %w", err)
	}

	ranked := make([]document.Chunk, 0, len(candidates))
	used := make([]bool, len(candidates))
	for _, hit := range res.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(candidates) || used[i] {
			continue
		}
		used[i] = true
		ranked = append(ranked, candidates[i])
	}
	for i, c := range candidates {
		if !used[i] {
			ranked = append(ranked, c)
		}
	}

	r.logger.Debug("lexical rerank", "candidates", len(candidates), "hits", len(res.Hits))
	return ranked[:k], nil
}
