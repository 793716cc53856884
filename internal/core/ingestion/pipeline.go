package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
)

// DefaultWorkerCount はディレクトリ取り込み時の並列数
const DefaultWorkerCount = 4

// IgnoreMatcher は取り込み対象から除外するパスを判定する
type IgnoreMatcher interface {
	ShouldIgnore(relPath string) bool
}

// PipelineStats はディレクトリ取り込みの統計情報
type PipelineStats struct {
	IndexedFiles int // 新規に取り込んだファイル数
	SkippedFiles int // 登録済みのためスキップしたファイル数
	FailedFiles  int // 失敗したファイル数
	TotalChunks  int // 新規に登録したチャンク数
}

// fileResult はファイル処理の結果
type fileResult struct {
	Path   string
	Result *Result
	Err    error
}

// Pipeline はディレクトリ配下のファイルを並列に取り込む
type Pipeline struct {
	service *Service
	ignore  IgnoreMatcher
	workers int
	logger  *slog.Logger
}

// NewPipeline は新しい Pipeline を作成する。ignore は nil でもよい
func NewPipeline(service *Service, ignore IgnoreMatcher, workers int, logger *slog.Logger) *Pipeline {
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		service: service,
		ignore:  ignore,
		workers: workers,
		logger:  logger,
	}
}

// Run は root 配下の対応拡張子のファイルを取り込む
// 個々のファイルの失敗は統計に計上して続行し、走査自体の失敗のみエラーを返す
func (p *Pipeline) Run(ctx context.Context, root string) (*PipelineStats, error) {
	paths, err := p.collect(root)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Starting directory ingestion", "root", root, "files", len(paths), "workers", p.workers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pathChan := make(chan string, len(paths))
	resultChan := make(chan *fileResult, len(paths))

	// Stage 1: パスをチャネルに投入
	go func() {
		defer close(pathChan)
		for _, path := range paths {
			select {
			case pathChan <- path:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Stage 2: 取り込みワーカー
	var wg sync.WaitGroup
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer wg.Done()
			for path := range pathChan {
				if ctx.Err() != nil {
					return
				}
				result, err := p.service.IngestPath(ctx, path)
				resultChan <- &fileResult{Path: path, Result: result, Err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// 結果集計
	stats := &PipelineStats{}
	for res := range resultChan {
		switch {
		case res.Err != nil:
			p.logger.Warn("Failed to ingest file", "path", res.Path, "error", res.Err)
			stats.FailedFiles++
		case res.Result.Skipped():
			stats.SkippedFiles++
		default:
			stats.IndexedFiles++
			stats.TotalChunks += res.Result.ChunksIndexed
		}
	}

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("directory ingestion interrupted: %w", err)
	}

	if stats.FailedFiles > 0 {
		p.logger.Warn("Directory ingestion completed with failures",
			"indexedFiles", stats.IndexedFiles,
			"skippedFiles", stats.SkippedFiles,
			"failedFiles", stats.FailedFiles,
			"totalChunks", stats.TotalChunks,
		)
	} else {
		p.logger.Info("Directory ingestion completed",
			"indexedFiles", stats.IndexedFiles,
			"skippedFiles", stats.SkippedFiles,
			"totalChunks", stats.TotalChunks,
		)
	}

	return stats, nil
}

// collect は取り込み対象のファイルパスを列挙する
func (p *Pipeline) collect(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && p.ignore != nil && p.ignore.ShouldIgnore(rel+"/") {
				p.logger.Debug("Skipping ignored directory", "path", rel)
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !ValidateExtension(path) {
			return nil
		}
		if p.ignore != nil && p.ignore.ShouldIgnore(rel) {
			p.logger.Debug("Skipping ignored document", "path", rel)
			return nil
		}

		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return paths, nil
}
