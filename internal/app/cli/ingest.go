package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/matthias-truyzelaere/documindr/internal/core/ingestion"
	"github.com/matthias-truyzelaere/documindr/pkg/filter"
)

// IngestAction はファイルまたはディレクトリを取り込む
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	workers := int(cmd.Int("workers"))

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("パスを参照できません: %w", err)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	logger := appCtx.Logger()
	service := appCtx.Container.IngestionService

	if !info.IsDir() {
		result, err := service.IngestPath(ctx, path)
		if err != nil {
			logger.Error("取り込みに失敗しました", "path", path, "error", err)
			return err
		}
		if result.Skipped() {
			fmt.Printf("%s は登録済みです (document_id=%s)\n", result.Filename, result.DocumentID)
			return nil
		}
		fmt.Printf("%s を取り込みました (document_id=%s, chunks=%d)\n",
			result.Filename, result.DocumentID, result.ChunksIndexed)
		return nil
	}

	ignore, err := filter.NewIgnoreFilter(path)
	if err != nil {
		return fmt.Errorf("除外ルールの読み込みに失敗: %w", err)
	}

	stats, err := ingestion.NewPipeline(service, ignore, workers, logger).Run(ctx, path)
	if err != nil {
		logger.Error("ディレクトリの取り込みに失敗しました", "path", path, "error", err)
		return err
	}

	fmt.Printf("取り込み完了: 新規 %d 件 / スキップ %d 件 / 失敗 %d 件 / チャンク %d 件\n",
		stats.IndexedFiles, stats.SkippedFiles, stats.FailedFiles, stats.TotalChunks)
	if stats.FailedFiles > 0 {
		return fmt.Errorf("%d files failed to ingest", stats.FailedFiles)
	}
	return nil
}
