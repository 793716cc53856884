package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

// DocumentListAction は登録済みドキュメントを一覧表示する
func DocumentListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	docs, err := appCtx.Container.Store.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("ドキュメント一覧の取得に失敗: %w", err)
	}

	if len(docs) == 0 {
		fmt.Println("ドキュメントが見つかりません")
		return nil
	}

	renderDocuments(docs)
	return nil
}

func renderDocuments(docs []document.Document) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Filename", "Type", "Size", "Status", "Created")

	for _, d := range docs {
		table.Append(
			d.ID.String(),
			d.Filename,
			d.FileType,
			formatSize(d.FileSize),
			string(d.Status),
			d.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}

	table.Render()
}

// formatSize はバイト数を読みやすい単位に変換する
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// DocumentDeleteAction はドキュメントとそのチャンクを削除する
func DocumentDeleteAction(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("ドキュメントIDが不正です: %w", err)
	}

	if !cmd.Bool("yes") {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("ドキュメント %s を削除しますか", id),
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			if errors.Is(err, promptui.ErrAbort) {
				fmt.Println("削除を中止しました")
				return nil
			}
			return fmt.Errorf("確認プロンプトに失敗: %w", err)
		}
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	deleted, err := appCtx.Container.Store.DeleteDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("ドキュメントの削除に失敗: %w", err)
	}
	if !deleted {
		return fmt.Errorf("document with id %s not found", id)
	}

	appCtx.Logger().Info("ドキュメントを削除しました", "documentID", id)
	fmt.Printf("ドキュメント %s を削除しました\n", id)
	return nil
}
