package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	coreask "github.com/matthias-truyzelaere/documindr/internal/core/ask"
)

// AskAction は質問応答コマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	question := cmd.Args().First()
	if err := coreask.ValidateMessage(question); err != nil {
		return fmt.Errorf("質問文が不正です: %w", err)
	}

	documentID := mo.None[uuid.UUID]()
	if raw := cmd.String("document-id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("ドキュメントIDが不正です: %w", err)
		}
		documentID = mo.Some(id)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if id, ok := documentID.Get(); ok {
		if err := requireDocument(ctx, appCtx, id); err != nil {
			return err
		}
	}

	slog.Info("質問応答を開始", "question", question, "documentID", documentID.OrEmpty())

	if err := appCtx.Container.AskService.StreamAnswer(ctx, question, documentID, printDelta); err != nil {
		slog.Error("質問応答に失敗しました", "error", err)
		return err
	}
	fmt.Println()

	slog.Info("質問応答が完了しました")
	return nil
}

// SummarizeAction はドキュメントの要約を出力する
func SummarizeAction(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("document-id"))
	if err != nil {
		return fmt.Errorf("ドキュメントIDが不正です: %w", err)
	}
	length, err := coreask.ParseSummaryLength(cmd.String("length"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := requireDocument(ctx, appCtx, id); err != nil {
		return err
	}

	if err := appCtx.Container.AskService.StreamSummary(ctx, id, length, printDelta); err != nil {
		slog.Error("要約に失敗しました", "documentID", id, "error", err)
		return err
	}
	fmt.Println()
	return nil
}

func requireDocument(ctx context.Context, appCtx *AppContext, id uuid.UUID) error {
	exists, err := appCtx.Container.Store.DocumentExists(ctx, id)
	if err != nil {
		return fmt.Errorf("ドキュメントの確認に失敗: %w", err)
	}
	if !exists {
		return fmt.Errorf("document with id %s not found", id)
	}
	return nil
}

// printDelta は生成された差分をそのまま標準出力に書く
func printDelta(text string) error {
	_, err := fmt.Fprint(os.Stdout, text)
	return err
}
