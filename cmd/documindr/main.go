package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/matthias-truyzelaere/documindr/internal/app/cli"
	"github.com/matthias-truyzelaere/documindr/internal/platform/logger"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 設定読み込み前の構造化ログ。設定読み込み後に LOG_LEVEL / LOG_FORMAT で置き換わる
	slog.SetDefault(logger.New(logger.DefaultConfig()))

	app := &cli.Command{
		Name:  "documindr",
		Usage: "アップロード文書を対象とした RAG 質問応答サービス",
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "HTTPサーバーコマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバーを起動",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "port",
								Usage: "待ち受けポート（省略時は PORT）",
							},
						},
						Action: appcli.ServerStartAction,
					},
				},
			},
			{
				Name:  "migrate",
				Usage: "データベースマイグレーションコマンド",
				Commands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "未適用のマイグレーションを適用",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.MigrateUpAction,
					},
					{
						Name:   "status",
						Usage:  "マイグレーションの適用状況を表示",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.MigrateStatusAction,
					},
				},
			},
			{
				Name:  "ingest",
				Usage: "ファイルまたはディレクトリを取り込む",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "path",
						Usage:    "取り込むファイルまたはディレクトリのパス",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "ディレクトリ取り込み時の並列数",
						Value: 4,
					},
				},
				Action: appcli.IngestAction,
			},
			{
				Name:  "document",
				Usage: "ドキュメント管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "ドキュメント一覧を表示",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.DocumentListAction,
					},
					{
						Name:  "delete",
						Usage: "ドキュメントとチャンクを削除",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ドキュメントID",
								Required: true,
							},
							&cli.BoolFlag{
								Name:  "yes",
								Usage: "確認せずに削除",
							},
						},
						Action: appcli.DocumentDeleteAction,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "質問に回答する",
				ArgsUsage: "<question>",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "document-id",
						Usage: "検索対象のドキュメントID（省略時は全ドキュメント）",
					},
				},
				Action: appcli.AskAction,
			},
			{
				Name:  "summarize",
				Usage: "ドキュメントを要約する",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "document-id",
						Usage:    "ドキュメントID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "length",
						Usage: "concise / normal / comprehensive",
						Value: "normal",
					},
				},
				Action: appcli.SummarizeAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
