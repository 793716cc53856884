package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/matthias-truyzelaere/documindr/internal/platform/database"
	"github.com/matthias-truyzelaere/documindr/pkg/db"
)

// errNoDatabase はメモリストア使用時にマイグレーションを要求された場合のエラー
var errNoDatabase = errors.New("migrations require STORE_DRIVER=postgres")

// MigrateUpAction は未適用のマイグレーションを適用する
func MigrateUpAction(ctx context.Context, cmd *cli.Command) error {
	return withDatabase(ctx, cmd, func(logger *slog.Logger, conn *db.DB) error {
		if err := database.MigrateUp(ctx, conn.Pool); err != nil {
			return err
		}
		logger.Info("マイグレーションを適用しました")
		return nil
	})
}

// MigrateStatusAction はマイグレーションの適用状況を表示する
func MigrateStatusAction(ctx context.Context, cmd *cli.Command) error {
	return withDatabase(ctx, cmd, func(_ *slog.Logger, conn *db.DB) error {
		return database.MigrationStatus(ctx, conn.Pool)
	})
}

func withDatabase(ctx context.Context, cmd *cli.Command, fn func(*slog.Logger, *db.DB) error) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	conn := appCtx.Container.Database()
	if conn == nil {
		return errNoDatabase
	}
	return fn(appCtx.Logger(), conn)
}
