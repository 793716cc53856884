package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"github.com/matthias-truyzelaere/documindr/internal/interface/api"
)

// shutdownTimeout は処理中のリクエストを待つ最大時間
const shutdownTimeout = 2 * time.Second

// ServerStartAction はHTTPサーバーを起動し、シグナル受信で停止する
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	logger := appCtx.Logger()
	cfg := appCtx.Config
	c := appCtx.Container

	port := cfg.Server.Port
	if cmd.IsSet("port") {
		port = int(cmd.Int("port"))
	}

	// モデルの読み込みを待たずに起動する
	go func() {
		if err := c.Embeddings.Warmup(ctx); err != nil {
			logger.Warn("Embedding モデルのウォームアップに失敗しました", "error", err)
			return
		}
		logger.Info("Embedding モデルのウォームアップが完了しました")
	}()

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(
		c.IngestionService,
		c.Store,
		c.AskService,
		c.LLM,
		c.Store,
		api.WithHandlerLogger(logger),
	)
	router := api.NewRouter(api.NewRouterConfig(cfg), handler, c.Metrics, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTPサーバーを起動します",
			"addr", srv.Addr,
			"store", cfg.StoreDriver,
			"chatModel", cfg.Ollama.ChatModel,
			"embeddingModel", cfg.Ollama.EmbeddingModel,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("シャットダウンを開始します")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("処理中のリクエストを待ち切れませんでした", "error", err)
	}

	logger.Info("HTTPサーバーを停止しました")
	return nil
}
