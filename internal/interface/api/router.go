package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/matthias-truyzelaere/documindr/internal/interface/api/middleware"
	"github.com/matthias-truyzelaere/documindr/internal/interface/api/respond"
	"github.com/matthias-truyzelaere/documindr/internal/platform/metrics"
	"github.com/matthias-truyzelaere/documindr/pkg/config"
)

// RouterConfig はルータ構築時の設定
type RouterConfig struct {
	AllowedOrigins []string
	MaxPayload     int64
	RateLimits     map[string]middleware.RateLimitRule
	// IdleBucketTTL を過ぎたレート制限バケットは破棄される
	IdleBucketTTL time.Duration
}

// NewRouterConfig はアプリケーション設定からルータ設定を作る
func NewRouterConfig(cfg *config.Config) RouterConfig {
	rl := cfg.RateLimit
	window := func(seconds int) time.Duration { return time.Duration(seconds) * time.Second }

	return RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxPayload:     middleware.DefaultMaxPayload,
		RateLimits: map[string]middleware.RateLimitRule{
			middleware.RateLimitGroupChat:    {Limit: rl.Chat, Window: window(rl.ChatWindow)},
			middleware.RateLimitGroupUpload:  {Limit: rl.Upload, Window: window(rl.UploadWindow)},
			middleware.RateLimitGroupDefault: {Limit: rl.Default, Window: window(rl.DefaultWindow)},
		},
		IdleBucketTTL: 2 * window(rl.DefaultWindow),
	}
}

// NewRouter はミドルウェアとルートを登録した gin.Engine を構築する
// m が nil の場合は /metrics を公開せず HTTP 計測も行わない
func NewRouter(cfg RouterConfig, h *Handler, m *metrics.Metrics, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()

	var observer middleware.HTTPObserver
	if m != nil {
		observer = m
	}

	r.Use(
		middleware.RequestID(),
		middleware.Logging(logger, observer),
		middleware.Recovery(logger),
		middleware.CORS(cfg.AllowedOrigins),
		middleware.PayloadLimit(cfg.MaxPayload),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:   cfg.RateLimits,
			Limiter: middleware.NewRateLimiter(nil, cfg.IdleBucketTTL, middleware.DefaultCleanupInterval),
		}),
	)

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "HTTP_ERROR", "Not Found")
	})
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		respond.Error(c, http.StatusMethodNotAllowed, "HTTP_ERROR", "Method Not Allowed")
	})

	api := r.Group("/api")
	api.GET("", h.root)
	api.GET("/health", h.healthCheck)
	api.POST("/upload", h.upload)
	api.GET("/documents", h.listDocuments)
	api.DELETE("/documents/:id", h.deleteDocument)
	api.POST("/chat", h.chat)
	api.POST("/chat/:id", h.chatWithDocument)
	api.POST("/chat/:id/summary", h.summarize)

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	return r
}
