package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute はルートに一致しなかったリクエストのラベル
const unmatchedRoute = "unmatched"

// HTTPObserver はリクエスト単位の計測値を受け取る
type HTTPObserver interface {
	ObserveHTTPRequest(method, route string, status int, elapsed time.Duration)
}

// Logging はリクエストごとに構造化ログを1行出力し、observer があれば計測値を渡す
func Logging(logger *slog.Logger, observer HTTPObserver) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		if observer != nil {
			observer.ObserveHTTPRequest(c.Request.Method, route, status, latency)
		}

		logger.Info("request completed",
			"request_id", RequestIDFromContext(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", route,
			"status", status,
			"duration_ms", float64(latency.Microseconds())/1000.0,
			"bytes", c.Writer.Size(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		)
	}
}
