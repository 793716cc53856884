package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matthias-truyzelaere/documindr/internal/interface/api/respond"
)

// DefaultMaxPayload はリクエスト全体のサイズ上限 (210MB)
const DefaultMaxPayload int64 = 210 * 1024 * 1024

// PayloadLimit は Content-Length が上限を超える POST/PUT/PATCH を 413 で拒否する
func PayloadLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayload
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if c.Request.ContentLength > maxBytes {
				respond.Error(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request too large")
				return
			}
		}
		c.Next()
	}
}
