package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/matthias-truyzelaere/documindr/internal/interface/api/respond"
)

// RequestIDHeader はリクエストIDの受け渡しに使うヘッダ
const RequestIDHeader = "X-Request-ID"

// RequestID はリクエストIDをコンテキストとレスポンスヘッダに設定する
// クライアントが送ってきた値があればそれを使う
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(respond.RequestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFromContext は RequestID が格納したIDを返す
func RequestIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(respond.RequestIDKey)
}
