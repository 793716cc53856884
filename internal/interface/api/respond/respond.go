package respond

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequestIDKey は gin.Context にリクエストIDを格納するキー
const RequestIDKey = "requestId"

// Envelope は成功レスポンスの共通形式
type Envelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ErrorBody はエラーレスポンスの共通形式
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON は任意のペイロードをそのまま返す
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK は 200 で Envelope を返す
func OK(c *gin.Context, code, message string, data any) {
	JSON(c, http.StatusOK, Envelope{
		Success: true,
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Error はエラーを記録して処理を中断し、ErrorBody を返す
func Error(c *gin.Context, status int, code, message string) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(c.Request.Context(), level, "http error",
		"status", status,
		"code", code,
		"message", message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
		"request_id", c.GetString(RequestIDKey),
	)

	c.AbortWithStatusJSON(status, ErrorBody{Code: code, Message: message})
}
