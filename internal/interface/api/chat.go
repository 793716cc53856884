package api

import (
	"context"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/matthias-truyzelaere/documindr/internal/core/ask"
	"github.com/matthias-truyzelaere/documindr/internal/interface/api/respond"
)

func (h *Handler) chat(c *gin.Context) {
	message, ok := h.bindMessage(c)
	if !ok {
		return
	}

	h.stream(c, func(emit ask.Emit) error {
		return h.asker.StreamAnswer(c.Request.Context(), message, mo.None[uuid.UUID](), emit)
	})
}

func (h *Handler) chatWithDocument(c *gin.Context) {
	message, ok := h.bindMessage(c)
	if !ok {
		return
	}
	id, ok := h.requireDocument(c)
	if !ok {
		return
	}

	h.stream(c, func(emit ask.Emit) error {
		return h.asker.StreamAnswer(c.Request.Context(), message, mo.Some(id), emit)
	})
}

func (h *Handler) summarize(c *gin.Context) {
	length, err := ask.ParseSummaryLength(c.Query("length"))
	if err != nil {
		respond.Error(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}
	id, ok := h.requireDocument(c)
	if !ok {
		return
	}

	h.stream(c, func(emit ask.Emit) error {
		return h.asker.StreamSummary(c.Request.Context(), id, length, emit)
	})
}

// bindMessage はリクエストボディを検証してメッセージを返す
// 失敗時はエラーレスポンスを書き込み false を返す
func (h *Handler) bindMessage(c *gin.Context) (string, bool) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return "", false
	}
	if utf8.RuneCountInString(req.Message) > ask.MaxMessageLength {
		respond.Error(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", ask.ErrMessageTooLong.Error())
		return "", false
	}

	switch err := ask.ValidateMessage(req.Message); {
	case err == nil:
		return req.Message, true
	case errors.Is(err, ask.ErrEmptyMessage):
		respond.Error(c, http.StatusBadRequest, "CHAT_EMPTY_MESSAGE", "Message cannot be empty.")
	case errors.Is(err, ask.ErrInvalidMessage):
		respond.Error(c, http.StatusBadRequest, "CHAT_INVALID_INPUT", "Invalid characters in message.")
	default:
		respond.Error(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
	}
	return "", false
}

// requireDocument はパスの id が既存ドキュメントを指すことを確認する
func (h *Handler) requireDocument(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		documentNotFound(c, raw)
		return uuid.Nil, false
	}

	exists, err := h.documents.DocumentExists(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to look up document")
		return uuid.Nil, false
	}
	if !exists {
		documentNotFound(c, raw)
		return uuid.Nil, false
	}
	return id, true
}

// stream は text/plain で差分を書き込み、差分ごとにフラッシュする
// ヘッダは最初の書き込み時に確定するため、書き込み前の失敗は JSON のエラーで返せる
func (h *Handler) stream(c *gin.Context, run func(emit ask.Emit) error) {
	start := func() {
		if c.Writer.Written() {
			return
		}
		header := c.Writer.Header()
		header.Set("Content-Type", "text/plain; charset=utf-8")
		header.Set("X-Request-Timeout", RequestTimeoutSeconds)
		header.Set("Cache-Control", "no-cache")
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
	}

	err := run(func(text string) error {
		start()
		if _, err := c.Writer.WriteString(text); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
	if err == nil {
		start()
		return
	}

	if errors.Is(err, context.Canceled) {
		h.logger.Info("client disconnected during streaming", "path", c.Request.URL.Path)
		return
	}

	h.logger.Error("streaming response failed", "path", c.Request.URL.Path, "error", err)
	if !c.Writer.Written() {
		respond.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to generate response")
	}
}
