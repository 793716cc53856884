package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/matthias-truyzelaere/documindr/internal/core/ingestion"
	"github.com/matthias-truyzelaere/documindr/internal/interface/api/respond"
)

const (
	uploadIndexedMessage = "File uploaded and indexed successfully."
	uploadSkippedMessage = "File was already indexed. Skipped duplicate processing."

	// 500 系は内部エラーの詳細（パスやバックエンドの応答）をクライアントに返さない
	uploadProcessingMessage = "Failed to process the uploaded document."
	uploadUnknownMessage    = "An unexpected error occurred during file upload."
)

func (h *Handler) upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("failed to open uploaded file", "filename", fileHeader.Filename, "error", err)
		respond.Error(c, http.StatusInternalServerError, "UPLOAD_UNKNOWN_ERROR", uploadUnknownMessage)
		return
	}
	defer file.Close()

	result, err := h.ingester.Ingest(c.Request.Context(), ingestion.Upload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		Body:     file,
	})
	if err != nil {
		switch {
		case errors.Is(err, ingestion.ErrInvalidFileType):
			respond.Error(c, http.StatusBadRequest, "UPLOAD_INVALID_FILE_TYPE", err.Error())
		case errors.Is(err, ingestion.ErrFileTooLarge):
			respond.Error(c, http.StatusRequestEntityTooLarge, "UPLOAD_FILE_TOO_LARGE", err.Error())
		case errors.Is(err, ingestion.ErrProcessing):
			h.logger.Error("upload processing failed", "filename", fileHeader.Filename, "error", err)
			respond.Error(c, http.StatusInternalServerError, "UPLOAD_PROCESSING_ERROR", uploadProcessingMessage)
		default:
			h.logger.Error("upload failed", "filename", fileHeader.Filename, "error", err)
			respond.Error(c, http.StatusInternalServerError, "UPLOAD_UNKNOWN_ERROR", uploadUnknownMessage)
		}
		return
	}

	message := uploadIndexedMessage
	if result.Skipped() {
		message = uploadSkippedMessage
	}
	respond.OK(c, "UPLOAD_SUCCESS", message, toUploadResponse(result))
}

func (h *Handler) listDocuments(c *gin.Context) {
	docs, err := h.documents.ListDocuments(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list documents")
		return
	}
	respond.OK(c, "DOCUMENTS_LIST_SUCCESS", "Documents retrieved successfully", toDocumentsList(docs))
}

func (h *Handler) deleteDocument(c *gin.Context) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		documentNotFound(c, raw)
		return
	}

	deleted, err := h.documents.DeleteDocument(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete document")
		return
	}
	if !deleted {
		documentNotFound(c, raw)
		return
	}

	h.logger.Info("Document deleted", "documentID", id)
	respond.OK(c, "DOCUMENT_DELETED", "Document deleted successfully", nil)
}

func documentNotFound(c *gin.Context, id string) {
	respond.Error(c, http.StatusNotFound, "DOCUMENT_NOT_FOUND", fmt.Sprintf("Document with id %s not found.", id))
}
