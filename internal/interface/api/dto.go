package api

import (
	"time"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
	"github.com/matthias-truyzelaere/documindr/internal/core/ingestion"
)

type rootResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Author  string `json:"author"`
}

type healthResponse struct {
	Status        string `json:"status"`
	Ollama        string `json:"ollama"`
	Database      string `json:"database"`
	PoolSize      int    `json:"pool_size"`
	PoolAvailable int    `json:"pool_available"`
}

type uploadResponse struct {
	Filename      string `json:"filename"`
	DocumentID    string `json:"document_id"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

func toUploadResponse(r *ingestion.Result) uploadResponse {
	return uploadResponse{
		Filename:      r.Filename,
		DocumentID:    r.DocumentID.String(),
		ChunksIndexed: r.ChunksIndexed,
	}
}

type documentItem struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	FileType  string    `json:"file_type"`
	FileSize  int64     `json:"file_size"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type documentsListResponse struct {
	Documents []documentItem `json:"documents"`
	Total     int            `json:"total"`
}

func toDocumentsList(docs []document.Document) documentsListResponse {
	items := make([]documentItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, documentItem{
			ID:        d.ID.String(),
			Filename:  d.Filename,
			FileType:  d.FileType,
			FileSize:  d.FileSize,
			Status:    string(d.Status),
			CreatedAt: d.CreatedAt,
		})
	}
	return documentsListResponse{Documents: items, Total: len(items)}
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
}
