package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matthias-truyzelaere/documindr/internal/interface/api/respond"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

func (h *Handler) root(c *gin.Context) {
	respond.OK(c, "API_READY", "API is ready", rootResponse{
		Status:  "ready",
		Version: Version,
		Author:  Author,
	})
}

// healthCheck は生成モデルと DB に疎通確認し、接続プールの状況とあわせて返す
// 異常があっても 200 で success=false を返す
func (h *Handler) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	llmStatus := statusHealthy
	if err := h.llm.Ping(ctx); err != nil {
		h.logger.Warn("LLM health check failed", "error", err)
		llmStatus = statusUnhealthy
	}

	dbStatus := statusHealthy
	if err := h.health.Ping(ctx); err != nil {
		h.logger.Warn("database health check failed", "error", err)
		dbStatus = statusUnhealthy
	}

	overall := statusUnhealthy
	if llmStatus == statusHealthy && dbStatus == statusHealthy {
		overall = statusHealthy
	}

	code := "HEALTH_DEGRADED"
	if overall == statusHealthy {
		code = "HEALTH_OK"
	}

	stats := h.health.Stats()
	respond.JSON(c, http.StatusOK, respond.Envelope{
		Success: overall == statusHealthy,
		Code:    code,
		Message: "Service is " + overall,
		Data: healthResponse{
			Status:        overall,
			Ollama:        llmStatus,
			Database:      dbStatus,
			PoolSize:      stats.Size,
			PoolAvailable: stats.Available,
		},
	})
}
