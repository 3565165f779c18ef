package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthLive handles GET /health/live.
func (h *Handler) HealthLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthReady handles GET /health/ready. It fails while the database is
// unreachable.
func (h *Handler) HealthReady(c *gin.Context) {
	resp := gin.H{"timestamp": time.Now().UTC().Format(time.RFC3339)}

	sqlDB, err := h.store.DB().DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		resp["status"] = "fail"
		resp["database"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	resp["status"] = "ok"
	resp["database"] = "ok"
	c.JSON(http.StatusOK, resp)
}
