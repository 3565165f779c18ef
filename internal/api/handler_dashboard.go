package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"equipment-hours-backend/internal/model"
)

// recentLogCount is how many logs the dashboard shows.
const recentLogCount = 10

type statusCount struct {
	Status  model.UnitStatus `json:"status"`
	Display string           `json:"status_display"`
	Count   int64            `json:"count"`
}

// GetDashboard handles GET /api/dashboard: unit counts per status and the
// latest logs.
func (h *Handler) GetDashboard(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := h.store.CountUnitsByStatus(ctx)
	if err != nil {
		abortWithStoreError(c, err, "units")
		return
	}

	logs, err := h.store.ListLogs(ctx, recentLogCount)
	if err != nil {
		abortWithStoreError(c, err, "logs")
		return
	}

	summary := make([]statusCount, 0, len(counts))
	for _, st := range model.Statuses() {
		summary = append(summary, statusCount{Status: st, Display: st.Label(), Count: counts[st]})
	}

	c.JSON(http.StatusOK, gin.H{
		"normal_count":      counts[model.StatusNormal],
		"maintenance_count": counts[model.StatusMaintenance],
		"error_count":       counts[model.StatusError],
		"statuses":          summary,
		"recent_logs":       toLogViews(logs),
	})
}
