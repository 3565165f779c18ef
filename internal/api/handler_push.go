package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"equipment-hours-backend/internal/notification"
)

type pushConfigView struct {
	AlertsEnabled bool     `json:"alerts_enabled"`
	PublicKey     string   `json:"public_key,omitempty"`
	Topics        []string `json:"topics"`
}

// GetPushConfig tells the PWA whether maintenance alerts are delivered and,
// if so, which application server key to subscribe with.
func (h *Handler) GetPushConfig(c *gin.Context) {
	view := pushConfigView{Topics: notification.Kinds}
	if h.webpush != nil && h.webpush.VAPIDPublicKey != "" {
		view.AlertsEnabled = true
		view.PublicKey = h.webpush.VAPIDPublicKey
	}
	c.JSON(http.StatusOK, view)
}
