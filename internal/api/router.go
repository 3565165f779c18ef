package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"equipment-hours-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.Default()
	r.Use(mw.Metrics())

	rateLimiter := mw.RateLimiter(rate.Limit(h.server.RateLimitPerSec), h.server.RateLimitBurst)

	responses := mw.NewResponseCache(h.server.CacheTTL)
	caching := responses.Cache()

	r.GET("/health/live", h.HealthLive)
	r.GET("/health/ready", h.HealthReady)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Every write drops cached reads so totals are never stale.
	r.POST("/log-entry/:qr_code", rateLimiter, responses.InvalidateOnWrite(), h.PostLogForm)

	api := r.Group("/api")
	api.Use(rateLimiter, responses.InvalidateOnWrite())
	{
		api.GET("/dashboard", caching, h.GetDashboard)

		api.GET("/units", caching, h.ListUnits)
		api.GET("/units/:qr_code", h.GetUnit)
		api.GET("/units/:qr_code/qr.png", h.GetUnitQR)
		api.POST("/units/:qr_code/qr/regenerate", h.RegenerateUnitQR)
		api.POST("/units/:qr_code/logs", h.PostLog)

		api.GET("/logs", caching, h.ListLogs)
		api.GET("/logs/export.xlsx", h.ExportLogs)

		api.GET("/departments", h.ListDepartments)
		api.POST("/departments", h.CreateDepartment)
		api.DELETE("/departments/:id", h.DeleteDepartment)

		api.GET("/locations", h.ListLocations)
		api.POST("/locations", h.CreateLocation)
		api.DELETE("/locations/:id", h.DeleteLocation)

		api.GET("/devices", caching, h.ListDevices)
		api.POST("/devices", h.CreateDevice)
		api.GET("/devices/:id", h.GetDevice)
		api.DELETE("/devices/:id", h.DeleteDevice)
		api.POST("/devices/:id/units", h.CreateUnit)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetPushConfig)
	}

	return r
}
