package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"equipment-hours-backend/internal/model"
)

type unitView struct {
	model.DeviceUnit
	StatusDisplay     string `json:"status_display"`
	DueForMaintenance bool   `json:"due_for_maintenance"`
}

func toUnitViews(units []model.DeviceUnit) []unitView {
	views := make([]unitView, len(units))
	for i, u := range units {
		views[i] = unitView{DeviceUnit: u, StatusDisplay: u.Status.Label(), DueForMaintenance: u.DueForMaintenance()}
	}
	return views
}

// ListUnits handles GET /api/units?status=.
func (h *Handler) ListUnits(c *gin.Context) {
	status := model.UnitStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	units, err := h.store.ListUnits(c.Request.Context(), status)
	if err != nil {
		abortWithStoreError(c, err, "units")
		return
	}
	c.JSON(http.StatusOK, toUnitViews(units))
}

// GetUnit handles GET /api/units/:qr_code, the lookup behind a scan. It
// returns the unit, its device and every unit of that device.
func (h *Handler) GetUnit(c *gin.Context) {
	ctx := c.Request.Context()

	unit, err := h.store.UnitByQRCode(ctx, c.Param("qr_code"))
	if err != nil {
		abortWithStoreError(c, err, "unit")
		return
	}

	device, err := h.store.GetDevice(ctx, unit.DeviceID)
	if err != nil {
		abortWithStoreError(c, err, "device")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"unit":   unitView{DeviceUnit: *unit, StatusDisplay: unit.Status.Label(), DueForMaintenance: unit.DueForMaintenance()},
		"device": gin.H{
			"id":                 device.ID,
			"name":               device.Name,
			"description":        device.Description,
			"department":         unit.Device.Department.Name,
			"total_system_hours": device.TotalSystemHours,
		},
		"all_units": toUnitViews(device.Units),
	})
}

// GetUnitQR handles GET /api/units/:qr_code/qr.png. A missing image is
// rendered on first request.
func (h *Handler) GetUnitQR(c *gin.Context) {
	ctx := c.Request.Context()

	unit, err := h.store.UnitByQRCode(ctx, c.Param("qr_code"))
	if err != nil {
		abortWithStoreError(c, err, "unit")
		return
	}

	if h.images == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "qr images are not configured"})
		return
	}

	created, err := h.store.EnsureQRImage(ctx, unit)
	if err != nil {
		abortWithStoreError(c, err, "qr image")
		return
	}
	if created {
		log.Printf("Generated missing qr image for unit %d", unit.ID)
	}

	png, err := h.images.Read(*unit.QRImage)
	if err != nil {
		abortWithStoreError(c, err, "qr image")
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+*unit.QRImage+`"`)
	c.Data(http.StatusOK, "image/png", png)
}

// RegenerateUnitQR handles POST /api/units/:qr_code/qr/regenerate.
func (h *Handler) RegenerateUnitQR(c *gin.Context) {
	ctx := c.Request.Context()

	unit, err := h.store.UnitByQRCode(ctx, c.Param("qr_code"))
	if err != nil {
		abortWithStoreError(c, err, "unit")
		return
	}

	if err := h.store.RegenerateQRImage(ctx, unit); err != nil {
		abortWithStoreError(c, err, "qr image")
		return
	}
	c.JSON(http.StatusOK, gin.H{"qr_image": unit.QRImage})
}
