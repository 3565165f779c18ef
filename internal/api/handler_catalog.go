package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"equipment-hours-backend/internal/model"
	"equipment-hours-backend/internal/qrcode"
)

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateDepartment handles POST /api/departments.
func (h *Handler) CreateDepartment(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	dept, err := h.store.CreateDepartment(c.Request.Context(), req.Name)
	if err != nil {
		abortWithStoreError(c, err, "department")
		return
	}
	c.JSON(http.StatusCreated, dept)
}

// ListDepartments handles GET /api/departments.
func (h *Handler) ListDepartments(c *gin.Context) {
	depts, err := h.store.ListDepartments(c.Request.Context())
	if err != nil {
		abortWithStoreError(c, err, "departments")
		return
	}
	c.JSON(http.StatusOK, depts)
}

// DeleteDepartment handles DELETE /api/departments/:id. Its devices, their
// units and their logs go with it.
func (h *Handler) DeleteDepartment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteDepartment(c.Request.Context(), id); err != nil {
		abortWithStoreError(c, err, "department")
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateLocation handles POST /api/locations.
func (h *Handler) CreateLocation(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	loc, err := h.store.CreateLocation(c.Request.Context(), req.Name)
	if err != nil {
		abortWithStoreError(c, err, "location")
		return
	}
	c.JSON(http.StatusCreated, loc)
}

// ListLocations handles GET /api/locations.
func (h *Handler) ListLocations(c *gin.Context) {
	locs, err := h.store.ListLocations(c.Request.Context())
	if err != nil {
		abortWithStoreError(c, err, "locations")
		return
	}
	c.JSON(http.StatusOK, locs)
}

// DeleteLocation handles DELETE /api/locations/:id. Units installed there
// are kept without a location.
func (h *Handler) DeleteLocation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteLocation(c.Request.Context(), id); err != nil {
		abortWithStoreError(c, err, "location")
		return
	}
	c.Status(http.StatusNoContent)
}

type createDeviceRequest struct {
	DepartmentID int64  `json:"department_id" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description"`
}

// CreateDevice handles POST /api/devices.
func (h *Handler) CreateDevice(c *gin.Context) {
	var req createDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "department_id and name are required"})
		return
	}

	device := &model.Device{DepartmentID: req.DepartmentID, Name: req.Name, Description: req.Description}
	if err := h.store.CreateDevice(c.Request.Context(), device); err != nil {
		abortWithStoreError(c, err, "device")
		return
	}
	c.JSON(http.StatusCreated, device)
}

// ListDevices handles GET /api/devices.
func (h *Handler) ListDevices(c *gin.Context) {
	devices, err := h.store.ListDevices(c.Request.Context())
	if err != nil {
		abortWithStoreError(c, err, "devices")
		return
	}
	c.JSON(http.StatusOK, devices)
}

// GetDevice handles GET /api/devices/:id.
func (h *Handler) GetDevice(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	device, err := h.store.GetDevice(c.Request.Context(), id)
	if err != nil {
		abortWithStoreError(c, err, "device")
		return
	}

	logs, err := h.store.ListLogsForDevice(c.Request.Context(), id, recentLogCount)
	if err != nil {
		abortWithStoreError(c, err, "logs")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                 device.ID,
		"department_id":      device.DepartmentID,
		"name":               device.Name,
		"description":        device.Description,
		"total_system_hours": device.TotalSystemHours,
		"units":              toUnitViews(device.Units),
		"recent_logs":        toLogViews(logs),
	})
}

// DeleteDevice handles DELETE /api/devices/:id.
func (h *Handler) DeleteDevice(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteDevice(c.Request.Context(), id); err != nil {
		abortWithStoreError(c, err, "device")
		return
	}
	c.Status(http.StatusNoContent)
}

type createUnitRequest struct {
	Name                 string  `json:"name" binding:"required"`
	QRCode               string  `json:"qr_code"`
	LocationID           *int64  `json:"location_id"`
	MaintenanceThreshold float64 `json:"maintenance_threshold"`
}

// maxQRCodeLength matches the qr_code column size.
const maxQRCodeLength = 50

// CreateUnit handles POST /api/devices/:id/units. Without a qr_code a
// random one is assigned.
func (h *Handler) CreateUnit(c *gin.Context) {
	deviceID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req createUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	code := strings.TrimSpace(req.QRCode)
	if code == "" {
		code = uuid.NewString()
	}
	if len(code) > maxQRCodeLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "qr_code is too long"})
		return
	}

	unit := &model.DeviceUnit{
		DeviceID:             deviceID,
		LocationID:           req.LocationID,
		Name:                 req.Name,
		QRCode:               code,
		MaintenanceThreshold: req.MaintenanceThreshold,
	}
	if err := h.store.CreateUnit(c.Request.Context(), unit); err != nil {
		if errors.Is(err, qrcode.ErrInvalidIdentity) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		abortWithStoreError(c, err, "unit")
		return
	}
	c.JSON(http.StatusCreated, unitView{DeviceUnit: *unit, StatusDisplay: unit.Status.Label()})
}
