package api

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"equipment-hours-backend/internal/accounting"
	"equipment-hours-backend/internal/model"
	"equipment-hours-backend/internal/report"
	"equipment-hours-backend/internal/store"
)

const (
	msgLogSaved     = "Nhật ký vận hành đã được lưu thành công"
	msgUnitNotFound = "unit not found"
	msgSaveFailed   = "could not save operation log"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type logView struct {
	ID            int64            `json:"id"`
	DeviceID      int64            `json:"device_id"`
	DeviceName    string           `json:"device_name"`
	DeviceUnitID  *int64           `json:"device_unit_id"`
	UnitName      string           `json:"unit_name,omitempty"`
	OperatorName  string           `json:"operator_name"`
	StartTime     time.Time        `json:"start_time"`
	EndTime       time.Time        `json:"end_time"`
	Duration      *float64         `json:"duration"`
	DeviceStatus  model.UnitStatus `json:"device_status"`
	StatusDisplay string           `json:"status_display"`
	Notes         string           `json:"notes"`
}

func toLogViews(logs []model.OperationLog) []logView {
	views := make([]logView, len(logs))
	for i, l := range logs {
		v := logView{
			ID:            l.ID,
			DeviceID:      l.DeviceID,
			DeviceUnitID:  l.DeviceUnitID,
			OperatorName:  l.OperatorName,
			StartTime:     l.StartTime,
			EndTime:       l.EndTime,
			Duration:      l.Duration,
			DeviceStatus:  l.DeviceStatus,
			StatusDisplay: l.DeviceStatus.Label(),
			Notes:         l.Notes,
		}
		if l.Device != nil {
			v.DeviceName = l.Device.Name
		}
		if l.DeviceUnit != nil {
			v.UnitName = l.DeviceUnit.Name
		}
		views[i] = v
	}
	return views
}

// logRequest is the body of both the JSON and the form submission.
type logRequest struct {
	OperatorName string `json:"operator_name" form:"operator_name"`
	StartTime    string `json:"start_time" form:"start_time"`
	EndTime      string `json:"end_time" form:"end_time"`
	DeviceStatus string `json:"device_status" form:"device_status"`
	Notes        string `json:"notes" form:"notes"`
}

func (r logRequest) submission(qrCode string) accounting.Submission {
	return accounting.Submission{
		QRCode:       qrCode,
		OperatorName: r.OperatorName,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		Status:       r.DeviceStatus,
		Notes:        r.Notes,
	}
}

// PostLog handles POST /api/units/:qr_code/logs, used by the PWA and its
// offline replay queue.
func (h *Handler) PostLog(c *gin.Context) {
	var req logRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request"})
		return
	}

	res, err := h.accounting.RecordOperation(c.Request.Context(), req.submission(c.Param("qr_code")))
	if err != nil {
		status, message := recordErrorStatus(err)
		c.JSON(status, gin.H{"success": false, "message": message})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":        true,
		"message":        msgLogSaved,
		"log_id":         res.Log.ID,
		"duration":       res.Log.Duration,
		"status_display": res.StatusLabel,
	})
}

// PostLogForm handles POST /log-entry/:qr_code from the plain HTML form and
// answers with a redirect carrying the outcome.
func (h *Handler) PostLogForm(c *gin.Context) {
	qrCode := c.Param("qr_code")

	var req logRequest
	if err := c.ShouldBind(&req); err != nil {
		h.redirectFormError(c, qrCode, "invalid request")
		return
	}

	res, err := h.accounting.RecordOperation(c.Request.Context(), req.submission(qrCode))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": msgUnitNotFound})
			return
		}
		_, message := recordErrorStatus(err)
		h.redirectFormError(c, qrCode, message)
		return
	}

	q := url.Values{}
	q.Set("result", "success")
	if res.Log.Duration != nil {
		q.Set("duration", strconv.FormatFloat(*res.Log.Duration, 'f', -1, 64))
	}
	c.Redirect(http.StatusSeeOther, h.formURL(qrCode, "")+"?"+q.Encode())
}

func (h *Handler) redirectFormError(c *gin.Context, qrCode, message string) {
	q := url.Values{}
	q.Set("result", "error")
	q.Set("message", message)
	c.Redirect(http.StatusSeeOther, h.formURL(qrCode, "/log")+"?"+q.Encode())
}

func (h *Handler) formURL(qrCode, suffix string) string {
	return strings.TrimRight(h.server.FormRedirectBase, "/") + "/" + url.PathEscape(qrCode) + suffix
}

// recordErrorStatus maps a RecordOperation failure to a status code and a
// client-facing message. Storage details are logged, never returned.
func recordErrorStatus(err error) (int, string) {
	var verr *accounting.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Reason
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, msgUnitNotFound
	default:
		log.Printf("Error recording operation: %v", err)
		return http.StatusInternalServerError, msgSaveFailed
	}
}

// ListLogs handles GET /api/logs?limit=&device_id=.
func (h *Handler) ListLogs(c *gin.Context) {
	limit, ok := limitQuery(c, 0)
	if !ok {
		return
	}

	var (
		logs []model.OperationLog
		err  error
	)
	if raw := c.Query("device_id"); raw != "" {
		deviceID, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid device_id"})
			return
		}
		logs, err = h.store.ListLogsForDevice(c.Request.Context(), deviceID, limit)
	} else {
		logs, err = h.store.ListLogs(c.Request.Context(), limit)
	}
	if err != nil {
		abortWithStoreError(c, err, "logs")
		return
	}
	c.JSON(http.StatusOK, toLogViews(logs))
}

// ExportLogs handles GET /api/logs/export.xlsx.
func (h *Handler) ExportLogs(c *gin.Context) {
	logs, err := h.store.ListLogs(c.Request.Context(), 0)
	if err != nil {
		abortWithStoreError(c, err, "logs")
		return
	}

	var buf bytes.Buffer
	if err := report.WriteLogs(&buf, logs, h.server.Location); err != nil {
		abortWithStoreError(c, err, "report")
		return
	}

	filename := fmt.Sprintf("nhat-ky-%s.xlsx", time.Now().In(h.location()).Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handler) location() *time.Location {
	if h.server.Location == nil {
		return time.UTC
	}
	return h.server.Location
}
