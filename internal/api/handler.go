package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"equipment-hours-backend/config"
	"equipment-hours-backend/internal/accounting"
	"equipment-hours-backend/internal/store"
)

// ImageReader loads stored QR images.
type ImageReader interface {
	Read(path string) ([]byte, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	accounting *accounting.Service
	images     ImageReader
	webpush    *webpush.Options
	server     config.ServerConfig
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, svc *accounting.Service, images ImageReader, webpushOptions *webpush.Options, server config.ServerConfig) *Handler {
	return &Handler{
		store:      s,
		accounting: svc,
		images:     images,
		webpush:    webpushOptions,
		server:     server,
	}
}

// abortWithStoreError maps store errors onto HTTP responses. what names the
// record the request is about; a missing referenced record names itself.
func abortWithStoreError(c *gin.Context, err error, what string) {
	var missing *store.MissingError
	switch {
	case errors.As(err, &missing):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": missing.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": what + " not found"})
	case errors.Is(err, store.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": what + " already exists"})
	default:
		log.Printf("Error handling %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func limitQuery(c *gin.Context, fallback int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return fallback, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	return limit, true
}
