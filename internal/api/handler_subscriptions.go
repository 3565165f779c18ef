package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"equipment-hours-backend/internal/model"
	"equipment-hours-backend/internal/store"
)

type putSubscriptionRequest struct {
	Endpoint          string  `json:"endpoint" binding:"required"`
	P256DH            string  `json:"p256dh" binding:"required"`
	Auth              string  `json:"auth" binding:"required"`
	SubscribedDevices []int64 `json:"subscribed_devices"`
}

// PutSubscription handles the creation or replacement of a subscription.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}
	if err := h.store.UpsertSubscription(c.Request.Context(), &subscription, req.SubscribedDevices); err != nil {
		abortWithStoreError(c, err, "subscription")
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.store.DeleteSubscription(c.Request.Context(), req.Endpoint)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		abortWithStoreError(c, err, "subscription")
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam returns a query value without URL decoding. Push endpoints
// are URLs themselves and must be matched byte for byte.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription handles the retrieval of a subscription.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	subscription, err := h.store.GetSubscription(c.Request.Context(), raw)
	if err != nil {
		abortWithStoreError(c, err, "subscription")
		return
	}

	deviceIDs := make([]int64, len(subscription.Devices))
	for i, device := range subscription.Devices {
		deviceIDs[i] = device.ID
	}

	c.JSON(http.StatusOK, gin.H{"subscribed_devices": deviceIDs})
}
