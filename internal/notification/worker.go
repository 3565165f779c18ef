// Package notification pushes maintenance alerts to subscribed browsers.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"equipment-hours-backend/internal/model"
	"equipment-hours-backend/internal/store"
)

// queueDepth is the number of alerts buffered per worker.
const queueDepth = 32

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Subscriptions is the part of the store the workers read and prune.
type Subscriptions interface {
	SubscriptionsForDevice(ctx context.Context, deviceID int64) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Alert describes a unit that needs attention after a report.
type Alert struct {
	DeviceID     int64
	DeviceName   string
	UnitID       int64
	UnitName     string
	QRCode       string
	Status       model.UnitStatus
	CurrentHours float64
	Threshold    float64
}

// Alert kinds. Each is also the suffix of the push topic, so a newer alert of
// the same kind for a unit replaces one still pending on the push service.
const (
	KindError          = "error"
	KindMaintenance    = "maintenance"
	KindMaintenanceDue = "maintenance-due"
)

// Kinds lists every alert kind, most urgent first.
var Kinds = []string{KindError, KindMaintenance, KindMaintenanceDue}

// Kind classifies the alert. A reported status wins over a reached threshold.
func (a Alert) Kind() string {
	switch a.Status {
	case model.StatusError:
		return KindError
	case model.StatusMaintenance:
		return KindMaintenance
	default:
		return KindMaintenanceDue
	}
}

// Topic is the push topic of the alert.
func (a Alert) Topic() string {
	return fmt.Sprintf("unit-%d-%s", a.UnitID, a.Kind())
}

// Message is the text shown in the browser notification.
func (a Alert) Message() string {
	label := a.Status.Label()
	if a.Kind() == KindMaintenanceDue {
		label = "Đến hạn bảo dưỡng"
	}
	return fmt.Sprintf("%s / %s: %s (%.2f/%.2f h)", a.DeviceName, a.UnitName, label, a.CurrentHours, a.Threshold)
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	subs    Subscriptions
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, subs Subscriptions, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, size*queueDepth),
		subs:    subs,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// SetSender replaces the push transport.
func (wp *WorkerPool) SetSender(sender NotificationSender) {
	wp.sender = sender
}

// Start launches the worker goroutines. They stop when ctx is done.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case alert := <-wp.jobs:
			log.Printf("Worker %d processing unit %d of device %d", id, alert.UnitID, alert.DeviceID)
			wp.sendAlert(ctx, alert)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an alert without blocking. When the queue is full the
// alert is dropped.
func (wp *WorkerPool) Dispatch(alert Alert) {
	select {
	case wp.jobs <- alert:
	default:
		log.Printf("Warning: notification queue full, dropping alert for unit %d", alert.UnitID)
	}
}

// sendAlert delivers an alert to every subscription following the device.
func (wp *WorkerPool) sendAlert(ctx context.Context, alert Alert) {
	subscriptions, err := wp.subs.SubscriptionsForDevice(ctx, alert.DeviceID)
	if err != nil {
		log.Printf("Error fetching subscriptions for device %d: %v", alert.DeviceID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for unit %d", len(subscriptions), alert.UnitID)

	payload := []byte(alert.Message())
	options := wp.optionsFor(alert)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload, options)
	}
}

func (wp *WorkerPool) optionsFor(alert Alert) *webpush.Options {
	var options webpush.Options
	if wp.webpush != nil {
		options = *wp.webpush
	}
	options.Topic = alert.Topic()
	if alert.Kind() == KindError {
		options.Urgency = webpush.UrgencyHigh
	} else {
		options.Urgency = webpush.UrgencyNormal
	}
	return &options
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte, options *webpush.Options) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, options)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.subs.DeleteSubscription(ctx, sub.Endpoint); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
