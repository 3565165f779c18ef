package notification

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"equipment-hours-backend/internal/model"
	"equipment-hours-backend/internal/store"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestStore(t *testing.T) (store.Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return store.NewGormStore(gormDB, nil), mock
}

const subscriptionQuery = `SELECT .* FROM "push_subscriptions".*JOIN subscription_device_mapping sdm.*WHERE sdm\.device_id = \$1`

func TestAlert_Message(t *testing.T) {
	testCases := []struct {
		name     string
		alert    Alert
		expected string
	}{
		{
			name: "reported error",
			alert: Alert{DeviceName: "Máy chính", UnitName: "Bơm dầu", Status: model.StatusError,
				CurrentHours: 12.5, Threshold: 500},
			expected: "Máy chính / Bơm dầu: Hỏng hóc/Sự cố (12.50/500.00 h)",
		},
		{
			name: "threshold reached while normal",
			alert: Alert{DeviceName: "Máy phát", UnitName: "Động cơ", Status: model.StatusNormal,
				CurrentHours: 501, Threshold: 500},
			expected: "Máy phát / Động cơ: Đến hạn bảo dưỡng (501.00/500.00 h)",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.alert.Message())
		})
	}
}

func TestAlert_KindAndTopic(t *testing.T) {
	testCases := []struct {
		status  model.UnitStatus
		kind    string
		topic   string
		urgency webpush.Urgency
	}{
		{model.StatusError, KindError, "unit-4-error", webpush.UrgencyHigh},
		{model.StatusMaintenance, KindMaintenance, "unit-4-maintenance", webpush.UrgencyNormal},
		{model.StatusNormal, KindMaintenanceDue, "unit-4-maintenance-due", webpush.UrgencyNormal},
	}

	wp := NewWorkerPool(1, nil, nil)
	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			alert := Alert{UnitID: 4, Status: tc.status, CurrentHours: 500, Threshold: 500}
			assert.Equal(t, tc.kind, alert.Kind())
			assert.Equal(t, tc.topic, alert.Topic())

			options := wp.optionsFor(alert)
			assert.Equal(t, tc.topic, options.Topic)
			assert.Equal(t, tc.urgency, options.Urgency)
		})
	}
	assert.ElementsMatch(t, []string{KindError, KindMaintenance, KindMaintenanceDue}, Kinds)
}

func TestWorkerPool_Dispatch(t *testing.T) {
	s, _ := newTestStore(t)
	wp := NewWorkerPool(1, s, &webpush.Options{})

	wp.Dispatch(Alert{UnitID: 123})

	select {
	case job := <-wp.jobs:
		assert.Equal(t, int64(123), job.UnitID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DispatchNeverBlocks(t *testing.T) {
	s, _ := newTestStore(t)
	wp := NewWorkerPool(1, s, &webpush.Options{})

	done := make(chan struct{})
	go func() {
		for i := 0; i < queueDepth+10; i++ {
			wp.Dispatch(Alert{UnitID: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("dispatch blocked on a full queue")
	}
	assert.Len(t, wp.jobs, queueDepth)
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	s, mock := newTestStore(t)
	wp := NewWorkerPool(1, s, &webpush.Options{TTL: 60})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends notification for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		alert := Alert{DeviceID: 101, DeviceName: "Máy chính", UnitID: 7, UnitName: "Bơm",
			Status: model.StatusMaintenance, CurrentHours: 10, Threshold: 500}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, "test_p256dh", sub.Keys.P256dh)
				assert.Equal(t, alert.Message(), string(payload))
				assert.Equal(t, "unit-7-maintenance", options.Topic)
				assert.Equal(t, webpush.UrgencyNormal, options.Urgency)
				assert.Equal(t, 60, options.TTL, "configured options must be carried over")
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs(alert.DeviceID).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/push", "test_p256dh", "test_auth", time.Now()))

		wp.Dispatch(alert)
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		endpoint := "https://example.com/expired"

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs(int64(102)).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow(endpoint, "k", "a", time.Now()))

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM subscription_device_mapping WHERE push_subscription_endpoint = \$1`).
			WithArgs(endpoint).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE endpoint = \$1`).
			WithArgs(endpoint).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		wp.Dispatch(Alert{DeviceID: 102, UnitID: 8})

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("no subscriptions sends nothing", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				t.Error("no notification expected")
				return nil, nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs(int64(103)).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}))

		wp.Dispatch(Alert{DeviceID: 103, UnitID: 9})

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})
}
