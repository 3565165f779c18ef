package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"equipment-hours-backend/internal/model"
)

// UpsertSubscription creates or refreshes a browser subscription and replaces
// the set of devices it follows. Unknown device ids are ignored.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription, deviceIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		devices := []*model.Device{}
		if len(deviceIDs) > 0 {
			if err := tx.Find(&devices, deviceIDs).Error; err != nil {
				return fmt.Errorf("failed to find subscribed devices: %w", err)
			}
		}

		if err := tx.Model(sub).Association("Devices").Replace(devices); err != nil {
			return fmt.Errorf("failed to replace subscribed devices: %w", err)
		}
		sub.Devices = devices
		return nil
	})
}

// GetSubscription returns a subscription with the devices it follows.
func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Devices").First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

// DeleteSubscription removes a subscription and its device links.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM subscription_device_mapping WHERE push_subscription_endpoint = ?", endpoint).Error; err != nil {
			return fmt.Errorf("failed to unlink subscription: %w", err)
		}
		res := tx.Where("endpoint = ?", endpoint).Delete(&model.PushSubscription{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete subscription: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SubscriptionsForDevice returns every subscription following a device.
func (s *gormStore) SubscriptionsForDevice(ctx context.Context, deviceID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_device_mapping sdm ON sdm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sdm.device_id = ?", deviceID).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find subscriptions for device %d: %w", deviceID, err)
	}
	return subs, nil
}
