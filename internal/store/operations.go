package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"equipment-hours-backend/internal/model"
)

// ApplyOperation stores a validated log and folds its duration into the
// device total and into every unit of the device, in one transaction.
// A log without a duration is stored as is.
func (s *gormStore) ApplyOperation(ctx context.Context, entry *model.OperationLog) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if entry.Duration != nil {
			d := *entry.Duration
			res := tx.Model(&model.Device{}).
				Where("id = ?", entry.DeviceID).
				Updates(map[string]any{
					"total_system_hours": gorm.Expr("total_system_hours + ?", d),
				})
			if res.Error != nil {
				return fmt.Errorf("failed to add hours to device %d: %w", entry.DeviceID, res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrNotFound
			}

			if err := broadcastStatusAndHours(tx, entry.DeviceID, d, entry.DeviceStatus); err != nil {
				return err
			}
		}

		if err := tx.Omit(clause.Associations).Create(entry).Error; err != nil {
			return fmt.Errorf("failed to create operation log for device %d: %w", entry.DeviceID, err)
		}
		return nil
	})
}

// broadcastStatusAndHours applies one report to every unit of a device: the
// run is added to each unit's hours and the reported status replaces theirs.
func broadcastStatusAndHours(tx *gorm.DB, deviceID int64, duration float64, status model.UnitStatus) error {
	err := tx.Model(&model.DeviceUnit{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]any{
			"current_hours": gorm.Expr("current_hours + ?", duration),
			"status":        status,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update units of device %d: %w", deviceID, err)
	}
	return nil
}

// ListLogs returns the most recent logs first. A limit of zero or less
// returns all of them.
func (s *gormStore) ListLogs(ctx context.Context, limit int) ([]model.OperationLog, error) {
	return s.listLogs(ctx, nil, limit)
}

// ListLogsForDevice is ListLogs restricted to one device.
func (s *gormStore) ListLogsForDevice(ctx context.Context, deviceID int64, limit int) ([]model.OperationLog, error) {
	return s.listLogs(ctx, &deviceID, limit)
}

func (s *gormStore) listLogs(ctx context.Context, deviceID *int64, limit int) ([]model.OperationLog, error) {
	query := s.db.WithContext(ctx).
		Preload("Device").
		Preload("DeviceUnit").
		Order("start_time DESC, id DESC")
	if deviceID != nil {
		query = query.Where("device_id = ?", *deviceID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var logs []model.OperationLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list operation logs: %w", err)
	}
	return logs, nil
}
