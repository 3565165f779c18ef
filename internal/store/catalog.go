package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"equipment-hours-backend/internal/model"
)

// CreateDepartment adds a department.
func (s *gormStore) CreateDepartment(ctx context.Context, name string) (*model.Department, error) {
	dept := model.Department{Name: strings.TrimSpace(name)}
	if err := s.db.WithContext(ctx).Create(&dept).Error; err != nil {
		return nil, fmt.Errorf("failed to create department %q: %w", dept.Name, err)
	}
	return &dept, nil
}

// ListDepartments returns every department ordered by name.
func (s *gormStore) ListDepartments(ctx context.Context) ([]model.Department, error) {
	var depts []model.Department
	if err := s.db.WithContext(ctx).Order("name").Find(&depts).Error; err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	return depts, nil
}

// DeleteDepartment removes a department together with its devices, their
// units and their logs.
func (s *gormStore) DeleteDepartment(ctx context.Context, id int64) error {
	var images []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deviceIDs []int64
		if err := tx.Model(&model.Device{}).Where("department_id = ?", id).Pluck("id", &deviceIDs).Error; err != nil {
			return fmt.Errorf("failed to find devices of department %d: %w", id, err)
		}

		var err error
		if images, err = deleteDevices(tx, deviceIDs); err != nil {
			return err
		}

		res := tx.Delete(&model.Department{}, id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete department %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.discardImages(images)
	return nil
}

// CreateLocation adds a location.
func (s *gormStore) CreateLocation(ctx context.Context, name string) (*model.Location, error) {
	loc := model.Location{Name: strings.TrimSpace(name)}
	if err := s.db.WithContext(ctx).Create(&loc).Error; err != nil {
		return nil, fmt.Errorf("failed to create location %q: %w", loc.Name, err)
	}
	return &loc, nil
}

// ListLocations returns every location ordered by name.
func (s *gormStore) ListLocations(ctx context.Context) ([]model.Location, error) {
	var locs []model.Location
	if err := s.db.WithContext(ctx).Order("name").Find(&locs).Error; err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return locs, nil
}

// DeleteLocation removes a location. Units installed there are kept and
// lose their location reference.
func (s *gormStore) DeleteLocation(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.DeviceUnit{}).
			Where("location_id = ?", id).
			Update("location_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach units from location %d: %w", id, err)
		}

		res := tx.Delete(&model.Location{}, id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete location %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CreateDevice adds a device to an existing department.
func (s *gormStore) CreateDevice(ctx context.Context, device *model.Device) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&model.Department{}, device.DepartmentID).Error; err != nil {
			return missing("department", err)
		}
		device.Name = strings.TrimSpace(device.Name)
		if device.TotalSystemHours < 0 {
			device.TotalSystemHours = 0
		}
		if err := tx.Omit(clause.Associations).Create(device).Error; err != nil {
			return fmt.Errorf("failed to create device %q: %w", device.Name, err)
		}
		return nil
	})
}

// GetDevice returns a device with its full unit list.
func (s *gormStore) GetDevice(ctx context.Context, id int64) (*model.Device, error) {
	var device model.Device
	err := s.db.WithContext(ctx).
		Preload("Units", func(db *gorm.DB) *gorm.DB { return db.Order("device_units.id") }).
		Preload("Units.Location").
		First(&device, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &device, nil
}

// ListDevices returns every device with its units.
func (s *gormStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	err := s.db.WithContext(ctx).
		Preload("Units", func(db *gorm.DB) *gorm.DB { return db.Order("device_units.id") }).
		Order("name").
		Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// DeleteDevice removes a device, its units and its logs.
func (s *gormStore) DeleteDevice(ctx context.Context, id int64) error {
	var images []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&model.Device{}, id).Error; err != nil {
			return notFound(err)
		}
		var err error
		images, err = deleteDevices(tx, []int64{id})
		return err
	})
	if err != nil {
		return err
	}

	s.discardImages(images)
	return nil
}

// deleteDevices removes the given devices and everything they own, returning
// the QR image paths of the removed units.
func deleteDevices(tx *gorm.DB, deviceIDs []int64) ([]string, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}

	var units []model.DeviceUnit
	if err := tx.Select("id", "qr_image").Where("device_id IN ?", deviceIDs).Find(&units).Error; err != nil {
		return nil, fmt.Errorf("failed to find units of devices %v: %w", deviceIDs, err)
	}

	if err := tx.Where("device_id IN ?", deviceIDs).Delete(&model.OperationLog{}).Error; err != nil {
		return nil, fmt.Errorf("failed to delete logs of devices %v: %w", deviceIDs, err)
	}
	if err := tx.Where("device_id IN ?", deviceIDs).Delete(&model.DeviceUnit{}).Error; err != nil {
		return nil, fmt.Errorf("failed to delete units of devices %v: %w", deviceIDs, err)
	}
	if err := tx.Exec("DELETE FROM subscription_device_mapping WHERE device_id IN ?", deviceIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to delete subscriptions of devices %v: %w", deviceIDs, err)
	}
	if err := tx.Delete(&model.Device{}, deviceIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to delete devices %v: %w", deviceIDs, err)
	}

	var images []string
	for _, u := range units {
		if u.QRImage != nil && *u.QRImage != "" {
			images = append(images, *u.QRImage)
		}
	}
	return images, nil
}

func (s *gormStore) discardImages(paths []string) {
	if s.qr == nil {
		return
	}
	for _, p := range paths {
		if err := s.qr.Discard(p); err != nil {
			log.Printf("Warning: could not remove qr image %s: %v", p, err)
		}
	}
}
