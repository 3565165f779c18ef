package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"equipment-hours-backend/internal/model"
	"equipment-hours-backend/internal/qrcode"
)

// CreateUnit registers a unit under an existing device and, when an issuer
// is configured, renders its QR image in the same transaction. A failed
// image aborts the whole creation.
func (s *gormStore) CreateUnit(ctx context.Context, unit *model.DeviceUnit) error {
	unit.QRCode = strings.TrimSpace(unit.QRCode)
	if unit.QRCode == "" {
		return qrcode.ErrInvalidIdentity
	}
	unit.Name = strings.TrimSpace(unit.Name)
	if unit.Status == "" {
		unit.Status = model.StatusNormal
	}
	if unit.MaintenanceThreshold <= 0 {
		unit.MaintenanceThreshold = model.DefaultMaintenanceThreshold
	}

	var issued string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&model.Device{}, unit.DeviceID).Error; err != nil {
			return missing("device", err)
		}
		if unit.LocationID != nil {
			if err := tx.Select("id").First(&model.Location{}, *unit.LocationID).Error; err != nil {
				return missing("location", err)
			}
		}

		var taken int64
		if err := tx.Model(&model.DeviceUnit{}).Where("qr_code = ?", unit.QRCode).Count(&taken).Error; err != nil {
			return fmt.Errorf("failed to check qr code %q: %w", unit.QRCode, err)
		}
		if taken > 0 {
			return ErrConflict
		}

		if err := tx.Omit(clause.Associations).Create(unit).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return fmt.Errorf("failed to create unit %q: %w", unit.QRCode, err)
		}

		if s.qr == nil {
			return nil
		}
		path, err := s.qr.Issue(unit.ID, unit.QRCode)
		if err != nil {
			return fmt.Errorf("failed to issue qr image for unit %d: %w", unit.ID, err)
		}
		issued = path
		if err := tx.Model(unit).Update("qr_image", path).Error; err != nil {
			return fmt.Errorf("failed to store qr image of unit %d: %w", unit.ID, err)
		}
		unit.QRImage = &path
		return nil
	})
	if err != nil {
		if issued != "" {
			s.discardImages([]string{issued})
		}
		unit.QRImage = nil
		return err
	}
	return nil
}

// UnitByQRCode resolves a scanned code to its unit, with device and location.
func (s *gormStore) UnitByQRCode(ctx context.Context, code string) (*model.DeviceUnit, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNotFound
	}

	var unit model.DeviceUnit
	err := s.db.WithContext(ctx).
		Preload("Device").
		Preload("Device.Department").
		Preload("Location").
		Where("qr_code = ?", code).
		First(&unit).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &unit, nil
}

// ListUnits returns all units, optionally filtered by status.
func (s *gormStore) ListUnits(ctx context.Context, status model.UnitStatus) ([]model.DeviceUnit, error) {
	query := s.db.WithContext(ctx).Preload("Location").Order("device_id, id")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var units []model.DeviceUnit
	if err := query.Find(&units).Error; err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	return units, nil
}

// CountUnitsByStatus tallies units per status. Every known status is present
// in the result, with zero when no unit has it.
func (s *gormStore) CountUnitsByStatus(ctx context.Context) (StatusCounts, error) {
	var rows []struct {
		Status model.UnitStatus
		Total  int64
	}
	err := s.db.WithContext(ctx).
		Model(&model.DeviceUnit{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count units by status: %w", err)
	}

	counts := make(StatusCounts, len(model.Statuses()))
	for _, st := range model.Statuses() {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

// EnsureQRImage renders the unit's image if it has none or the file went
// missing. It reports whether a new image was written.
func (s *gormStore) EnsureQRImage(ctx context.Context, unit *model.DeviceUnit) (bool, error) {
	if s.qr == nil {
		return false, nil
	}
	if unit.QRImage != nil && *unit.QRImage != "" && s.qr.Exists(*unit.QRImage) {
		return false, nil
	}
	if err := s.issueImage(ctx, unit); err != nil {
		return false, err
	}
	return true, nil
}

// RegenerateQRImage replaces the unit's image with a freshly rendered one.
// The previous file is removed only once the new path is stored.
func (s *gormStore) RegenerateQRImage(ctx context.Context, unit *model.DeviceUnit) error {
	if s.qr == nil {
		return errors.New("qr images are not configured")
	}
	var previous string
	if unit.QRImage != nil {
		previous = *unit.QRImage
	}

	if err := s.issueImage(ctx, unit); err != nil {
		return err
	}
	if previous != "" && previous != *unit.QRImage {
		if err := s.qr.Discard(previous); err != nil {
			log.Printf("Warning: could not remove old qr image of unit %d: %v", unit.ID, err)
		}
	}
	return nil
}

func (s *gormStore) issueImage(ctx context.Context, unit *model.DeviceUnit) error {
	path, err := s.qr.Issue(unit.ID, unit.QRCode)
	if err != nil {
		return fmt.Errorf("failed to issue qr image for unit %d: %w", unit.ID, err)
	}

	res := s.db.WithContext(ctx).Model(&model.DeviceUnit{}).Where("id = ?", unit.ID).Update("qr_image", path)
	if res.Error != nil || res.RowsAffected == 0 {
		// The stored path is unchanged; drop the new file unless it is that path.
		if unit.QRImage == nil || *unit.QRImage != path {
			s.discardImages([]string{path})
		}
		if res.Error != nil {
			return fmt.Errorf("failed to store qr image of unit %d: %w", unit.ID, res.Error)
		}
		return ErrNotFound
	}
	unit.QRImage = &path
	return nil
}
