// Package accounting turns operator reports into operation logs and keeps
// device and unit hour totals in step with them.
package accounting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"equipment-hours-backend/config"
	"equipment-hours-backend/internal/model"
	"equipment-hours-backend/internal/notification"
	"equipment-hours-backend/internal/parse"
	"equipment-hours-backend/internal/store"
)

// maxOperatorName matches the operator_name column size.
const maxOperatorName = 50

// Notifier receives units that need attention after a report was applied.
type Notifier interface {
	Dispatch(alert notification.Alert)
}

// Submission is a raw operator report. Exactly one of QRCode or DeviceID
// identifies the target; UnitID optionally narrows it to the reporting unit.
type Submission struct {
	QRCode       string
	DeviceID     int64
	UnitID       *int64
	OperatorName string
	StartTime    string
	EndTime      string
	Status       string
	Notes        string
}

// Result describes an applied submission.
type Result struct {
	Log         *model.OperationLog
	Device      *model.Device
	Units       []model.DeviceUnit
	StatusLabel string
}

// Service applies operator reports.
type Service struct {
	store    store.Store
	loc      *time.Location
	notifier Notifier
}

// NewService creates an accounting service. notifier may be nil.
func NewService(cfg *config.Config, s store.Store, notifier Notifier) *Service {
	loc := cfg.Server.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:    s,
		loc:      loc,
		notifier: notifier,
	}
}

// Duration returns the length of [start, end] in hours rounded to two
// decimals, halves away from zero.
func Duration(start, end time.Time) float64 {
	return math.Round(end.Sub(start).Hours()*100) / 100
}

// RecordOperation validates a report, then stores it and adds its duration to
// the device and to every unit of the device in one transaction.
//
// Unknown targets yield store.ErrNotFound, rejected reports a *ValidationError
// and storage failures an error wrapping ErrPersistence.
func (s *Service) RecordOperation(ctx context.Context, sub Submission) (*Result, error) {
	deviceID, unitID, err := s.resolveTarget(ctx, sub)
	if err != nil {
		return nil, err
	}

	entry, err := s.validate(sub)
	if err != nil {
		return nil, err
	}
	entry.DeviceID = deviceID
	entry.DeviceUnitID = unitID

	if err := s.store.ApplyOperation(ctx, entry); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		persistenceFailuresTotal.Inc()
		log.Printf("Error applying operation log for device %d: %v", deviceID, err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	operationsRecordedTotal.Inc()
	if entry.Duration != nil {
		hoursAppliedTotal.Add(*entry.Duration)
	}

	result := &Result{Log: entry, StatusLabel: entry.DeviceStatus.Label()}

	device, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		log.Printf("Warning: operation log %d saved but device %d could not be reloaded: %v", entry.ID, deviceID, err)
		return result, nil
	}
	result.Device = device
	result.Units = device.Units

	s.notify(device)
	return result, nil
}

func (s *Service) resolveTarget(ctx context.Context, sub Submission) (int64, *int64, error) {
	if code := strings.TrimSpace(sub.QRCode); code != "" {
		unit, err := s.store.UnitByQRCode(ctx, code)
		if err != nil {
			return 0, nil, err
		}
		return unit.DeviceID, &unit.ID, nil
	}

	if sub.DeviceID <= 0 {
		return 0, nil, reject(ReasonNoTarget)
	}
	device, err := s.store.GetDevice(ctx, sub.DeviceID)
	if err != nil {
		return 0, nil, err
	}
	if sub.UnitID == nil {
		return device.ID, nil, nil
	}
	for _, u := range device.Units {
		if u.ID == *sub.UnitID {
			return device.ID, &u.ID, nil
		}
	}
	return 0, nil, reject(ReasonUnitMismatch)
}

// validate checks the report fields in a fixed order and builds the log
// entry without its target.
func (s *Service) validate(sub Submission) (*model.OperationLog, error) {
	operator := strings.TrimSpace(sub.OperatorName)
	rawStart := strings.TrimSpace(sub.StartTime)
	rawEnd := strings.TrimSpace(sub.EndTime)
	if operator == "" || rawStart == "" || rawEnd == "" {
		return nil, reject(ReasonMissingFields)
	}

	start, err := parse.Timestamp(rawStart, s.loc)
	if err != nil {
		return nil, reject(ReasonInvalidTimeFormat)
	}
	end, err := parse.Timestamp(rawEnd, s.loc)
	if err != nil {
		return nil, reject(ReasonInvalidTimeFormat)
	}

	if !end.After(start) {
		return nil, reject(ReasonEndBeforeStart)
	}

	status := model.UnitStatus(strings.ToUpper(strings.TrimSpace(sub.Status)))
	if status == "" {
		status = model.StatusNormal
	}
	if !status.Valid() {
		return nil, reject(ReasonInvalidStatus)
	}

	if utf8.RuneCountInString(operator) > maxOperatorName {
		return nil, reject(ReasonOperatorTooLong)
	}

	duration := Duration(start, end)
	return &model.OperationLog{
		OperatorName: operator,
		StartTime:    start,
		EndTime:      end,
		Duration:     &duration,
		DeviceStatus: status,
		Notes:        strings.TrimSpace(sub.Notes),
	}, nil
}

func (s *Service) notify(device *model.Device) {
	if s.notifier == nil {
		return
	}
	for _, u := range device.Units {
		if !u.NeedsAttention() {
			continue
		}
		s.notifier.Dispatch(notification.Alert{
			DeviceID:     device.ID,
			DeviceName:   device.Name,
			UnitID:       u.ID,
			UnitName:     u.Name,
			QRCode:       u.QRCode,
			Status:       u.Status,
			CurrentHours: u.CurrentHours,
			Threshold:    u.MaintenanceThreshold,
		})
	}
}
