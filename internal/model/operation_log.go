package model

import "time"

// OperationLog is one reported run of a device. Duration is derived from the
// start/end pair and the log is never edited once its hours are applied.
type OperationLog struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	DeviceID     int64      `gorm:"index;not null" json:"device_id"`
	DeviceUnitID *int64     `gorm:"index" json:"device_unit_id"`
	OperatorName string     `gorm:"size:50;not null" json:"operator_name"`
	StartTime    time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime      time.Time  `gorm:"not null" json:"end_time"`
	Duration     *float64   `json:"duration"`
	DeviceStatus UnitStatus `gorm:"size:20;not null;default:NORMAL" json:"device_status"`
	Notes        string     `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time  `json:"created_at"`

	// Associations
	Device     *Device     `gorm:"constraint:OnDelete:CASCADE" json:"device,omitempty"`
	DeviceUnit *DeviceUnit `gorm:"constraint:OnDelete:SET NULL" json:"device_unit,omitempty"`
}
