package model

import "time"

// Device is a parent piece of equipment composed of one or more units.
type Device struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	DepartmentID     int64     `gorm:"index;not null" json:"department_id"`
	Name             string    `gorm:"size:200;not null" json:"name"`
	Description      string    `gorm:"type:text" json:"description"`
	TotalSystemHours float64   `gorm:"not null;default:0" json:"total_system_hours"`
	CreatedAt        time.Time `json:"-"`
	UpdatedAt        time.Time `json:"-"`

	// Associations
	Department Department   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Units      []DeviceUnit `gorm:"foreignKey:DeviceID" json:"units,omitempty"`
}
