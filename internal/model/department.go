package model

import "time"

// Department is a top-level classification of equipment (engine, electrical, ...).
type Department struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	CreatedAt time.Time `gorm:"not null" json:"-"`
	UpdatedAt time.Time `gorm:"not null" json:"-"`

	// Associations
	Devices []Device `gorm:"foreignKey:DepartmentID" json:"devices,omitempty"`
}
