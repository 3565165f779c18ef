package model

import "time"

// UnitStatus is the operational state of a unit as last reported by an operator.
type UnitStatus string

const (
	StatusNormal      UnitStatus = "NORMAL"
	StatusMaintenance UnitStatus = "MAINTENANCE"
	StatusError       UnitStatus = "ERROR"
)

// DefaultMaintenanceThreshold is the running-hours budget of a new unit.
const DefaultMaintenanceThreshold = 500.0

var statusLabels = map[UnitStatus]string{
	StatusNormal:      "Hoạt động bình thường (C1)",
	StatusMaintenance: "Cần bảo dưỡng (C2)",
	StatusError:       "Hỏng hóc/Sự cố",
}

// Statuses lists every known status in display order.
func Statuses() []UnitStatus {
	return []UnitStatus{StatusNormal, StatusMaintenance, StatusError}
}

// Valid reports whether s is one of the known statuses.
func (s UnitStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the display label shown to operators.
func (s UnitStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// DeviceUnit is an individually QR-tagged sub-component of a Device.
type DeviceUnit struct {
	ID                   int64      `gorm:"primaryKey" json:"id"`
	DeviceID             int64      `gorm:"index;not null" json:"device_id"`
	LocationID           *int64     `gorm:"index" json:"location_id"`
	Name                 string     `gorm:"size:200;not null" json:"name"`
	QRCode               string     `gorm:"column:qr_code;size:50;uniqueIndex;not null" json:"qr_code"`
	QRImage              *string    `gorm:"column:qr_image;size:255" json:"qr_image"`
	CurrentHours         float64    `gorm:"not null;default:0" json:"current_hours"`
	MaintenanceThreshold float64    `gorm:"not null;default:500" json:"maintenance_threshold"`
	Status               UnitStatus `gorm:"size:20;not null;default:NORMAL;index" json:"status"`
	CreatedAt            time.Time  `json:"-"`
	UpdatedAt            time.Time  `json:"-"`

	// Associations
	Device   Device    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Location *Location `gorm:"constraint:OnDelete:SET NULL" json:"location,omitempty"`
}

// DueForMaintenance reports whether the unit has used up its hours budget.
func (u DeviceUnit) DueForMaintenance() bool {
	return u.MaintenanceThreshold > 0 && u.CurrentHours >= u.MaintenanceThreshold
}

// NeedsAttention reports whether operators should be alerted about the unit.
func (u DeviceUnit) NeedsAttention() bool {
	return u.DueForMaintenance() || u.Status == StatusError || u.Status == StatusMaintenance
}
