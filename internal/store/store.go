package store

import (
	"context"

	"gorm.io/gorm"

	"equipment-hours-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	CreateDepartment(ctx context.Context, name string) (*model.Department, error)
	ListDepartments(ctx context.Context) ([]model.Department, error)
	DeleteDepartment(ctx context.Context, id int64) error

	CreateLocation(ctx context.Context, name string) (*model.Location, error)
	ListLocations(ctx context.Context) ([]model.Location, error)
	DeleteLocation(ctx context.Context, id int64) error

	CreateDevice(ctx context.Context, device *model.Device) error
	GetDevice(ctx context.Context, id int64) (*model.Device, error)
	ListDevices(ctx context.Context) ([]model.Device, error)
	DeleteDevice(ctx context.Context, id int64) error

	CreateUnit(ctx context.Context, unit *model.DeviceUnit) error
	UnitByQRCode(ctx context.Context, code string) (*model.DeviceUnit, error)
	ListUnits(ctx context.Context, status model.UnitStatus) ([]model.DeviceUnit, error)
	CountUnitsByStatus(ctx context.Context) (StatusCounts, error)
	EnsureQRImage(ctx context.Context, unit *model.DeviceUnit) (bool, error)
	RegenerateQRImage(ctx context.Context, unit *model.DeviceUnit) error

	ApplyOperation(ctx context.Context, entry *model.OperationLog) error
	ListLogs(ctx context.Context, limit int) ([]model.OperationLog, error)
	ListLogsForDevice(ctx context.Context, deviceID int64, limit int) ([]model.OperationLog, error)

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription, deviceIDs []int64) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForDevice(ctx context.Context, deviceID int64) ([]model.PushSubscription, error)

	DB() *gorm.DB
}

// QRIssuer produces the QR artifact of a unit and manages its lifetime.
type QRIssuer interface {
	Issue(unitID int64, code string) (string, error)
	Exists(path string) bool
	Discard(path string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
	qr QRIssuer
}

// NewGormStore creates a new GORM-backed store. qr may be nil, in which
// case units are created without an image.
func NewGormStore(db *gorm.DB, qr QRIssuer) Store {
	return &gormStore{db: db, qr: qr}
}

// DB exposes the underlying connection for health checks.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}
