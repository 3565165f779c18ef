package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"equipment-hours-backend/internal/db"
	"equipment-hours-backend/internal/model"
	"equipment-hours-backend/internal/qrcode"
)

// fakeIssuer records issued images in memory.
type fakeIssuer struct {
	mu      sync.Mutex
	files   map[string]bool
	issued  int
	failing bool
}

func newFakeIssuer() *fakeIssuer {
	return &fakeIssuer{files: make(map[string]bool)}
}

func (f *fakeIssuer) Issue(unitID int64, code string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return "", fmt.Errorf("disk full")
	}
	name := qrcode.FileName(unitID, code)
	f.files[name] = true
	f.issued++
	return name, nil
}

func (f *fakeIssuer) Exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[path]
}

func (f *fakeIssuer) Discard(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	return nil
}

func newSQLiteStore(t *testing.T, qr QRIssuer) (Store, *gorm.DB) {
	t.Helper()
	dsn := db.SQLiteDSN(filepath.Join(t.TempDir(), "store.db"))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return NewGormStore(gormDB, qr), gormDB
}

// seedDevice creates a department, a device and one unit per code.
func seedDevice(t *testing.T, s Store, codes ...string) (*model.Device, []*model.DeviceUnit) {
	t.Helper()
	ctx := context.Background()

	dept, err := s.CreateDepartment(ctx, "Máy chính")
	require.NoError(t, err)

	device := &model.Device{DepartmentID: dept.ID, Name: "Main engine"}
	require.NoError(t, s.CreateDevice(ctx, device))

	units := make([]*model.DeviceUnit, 0, len(codes))
	for _, code := range codes {
		u := &model.DeviceUnit{DeviceID: device.ID, Name: "Unit " + code, QRCode: code}
		require.NoError(t, s.CreateUnit(ctx, u))
		units = append(units, u)
	}
	return device, units
}

func hours(v float64) *float64 { return &v }

func TestGormStore_CreateUnit(t *testing.T) {
	qr := newFakeIssuer()
	s, _ := newSQLiteStore(t, qr)
	ctx := context.Background()

	device, units := seedDevice(t, s, "ME-01")
	u := units[0]

	require.NotNil(t, u.QRImage)
	assert.Equal(t, "unit_1_ME-01.png", *u.QRImage)
	assert.Equal(t, model.StatusNormal, u.Status)
	assert.Equal(t, model.DefaultMaintenanceThreshold, u.MaintenanceThreshold)
	assert.Equal(t, 1, qr.issued)

	t.Run("duplicate code is a conflict", func(t *testing.T) {
		err := s.CreateUnit(ctx, &model.DeviceUnit{DeviceID: device.ID, Name: "dup", QRCode: "ME-01"})
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, 1, qr.issued)
	})

	t.Run("blank code is rejected", func(t *testing.T) {
		err := s.CreateUnit(ctx, &model.DeviceUnit{DeviceID: device.ID, Name: "blank", QRCode: "  "})
		assert.ErrorIs(t, err, qrcode.ErrInvalidIdentity)
	})

	t.Run("unknown device", func(t *testing.T) {
		err := s.CreateUnit(ctx, &model.DeviceUnit{DeviceID: 999, Name: "orphan", QRCode: "X-1"})
		assert.ErrorIs(t, err, ErrNotFound)
		var missing *MissingError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "device", missing.Entity)
	})

	t.Run("unknown location", func(t *testing.T) {
		loc := int64(999)
		err := s.CreateUnit(ctx, &model.DeviceUnit{DeviceID: device.ID, LocationID: &loc, Name: "lost", QRCode: "X-2"})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.EqualError(t, err, "location not found")
	})

	t.Run("failed image rolls back the unit", func(t *testing.T) {
		qr.failing = true
		defer func() { qr.failing = false }()

		err := s.CreateUnit(ctx, &model.DeviceUnit{DeviceID: device.ID, Name: "broken", QRCode: "ME-02"})
		require.Error(t, err)

		_, err = s.UnitByQRCode(ctx, "ME-02")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGormStore_EnsureQRImage(t *testing.T) {
	qr := newFakeIssuer()
	s, gormDB := newSQLiteStore(t, qr)
	ctx := context.Background()

	_, units := seedDevice(t, s, "GEN-7")
	u := units[0]

	created, err := s.EnsureQRImage(ctx, u)
	require.NoError(t, err)
	assert.False(t, created, "an existing image must not be regenerated")
	assert.Equal(t, 1, qr.issued)

	// Lose the stored path, as an import without images would.
	require.NoError(t, gormDB.Model(&model.DeviceUnit{}).Where("id = ?", u.ID).Update("qr_image", nil).Error)
	u, err = s.UnitByQRCode(ctx, "GEN-7")
	require.NoError(t, err)
	assert.Nil(t, u.QRImage)

	created, err = s.EnsureQRImage(ctx, u)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, u.QRImage)

	reloaded, err := s.UnitByQRCode(ctx, "GEN-7")
	require.NoError(t, err)
	assert.Equal(t, u.QRImage, reloaded.QRImage)

	created, err = s.EnsureQRImage(ctx, reloaded)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 2, qr.issued)

	require.NoError(t, s.RegenerateQRImage(ctx, reloaded))
	assert.Equal(t, 3, qr.issued)
	assert.True(t, qr.Exists(*reloaded.QRImage))
}

func TestGormStore_RegenerateQRImage(t *testing.T) {
	qr := newFakeIssuer()
	s, gormDB := newSQLiteStore(t, qr)
	ctx := context.Background()

	_, units := seedDevice(t, s, "GEN-8")
	u := units[0]
	current := *u.QRImage

	t.Run("failed render keeps the old image", func(t *testing.T) {
		qr.failing = true
		defer func() { qr.failing = false }()

		err := s.RegenerateQRImage(ctx, u)
		assert.Error(t, err)
		assert.True(t, qr.Exists(current))

		reloaded, err := s.UnitByQRCode(ctx, "GEN-8")
		require.NoError(t, err)
		require.NotNil(t, reloaded.QRImage)
		assert.Equal(t, current, *reloaded.QRImage)
	})

	t.Run("same path is replaced in place", func(t *testing.T) {
		require.NoError(t, s.RegenerateQRImage(ctx, u))
		assert.Equal(t, current, *u.QRImage)
		assert.True(t, qr.Exists(current))
	})

	t.Run("legacy path is removed after the new one is stored", func(t *testing.T) {
		legacy := "legacy_GEN-8.png"
		qr.files[legacy] = true
		require.NoError(t, gormDB.Model(&model.DeviceUnit{}).Where("id = ?", u.ID).Update("qr_image", legacy).Error)
		u.QRImage = &legacy

		require.NoError(t, s.RegenerateQRImage(ctx, u))
		assert.Equal(t, current, *u.QRImage)
		assert.True(t, qr.Exists(current))
		assert.False(t, qr.Exists(legacy))
	})
}

func TestGormStore_UnitByQRCode(t *testing.T) {
	s, _ := newSQLiteStore(t, newFakeIssuer())
	ctx := context.Background()

	device, _ := seedDevice(t, s, "PUMP-1")

	u, err := s.UnitByQRCode(ctx, "PUMP-1")
	require.NoError(t, err)
	assert.Equal(t, device.ID, u.Device.ID)
	assert.Equal(t, "Main engine", u.Device.Name)
	assert.Equal(t, "Máy chính", u.Device.Department.Name)

	_, err = s.UnitByQRCode(ctx, "DOES-NOT-EXIST")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UnitByQRCode(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_ApplyOperation(t *testing.T) {
	s, _ := newSQLiteStore(t, nil)
	ctx := context.Background()

	device, units := seedDevice(t, s, "A", "B")
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	entry := &model.OperationLog{
		DeviceID:     device.ID,
		DeviceUnitID: &units[0].ID,
		OperatorName: "Nguyen",
		StartTime:    start,
		EndTime:      start.Add(2 * time.Hour),
		Duration:     hours(2),
		DeviceStatus: model.StatusMaintenance,
	}
	require.NoError(t, s.ApplyOperation(ctx, entry))
	assert.NotZero(t, entry.ID)

	got, err := s.GetDevice(ctx, device.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got.TotalSystemHours, 1e-9)
	require.Len(t, got.Units, 2)
	for _, u := range got.Units {
		assert.InDelta(t, 2.0, u.CurrentHours, 1e-9)
		assert.Equal(t, model.StatusMaintenance, u.Status)
	}

	t.Run("unknown device rolls back", func(t *testing.T) {
		err := s.ApplyOperation(ctx, &model.OperationLog{
			DeviceID:     999,
			OperatorName: "Nguyen",
			StartTime:    start,
			EndTime:      start.Add(time.Hour),
			Duration:     hours(1),
			DeviceStatus: model.StatusNormal,
		})
		assert.ErrorIs(t, err, ErrNotFound)

		logs, err := s.ListLogs(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})
}

func TestGormStore_ConcurrentApplyOperation(t *testing.T) {
	s, _ := newSQLiteStore(t, nil)
	ctx := context.Background()

	device, _ := seedDevice(t, s, "C-1")
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.ApplyOperation(ctx, &model.OperationLog{
				DeviceID:     device.ID,
				OperatorName: "crew",
				StartTime:    start,
				EndTime:      start.Add(30 * time.Minute),
				Duration:     hours(0.5),
				DeviceStatus: model.StatusNormal,
			}))
		}()
	}
	wg.Wait()

	got, err := s.GetDevice(ctx, device.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, got.TotalSystemHours, 1e-9)
	assert.InDelta(t, 2.5, got.Units[0].CurrentHours, 1e-9)
}

func TestGormStore_ListLogsOrder(t *testing.T) {
	s, _ := newSQLiteStore(t, nil)
	ctx := context.Background()

	device, _ := seedDevice(t, s, "L-1")
	t1 := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	t3 := t2.Add(24 * time.Hour)

	// Inserted out of order on purpose.
	for _, start := range []time.Time{t2, t3, t1} {
		require.NoError(t, s.ApplyOperation(ctx, &model.OperationLog{
			DeviceID:     device.ID,
			OperatorName: "crew",
			StartTime:    start,
			EndTime:      start.Add(time.Hour),
			Duration:     hours(1),
			DeviceStatus: model.StatusNormal,
		}))
	}

	logs, err := s.ListLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.True(t, logs[0].StartTime.Equal(t3))
	assert.True(t, logs[1].StartTime.Equal(t2))
	assert.True(t, logs[2].StartTime.Equal(t1))
	require.NotNil(t, logs[0].Device)
	assert.Equal(t, "Main engine", logs[0].Device.Name)

	limited, err := s.ListLogsForDevice(ctx, device.ID, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.True(t, limited[0].StartTime.Equal(t3))

	none, err := s.ListLogsForDevice(ctx, device.ID+1, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormStore_CountUnitsByStatus(t *testing.T) {
	s, gormDB := newSQLiteStore(t, nil)
	ctx := context.Background()

	_, units := seedDevice(t, s, "S-1", "S-2", "S-3")
	require.NoError(t, gormDB.Model(&model.DeviceUnit{}).Where("id = ?", units[2].ID).Update("status", model.StatusError).Error)

	counts, err := s.CountUnitsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCounts{
		model.StatusNormal:      2,
		model.StatusMaintenance: 0,
		model.StatusError:       1,
	}, counts)

	broken, err := s.ListUnits(ctx, model.StatusError)
	require.NoError(t, err)
	require.Len(t, broken, 1)
	assert.Equal(t, "S-3", broken[0].QRCode)

	all, err := s.ListUnits(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGormStore_DeleteCascades(t *testing.T) {
	qr := newFakeIssuer()
	s, gormDB := newSQLiteStore(t, qr)
	ctx := context.Background()

	device, units := seedDevice(t, s, "D-1", "D-2")
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.ApplyOperation(ctx, &model.OperationLog{
		DeviceID:     device.ID,
		DeviceUnitID: &units[0].ID,
		OperatorName: "crew",
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		Duration:     hours(1),
		DeviceStatus: model.StatusNormal,
	}))
	require.NoError(t, s.UpsertSubscription(ctx, &model.PushSubscription{Endpoint: "https://push/1", P256DH: "k", Auth: "a"}, []int64{device.ID}))

	t.Run("device", func(t *testing.T) {
		require.NoError(t, s.DeleteDevice(ctx, device.ID))

		var count int64
		require.NoError(t, gormDB.Model(&model.DeviceUnit{}).Count(&count).Error)
		assert.Zero(t, count)
		require.NoError(t, gormDB.Model(&model.OperationLog{}).Count(&count).Error)
		assert.Zero(t, count)
		assert.Empty(t, qr.files, "images of deleted units are removed")

		sub, err := s.GetSubscription(ctx, "https://push/1")
		require.NoError(t, err)
		assert.Empty(t, sub.Devices)

		assert.ErrorIs(t, s.DeleteDevice(ctx, device.ID), ErrNotFound)
	})

	t.Run("department", func(t *testing.T) {
		other, _ := seedDevice(t, s, "D-3")
		require.NoError(t, s.DeleteDepartment(ctx, other.DepartmentID))

		_, err := s.GetDevice(ctx, other.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.UnitByQRCode(ctx, "D-3")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, s.DeleteDepartment(ctx, other.DepartmentID), ErrNotFound)
	})
}

func TestGormStore_DeleteLocationKeepsUnits(t *testing.T) {
	s, _ := newSQLiteStore(t, nil)
	ctx := context.Background()

	device, _ := seedDevice(t, s)
	loc, err := s.CreateLocation(ctx, "Buồng máy")
	require.NoError(t, err)

	u := &model.DeviceUnit{DeviceID: device.ID, Name: "Pump", QRCode: "LOC-1", LocationID: &loc.ID}
	require.NoError(t, s.CreateUnit(ctx, u))

	require.NoError(t, s.DeleteLocation(ctx, loc.ID))

	got, err := s.UnitByQRCode(ctx, "LOC-1")
	require.NoError(t, err)
	assert.Nil(t, got.LocationID)
	assert.Nil(t, got.Location)

	assert.ErrorIs(t, s.DeleteLocation(ctx, loc.ID), ErrNotFound)

	locs, err := s.ListLocations(ctx)
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func TestGormStore_Subscriptions(t *testing.T) {
	s, _ := newSQLiteStore(t, nil)
	ctx := context.Background()

	first, _ := seedDevice(t, s)
	second := &model.Device{DepartmentID: first.DepartmentID, Name: "Generator"}
	require.NoError(t, s.CreateDevice(ctx, second))

	sub := &model.PushSubscription{Endpoint: "https://push/abc", P256DH: "key", Auth: "auth"}
	require.NoError(t, s.UpsertSubscription(ctx, sub, []int64{first.ID, second.ID, 404}))

	got, err := s.GetSubscription(ctx, "https://push/abc")
	require.NoError(t, err)
	assert.Len(t, got.Devices, 2)

	subs, err := s.SubscriptionsForDevice(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "key", subs[0].P256DH)

	// Replacing narrows the followed set and refreshes the keys.
	sub = &model.PushSubscription{Endpoint: "https://push/abc", P256DH: "key2", Auth: "auth2"}
	require.NoError(t, s.UpsertSubscription(ctx, sub, []int64{first.ID}))

	subs, err = s.SubscriptionsForDevice(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)

	subs, err = s.SubscriptionsForDevice(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "key2", subs[0].P256DH)

	require.NoError(t, s.DeleteSubscription(ctx, "https://push/abc"))
	_, err = s.GetSubscription(ctx, "https://push/abc")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteSubscription(ctx, "https://push/abc"), ErrNotFound)
}
