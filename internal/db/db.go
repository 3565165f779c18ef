package db

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"equipment-hours-backend/config"
	"equipment-hours-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.EnableConstraints && cfg.Driver == "postgres" {
		log.Println("Applying PostgreSQL-specific constraints and indexes...")
		if err := applyPostgresDDL(db); err != nil {
			log.Printf("Warning: failed to apply some PostgreSQL DDL: %v. Continuing without them.", err)
		}
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Department{},
		&model.Location{},
		&model.Device{},
		&model.DeviceUnit{},
		&model.OperationLog{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		return postgres.Open(cfg.DSN), nil
	case "sqlite":
		return sqlite.Open(SQLiteDSN(cfg.DSN)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// SQLiteDSN turns on foreign key enforcement so cascade and set-null rules
// hold on every pooled connection.
func SQLiteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

func applyPostgresDDL(db *gorm.DB) error {
	ddls := []string{
		// Aggregates never go negative.
		"ALTER TABLE devices DROP CONSTRAINT IF EXISTS devices_hours_non_negative;",
		"ALTER TABLE devices ADD CONSTRAINT devices_hours_non_negative CHECK (total_system_hours >= 0);",
		"ALTER TABLE device_units DROP CONSTRAINT IF EXISTS device_units_hours_non_negative;",
		"ALTER TABLE device_units ADD CONSTRAINT device_units_hours_non_negative CHECK (current_hours >= 0);",
		"ALTER TABLE device_units DROP CONSTRAINT IF EXISTS device_units_status_valid;",
		"ALTER TABLE device_units ADD CONSTRAINT device_units_status_valid CHECK (status IN ('NORMAL', 'MAINTENANCE', 'ERROR'));",

		// A log always covers a positive interval.
		"ALTER TABLE operation_logs DROP CONSTRAINT IF EXISTS operation_logs_period_valid;",
		"ALTER TABLE operation_logs ADD CONSTRAINT operation_logs_period_valid CHECK (start_time < end_time);",

		// Listings are always newest-first.
		"CREATE INDEX IF NOT EXISTS idx_operation_logs_start_time_desc ON operation_logs (start_time DESC);",
		"CREATE INDEX IF NOT EXISTS idx_operation_logs_device_id_start_time ON operation_logs (device_id, start_time DESC);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
