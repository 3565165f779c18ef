package config

import (
	"log"
	"os"
	"time"
	_ "time/tzdata" // timezone lookups on hosts without zoneinfo

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port             int     `yaml:"port"`
	RateLimitPerSec  float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst   int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds  int     `yaml:"cache_ttl_seconds"`
	FormRedirectBase string  `yaml:"form_redirect_base"`
	// Timezone is applied to submitted timestamps that carry no offset
	// (HTML datetime-local inputs).
	Timezone string `yaml:"timezone"`

	CacheTTL time.Duration  `yaml:"-"`
	Location *time.Location `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres | sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableConstraints      bool   `yaml:"enable_constraints"`
}

// StorageConfig holds where generated QR images are written and how many
// rendered images are kept in memory.
type StorageConfig struct {
	QRDir             string        `yaml:"qr_dir"`
	QRCacheSize       int           `yaml:"qr_cache_size"`
	QRCacheTTLSeconds int           `yaml:"qr_cache_ttl_seconds"`
	QRCacheTTL        time.Duration `yaml:"-"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, suitable for
// tests and local runs without a config file.
func Default() *Config {
	cfg := &Config{}
	// The only error source is the timezone, and "UTC" always loads.
	_ = cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() error {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	if cfg.Server.FormRedirectBase == "" {
		cfg.Server.FormRedirectBase = "/thiet-bi"
	}
	if cfg.Server.Timezone == "" {
		cfg.Server.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Server.Timezone)
	if err != nil {
		return err
	}
	cfg.Server.Location = loc

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Storage.QRDir == "" {
		cfg.Storage.QRDir = "./media/qr_codes/units"
	}
	if cfg.Storage.QRCacheSize <= 0 {
		cfg.Storage.QRCacheSize = 256
	}
	if cfg.Storage.QRCacheTTLSeconds <= 0 {
		cfg.Storage.QRCacheTTLSeconds = 3600
	}
	cfg.Storage.QRCacheTTL = time.Duration(cfg.Storage.QRCacheTTLSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	return nil
}
