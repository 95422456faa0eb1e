// Package container wires the approval service's components and owns their
// lifecycle: ordered start, reverse-order close.
package container

import (
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/contract-approval/internal/domain/entity"
)

// Config holds all configuration for the Container
type Config struct {
	Database      DatabaseConfig
	Lock          LockConfig
	Lark          LarkConfig
	Storage       StorageConfig
	Notifications NotificationsConfig

	// Directory users upserted at start
	SeedUsers []*entity.User
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// LockConfig selects the instance lock implementation
type LockConfig struct {
	Driver        string // memory or redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
	TTL           time.Duration
	WaitTimeout   time.Duration
	RetryBackoff  time.Duration
}

// LarkConfig holds Lark API settings
type LarkConfig struct {
	Enabled   bool
	AppID     string
	AppSecret string
	BaseURL   string
	LogLevel  string
}

// StorageConfig holds export archive settings
type StorageConfig struct {
	BaseDir         string
	ExportRetention time.Duration
	CleanupInterval time.Duration
}

// NotificationsConfig holds retry worker settings
type NotificationsConfig struct {
	RetryInterval time.Duration
	MaxAttempts   int
	BatchSize     int
}

// Validate checks the settings the container cannot start without
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	switch c.Lock.Driver {
	case "", "memory":
	case "redis":
		if c.Lock.RedisAddr == "" {
			return errors.New("redis address is required for the redis lock")
		}
	default:
		return fmt.Errorf("unknown lock driver %q", c.Lock.Driver)
	}
	if c.Lark.Enabled && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		return errors.New("lark credentials are required when lark is enabled")
	}
	return nil
}
