package config

import "github.com/garyjia/contract-approval/internal/container"

// ToContainerConfig converts the file-based configuration into the
// container's configuration structure
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Lock: container.LockConfig{
			Driver:        c.Lock.Driver,
			RedisAddr:     c.Redis.Addr,
			RedisPassword: c.Redis.Password,
			RedisDB:       c.Redis.DB,
			Prefix:        c.Lock.Prefix,
			TTL:           c.Lock.TTL,
			WaitTimeout:   c.Lock.WaitTimeout,
			RetryBackoff:  c.Lock.RetryBackoff,
		},
		Lark: container.LarkConfig{
			Enabled:   c.Lark.Enabled,
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
			BaseURL:   c.Lark.BaseURL,
			LogLevel:  c.Lark.LogLevel,
		},
		Storage: container.StorageConfig{
			BaseDir:         c.Storage.BaseDir,
			ExportRetention: c.Storage.ExportRetention,
			CleanupInterval: c.Storage.CleanupInterval,
		},
		Notifications: container.NotificationsConfig{
			RetryInterval: c.Notifications.RetryInterval,
			MaxAttempts:   c.Notifications.MaxAttempts,
			BatchSize:     c.Notifications.BatchSize,
		},
		SeedUsers: c.SeedUsers(),
	}
}
