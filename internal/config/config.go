package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/garyjia/contract-approval/internal/domain/entity"
	"github.com/garyjia/contract-approval/pkg/utils"
)

// Lock drivers
const (
	LockDriverMemory = "memory"
	LockDriverRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Lock          LockConfig          `mapstructure:"lock"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Lark          LarkConfig          `mapstructure:"lark"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Directory     DirectoryConfig     `mapstructure:"directory"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LockConfig selects and tunes the instance lock
type LockConfig struct {
	Driver       string        `mapstructure:"driver"`
	TTL          time.Duration `mapstructure:"ttl"`
	WaitTimeout  time.Duration `mapstructure:"wait_timeout"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Prefix       string        `mapstructure:"prefix"`
}

// RedisConfig holds the Redis connection used by the redis lock driver
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LarkConfig holds Lark API configuration. With Enabled false notifications
// only land in the in-app inbox.
type LarkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
	LogLevel  string `mapstructure:"log_level"`
}

// NotificationsConfig tunes the failed-notification retry worker
type NotificationsConfig struct {
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BatchSize     int           `mapstructure:"batch_size"`
}

// StorageConfig holds where stats exports are archived and for how long
type StorageConfig struct {
	BaseDir         string        `mapstructure:"base_dir"`
	ExportRetention time.Duration `mapstructure:"export_retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// DirectoryConfig seeds the user directory at startup
type DirectoryConfig struct {
	Users []DirectoryUser `mapstructure:"users"`
}

// DirectoryUser is one seeded directory entry
type DirectoryUser struct {
	ID         int64  `mapstructure:"id"`
	Name       string `mapstructure:"name"`
	Email      string `mapstructure:"email"`
	LarkOpenID string `mapstructure:"lark_open_id"`
	Role       string `mapstructure:"role"`
}

// Load loads configuration from file and environment variables. An empty
// path loads defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.path", "data/approval.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("auth.issuer", "contract-approval")

	v.SetDefault("lock.driver", LockDriverMemory)
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.wait_timeout", 10*time.Second)
	v.SetDefault("lock.retry_backoff", 25*time.Millisecond)
	v.SetDefault("lock.prefix", "approval:lock:")

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.log_level", "info")

	v.SetDefault("notifications.retry_interval", time.Minute)
	v.SetDefault("notifications.max_attempts", 5)
	v.SetDefault("notifications.batch_size", 50)

	v.SetDefault("storage.base_dir", "data/files")
	v.SetDefault("storage.export_retention", 7*24*time.Hour)
	v.SetDefault("storage.cleanup_interval", time.Hour)
}

// bindEnvVars binds secrets and deployment-specific settings to environment variables
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("server.port", "APPROVAL_PORT")
	_ = v.BindEnv("database.path", "APPROVAL_DB_PATH")
	_ = v.BindEnv("logger.level", "APPROVAL_LOG_LEVEL")
	_ = v.BindEnv("auth.jwt_secret", "APPROVAL_JWT_SECRET")
	_ = v.BindEnv("lock.driver", "APPROVAL_LOCK_DRIVER")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("lark.enabled", "LARK_ENABLED")
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}

	switch c.Lock.Driver {
	case LockDriverMemory:
	case LockDriverRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis lock driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("lock.driver must be %q or %q, got %q", LockDriverMemory, LockDriverRedis, c.Lock.Driver))
	}

	if c.Lark.Enabled && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		errs = append(errs, errors.New("lark.app_id and lark.app_secret are required when lark is enabled"))
	}

	if c.Notifications.MaxAttempts < 1 {
		errs = append(errs, errors.New("notifications.max_attempts must be at least 1"))
	}

	seen := make(map[int64]bool, len(c.Directory.Users))
	for i, u := range c.Directory.Users {
		switch {
		case u.ID <= 0:
			errs = append(errs, fmt.Errorf("directory.users[%d]: id must be positive", i))
		case seen[u.ID]:
			errs = append(errs, fmt.Errorf("directory.users[%d]: duplicate id %d", i, u.ID))
		}
		seen[u.ID] = true
		if !entity.IsValidRole(strings.ToUpper(u.Role)) {
			errs = append(errs, fmt.Errorf("directory.users[%d]: unknown role %q", i, u.Role))
		}
		if u.Email != "" {
			if err := utils.ValidateEmail(u.Email); err != nil {
				errs = append(errs, fmt.Errorf("directory.users[%d]: %w", i, err))
			}
		}
	}

	return errors.Join(errs...)
}

// SeedUsers converts the configured directory into entities
func (c *Config) SeedUsers() []*entity.User {
	users := make([]*entity.User, 0, len(c.Directory.Users))
	for _, u := range c.Directory.Users {
		users = append(users, &entity.User{
			ID:         u.ID,
			Name:       u.Name,
			Email:      u.Email,
			LarkOpenID: u.LarkOpenID,
			Role:       strings.ToUpper(u.Role),
		})
	}
	return users
}
