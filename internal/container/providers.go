package container

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/contract-approval/internal/application/dispatcher"
	"github.com/garyjia/contract-approval/internal/application/port"
	"github.com/garyjia/contract-approval/internal/application/service"
	"github.com/garyjia/contract-approval/internal/application/workflow"
	"github.com/garyjia/contract-approval/internal/domain/entity"
	infraLark "github.com/garyjia/contract-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/contract-approval/internal/infrastructure/lock"
	"github.com/garyjia/contract-approval/internal/infrastructure/metrics"
	"github.com/garyjia/contract-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/contract-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/contract-approval/internal/infrastructure/storage"
	"github.com/garyjia/contract-approval/internal/infrastructure/worker"
	"github.com/garyjia/contract-approval/migrations"
	"github.com/garyjia/contract-approval/pkg/database"
)

// exportsDir is the storage folder stats workbooks are archived under
const exportsDir = "exports"

// DatabaseBundle holds database-related components
type DatabaseBundle struct {
	DB        *database.DB
	TxManager *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access
type RepositoryBundle struct {
	User         port.UserRepository
	Subject      port.SubjectRepository
	Template     port.TemplateRepository
	Stage        port.StageRepository
	History      port.HistoryRepository
	Notification port.NotificationRepository
	Stats        port.StatsRepository
}

// LockBundle holds the instance lock and, for the redis driver, its client
type LockBundle struct {
	Locker port.Locker
	Redis  *redis.Client
}

// LarkBundle holds the outbound Lark channels. Both are nil when Lark is disabled.
type LarkBundle struct {
	Messages port.MessageSender
	Mail     port.MailSender
}

// ServiceBundle groups all application services
type ServiceBundle struct {
	Assignment   service.AssignmentService
	Notification service.NotificationService
	Audit        service.AuditService
	Stats        service.StatsService
}

// ServiceDeps holds what ProvideServices needs
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Locker     port.Locker
	Lark       *LarkBundle
	Storage    port.FileStorage
	Dispatcher workflow.EffectDispatcher
	Metrics    port.Metrics
	Logger     *zap.Logger
}

// WorkerDeps holds what ProvideWorkers needs
type WorkerDeps struct {
	Notifications worker.NotificationRetrier
	Storage       worker.Pruner
	NotifyCfg     *NotificationsConfig
	StorageCfg    *StorageConfig
	Logger        *zap.Logger
}

// ProvideDatabase opens the database, applies the embedded migrations and
// wraps the connection in the context-carried transaction manager
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:        db,
		TxManager: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &RepositoryBundle{
		User:         repository.NewUserRepository(sqlDB, logger),
		Subject:      repository.NewSubjectRepository(sqlDB, logger),
		Template:     repository.NewTemplateRepository(sqlDB, logger),
		Stage:        repository.NewStageRepository(sqlDB, logger),
		History:      repository.NewHistoryRepository(sqlDB, logger),
		Notification: repository.NewNotificationRepository(sqlDB, logger),
		Stats:        repository.NewStatsRepository(sqlDB, logger),
	}, nil
}

// ProvideLocker builds the instance lock selected by cfg.Driver
func ProvideLocker(ctx context.Context, cfg *LockConfig, logger *zap.Logger) (*LockBundle, error) {
	if cfg.Driver != "redis" {
		logger.Info("Using in-process instance lock")
		return &LockBundle{Locker: lock.NewKeyedMutex()}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("Using redis instance lock", zap.String("addr", cfg.RedisAddr))
	return &LockBundle{
		Locker: lock.NewRedisLocker(client, lock.RedisConfig{
			Prefix:       cfg.Prefix,
			TTL:          cfg.TTL,
			WaitTimeout:  cfg.WaitTimeout,
			RetryBackoff: cfg.RetryBackoff,
		}, logger.Named("lock")),
		Redis: client,
	}, nil
}

// ProvideLark creates the Lark IM and mail channels, or an empty bundle when disabled
func ProvideLark(cfg *LarkConfig, logger *zap.Logger) *LarkBundle {
	if !cfg.Enabled {
		logger.Info("Lark disabled, notifications stay in the in-app inbox")
		return &LarkBundle{}
	}

	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
		LogLevel:  cfg.LogLevel,
	}, logger)
	messenger := infraLark.NewMessenger(infraLark.NewMessageAPI(client, logger), logger)

	logger.Info("Lark channels enabled", zap.String("app_id", client.GetAppID()))
	return &LarkBundle{Messages: messenger, Mail: messenger}
}

// ProvideStorage creates the export archive
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (*storage.LocalStorage, error) {
	return storage.NewLocalStorage(cfg.BaseDir, logger)
}

// ProvideMetrics registers the service instruments on reg
func ProvideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.InitMetrics(reg)
}

// ProvideServices creates all application services
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps.Repos == nil || deps.TxManager == nil || deps.Locker == nil {
		return nil, fmt.Errorf("repositories, transaction manager and locker are required")
	}

	logger := newLoggerAdapter(deps.Logger)
	store := newStore(deps.Repos)

	var messages port.MessageSender
	var mail port.MailSender
	if deps.Lark != nil {
		messages, mail = deps.Lark.Messages, deps.Lark.Mail
	}

	return &ServiceBundle{
		Assignment: service.NewAssignmentService(
			store,
			deps.Repos.User,
			deps.TxManager,
			deps.Locker,
			deps.Dispatcher,
			deps.Metrics,
			logger,
		),
		Notification: service.NewNotificationService(
			deps.Repos.User,
			deps.Repos.Notification,
			messages,
			mail,
			deps.Metrics,
			logger,
		),
		Audit: service.NewAuditService(deps.Repos.History, deps.Repos.Subject, logger),
		Stats: service.NewStatsService(deps.Repos.User, deps.Repos.Stats, deps.Storage, logger),
	}, nil
}

// ProvideDispatcher creates the effect dispatcher
func ProvideDispatcher(m port.Metrics, logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(newLoggerAdapter(logger)),
		dispatcher.WithMetrics(m),
	)
}

// ProvideWorkflowEngine creates the stage transition engine
func ProvideWorkflowEngine(repos *RepositoryBundle, txManager port.TransactionManager, locker port.Locker, disp workflow.EffectDispatcher, m port.Metrics, logger *zap.Logger) workflow.Engine {
	return workflow.NewEngine(newStore(repos), txManager, locker,
		workflow.WithDispatcher(disp),
		workflow.WithMetrics(m),
		workflow.WithLogger(newLoggerAdapter(logger)),
	)
}

// ProvideWorkers creates the background workers
func ProvideWorkers(deps *WorkerDeps) *worker.Manager {
	manager := worker.NewManager(deps.Logger)

	manager.Register(worker.NewNotificationRetryWorker(worker.NotificationRetryConfig{
		Interval:    deps.NotifyCfg.RetryInterval,
		MaxAttempts: deps.NotifyCfg.MaxAttempts,
		BatchSize:   deps.NotifyCfg.BatchSize,
	}, deps.Notifications, deps.Logger))

	if deps.Storage != nil && deps.StorageCfg.ExportRetention > 0 {
		manager.Register(worker.NewExportCleanupWorker(worker.ExportCleanupConfig{
			Interval:  deps.StorageCfg.CleanupInterval,
			Retention: deps.StorageCfg.ExportRetention,
			Dir:       exportsDir,
		}, deps.Storage, deps.Logger))
	}

	return manager
}

// SeedDirectory upserts the configured directory users
func SeedDirectory(ctx context.Context, users port.UserRepository, seed []*entity.User, logger *zap.Logger) error {
	for _, u := range seed {
		if err := users.Upsert(ctx, u); err != nil {
			return fmt.Errorf("seed user %d: %w", u.ID, err)
		}
	}
	if len(seed) > 0 {
		logger.Info("Directory seeded", zap.Int("users", len(seed)))
	}
	return nil
}

func newStore(repos *RepositoryBundle) *workflow.Store {
	return &workflow.Store{
		Subjects:  repos.Subject,
		Templates: repos.Template,
		Stages:    repos.Stage,
	}
}
