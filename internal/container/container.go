package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/contract-approval/internal/application/dispatcher"
	"github.com/garyjia/contract-approval/internal/application/port"
	"github.com/garyjia/contract-approval/internal/application/workflow"
	"github.com/garyjia/contract-approval/internal/infrastructure/metrics"
	"github.com/garyjia/contract-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/contract-approval/internal/infrastructure/storage"
	"github.com/garyjia/contract-approval/internal/infrastructure/worker"
	"github.com/garyjia/contract-approval/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	database     *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - Coordination and external
	locker  port.Locker
	redis   *redis.Client
	lark    *LarkBundle
	storage *storage.LocalStorage
	metrics *metrics.Metrics

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.Engine
	services   *ServiceBundle

	// Workers
	workers *worker.Manager

	// Lifecycle
	mu     sync.Mutex
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{config: cfg, logger: logger}, nil
}

// Start initializes all components in dependency order:
// 1. Database, repositories and the seeded directory
// 2. Instance lock, Lark channels, export storage and metrics
// 3. Effect dispatcher, application services and the transition engine
// 4. Workers
// A failed start releases whatever was already opened.
func (c *Container) Start(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer func() {
		if err != nil {
			cancel()
			c.teardown()
		}
	}()

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initInfrastructure(ctx); err != nil {
		return fmt.Errorf("failed to initialize infrastructure: %w", err)
	}
	c.logger.Info("Infrastructure initialized")

	if err := c.initApplication(); err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	c.logger.Info("Dispatcher, services and workflow engine initialized")

	c.workers = ProvideWorkers(&WorkerDeps{
		Notifications: c.services.Notification,
		Storage:       c.storage,
		NotifyCfg:     &c.config.Notifications,
		StorageCfg:    &c.config.Storage,
		Logger:        c.logger,
	})
	if err := c.workers.StartAll(runCtx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	c.logger.Info("Workers started", zap.Int("count", c.workers.Count()))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}
	c.logger.Info("Closing container")

	if c.cancel != nil {
		c.cancel()
	}
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases every opened component once; a second call is a no-op
func (c *Container) teardown() error {
	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		c.redis = nil
	}
	if c.database != nil {
		if err := c.database.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		c.database = nil
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, err error) {
		if err != nil {
			status.Components[name] = ComponentHealth{Healthy: false, Message: err.Error()}
			status.Overall = false
			return
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}

	if c.database == nil {
		set("database", errors.New("not initialized"))
	} else {
		set("database", c.database.PingContext(ctx))
	}

	if c.redis != nil {
		set("redis", c.redis.Ping(ctx).Err())
	}

	switch {
	case c.dispatcher == nil:
		set("dispatcher", errors.New("not initialized"))
	default:
		if missing := dispatcher.Unrouted(c.dispatcher); len(missing) > 0 {
			set("dispatcher", fmt.Errorf("no handlers for %v", missing))
		} else {
			set("dispatcher", nil)
		}
	}

	switch {
	case c.workers == nil:
		set("workers", errors.New("not initialized"))
	case !c.workers.IsRunning():
		set("workers", errors.New("stopped"))
	default:
		set("workers", nil)
	}

	return status
}

func (c *Container) initDatabase(ctx context.Context) error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.database = bundle.DB
	c.db = bundle.TxManager

	repos, err := ProvideRepositories(c.database.DB, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos

	return SeedDirectory(ctx, repos.User, c.config.SeedUsers, c.logger)
}

func (c *Container) initInfrastructure(ctx context.Context) error {
	locks, err := ProvideLocker(ctx, &c.config.Lock, c.logger)
	if err != nil {
		return err
	}
	c.locker = locks.Locker
	c.redis = locks.Redis

	c.lark = ProvideLark(&c.config.Lark, c.logger)

	c.storage, err = ProvideStorage(&c.config.Storage, c.logger)
	if err != nil {
		return err
	}

	c.metrics = ProvideMetrics(prometheus.NewRegistry())
	return nil
}

func (c *Container) initApplication() error {
	c.dispatcher = ProvideDispatcher(c.metrics, c.logger)

	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Locker:     c.locker,
		Lark:       c.lark,
		Storage:    c.storage,
		Dispatcher: c.dispatcher,
		Metrics:    c.metrics,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services

	dispatcher.RegisterWorkflowHandlers(c.dispatcher, services.Notification, services.Audit)

	c.engine = ProvideWorkflowEngine(c.repositories, c.db, c.locker, c.dispatcher, c.metrics, c.logger)
	return nil
}

// Engine returns the stage transition engine
func (c *Container) Engine() workflow.Engine {
	return c.engine
}

// Services returns all application services
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Repositories returns all repositories
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the effect dispatcher
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Metrics returns the Prometheus instruments
func (c *Container) Metrics() *metrics.Metrics {
	return c.metrics
}

// MetricsHandler serves the Prometheus exposition of this container's registry
func (c *Container) MetricsHandler() http.Handler {
	return c.metrics.Handler()
}

// Workers returns the worker manager
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container's logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration
func (c *Container) Config() *Config {
	return c.config
}
