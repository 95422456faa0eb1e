package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/contract-approval/internal/config"
	"github.com/garyjia/contract-approval/internal/container"
	apihttp "github.com/garyjia/contract-approval/internal/interfaces/http"
	"github.com/garyjia/contract-approval/pkg/utils"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file (empty for environment only)")
	issueToken := flag.Int64("issue-token", 0, "print a bearer token for this user id and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of a token printed by -issue-token")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	auth, err := apihttp.NewAuthenticator(apihttp.AuthConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize authenticator", zap.Error(err))
	}

	if *issueToken != 0 {
		token, err := auth.IssueToken(*issueToken, *tokenTTL)
		if err != nil {
			logger.Fatal("Failed to issue token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg, auth, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, auth *apihttp.Authenticator, logger *zap.Logger) error {
	logger.Info("Starting contract approval service",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("lock_driver", cfg.Lock.Driver),
		zap.Bool("lark_enabled", cfg.Lark.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown error", zap.Error(err))
		}
	}()

	if cfg.Server.Mode == gin.DebugMode || cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	svc := c.Services()
	server, err := apihttp.NewServer(apihttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, apihttp.Dependencies{
		Engine:         c.Engine(),
		Assignment:     svc.Assignment,
		Notification:   svc.Notification,
		Audit:          svc.Audit,
		Stats:          svc.Stats,
		Auth:           auth,
		Metrics:        c.Metrics(),
		MetricsHandler: c.MetricsHandler(),
		Health: func(ctx context.Context) (bool, interface{}) {
			h := c.Health(ctx)
			return h.Overall, h.Components
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	// Start blocks until a signal cancels ctx, then shuts the listener down
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
