package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// NotificationRetrier redelivers failed notifications
type NotificationRetrier interface {
	RetryFailed(ctx context.Context, maxAttempts, limit int) (int, error)
}

// NotificationRetryConfig holds configuration for the retry worker
type NotificationRetryConfig struct {
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
}

// DefaultNotificationRetryConfig returns default configuration
func DefaultNotificationRetryConfig() NotificationRetryConfig {
	return NotificationRetryConfig{
		Interval:    time.Minute,
		MaxAttempts: 5,
		BatchSize:   50,
	}
}

// NotificationRetryWorker periodically resends FAILED notifications until
// they run out of attempts
type NotificationRetryWorker struct {
	*periodic
	config  NotificationRetryConfig
	retrier NotificationRetrier
	logger  *zap.Logger
}

// NewNotificationRetryWorker creates a new retry worker
func NewNotificationRetryWorker(config NotificationRetryConfig, retrier NotificationRetrier, logger *zap.Logger) *NotificationRetryWorker {
	w := &NotificationRetryWorker{config: config, retrier: retrier, logger: logger}
	w.periodic = newPeriodic("NotificationRetryWorker", config.Interval, w.retry, logger)
	return w
}

func (w *NotificationRetryWorker) retry(ctx context.Context) error {
	sent, err := w.retrier.RetryFailed(ctx, w.config.MaxAttempts, w.config.BatchSize)
	if err != nil {
		return err
	}
	if sent > 0 {
		w.logger.Info("Redelivered notifications", zap.Int("sent", sent))
	}
	return nil
}
