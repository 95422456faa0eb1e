package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner removes stored files older than a cutoff
type Pruner interface {
	PruneOlderThan(ctx context.Context, dir string, cutoff time.Time) (int, error)
}

// ExportCleanupConfig holds configuration for the export cleanup worker
type ExportCleanupConfig struct {
	Interval  time.Duration
	Retention time.Duration
	Dir       string
}

// ExportCleanupWorker drops archived stats workbooks past their retention
type ExportCleanupWorker struct {
	*periodic
	config ExportCleanupConfig
	pruner Pruner
	now    func() time.Time
}

// NewExportCleanupWorker creates a new cleanup worker
func NewExportCleanupWorker(config ExportCleanupConfig, pruner Pruner, logger *zap.Logger) *ExportCleanupWorker {
	w := &ExportCleanupWorker{config: config, pruner: pruner, now: time.Now}
	w.periodic = newPeriodic("ExportCleanupWorker", config.Interval, w.prune, logger)
	return w
}

func (w *ExportCleanupWorker) prune(ctx context.Context) error {
	_, err := w.pruner.PruneOlderThan(ctx, w.config.Dir, w.now().Add(-w.config.Retention))
	return err
}
