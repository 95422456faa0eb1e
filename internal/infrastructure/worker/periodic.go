package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// periodic runs a job on a fixed interval until stopped. Concrete workers
// embed it and supply the job.
type periodic struct {
	name     string
	interval time.Duration
	job      func(ctx context.Context) error
	logger   *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	runs      int
	failures  int
	lastError error
}

func newPeriodic(name string, interval time.Duration, job func(ctx context.Context) error, logger *zap.Logger) *periodic {
	return &periodic{name: name, interval: interval, job: job, logger: logger}
}

func (p *periodic) Name() string { return p.name }

func (p *periodic) Start(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", p.name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return fmt.Errorf("%s already running", p.name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(runCtx, p.done)

	p.logger.Info("Worker loop started", zap.String("worker_name", p.name), zap.Duration("interval", p.interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight run to finish
func (p *periodic) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (p *periodic) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *periodic) runOnce(ctx context.Context) {
	err := p.job(ctx)

	p.mu.Lock()
	p.runs++
	if err != nil {
		p.failures++
		p.lastError = err
	}
	p.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		p.logger.Error("Worker run failed", zap.String("worker_name", p.name), zap.Error(err))
	}
}

// Stats reports how many runs happened and how many failed
func (p *periodic) Stats() (runs, failures int, lastError error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs, p.failures, p.lastError
}
