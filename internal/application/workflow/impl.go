package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/contract-approval/internal/application/port"
	"github.com/garyjia/contract-approval/internal/domain/entity"
	"github.com/garyjia/contract-approval/internal/domain/event"
	domainwf "github.com/garyjia/contract-approval/internal/domain/workflow"
)

// EffectDispatcher receives the effects of a committed transition
type EffectDispatcher interface {
	DispatchAll(ctx context.Context, evts []*event.Event) error
}

type engineImpl struct {
	store      *Store
	txManager  port.TransactionManager
	locker     port.Locker
	dispatcher EffectDispatcher
	metrics    port.Metrics
	logger     Logger
	now        func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the dispatcher that runs post-commit effects
func WithDispatcher(d EffectDispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m port.Metrics) EngineOption {
	return func(e *engineImpl) {
		e.metrics = m
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(store *Store, txManager port.TransactionManager, locker port.Locker, opts ...EngineOption) Engine {
	e := &engineImpl{
		store:     store,
		txManager: txManager,
		locker:    locker,
		metrics:   port.NopMetrics{},
		logger:    nopLogger{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type rule func(agg *domainwf.Aggregate, now time.Time) (*domainwf.Outcome, error)

func (e *engineImpl) Approve(ctx context.Context, subjectID, stageID, actorID int64) (*domainwf.Outcome, error) {
	return e.transition(ctx, OpApprove, subjectID, actorID, func(agg *domainwf.Aggregate, now time.Time) (*domainwf.Outcome, error) {
		return domainwf.Approve(agg, stageID, actorID, now)
	})
}

func (e *engineImpl) Reject(ctx context.Context, subjectID, stageID, actorID int64, comment string) (*domainwf.Outcome, error) {
	return e.transition(ctx, OpReject, subjectID, actorID, func(agg *domainwf.Aggregate, now time.Time) (*domainwf.Outcome, error) {
		return domainwf.Reject(agg, stageID, actorID, comment, now)
	})
}

func (e *engineImpl) Resubmit(ctx context.Context, subjectID, actorID int64) (*domainwf.Outcome, error) {
	return e.transition(ctx, OpResubmit, subjectID, actorID, func(agg *domainwf.Aggregate, now time.Time) (*domainwf.Outcome, error) {
		return domainwf.Resubmit(agg, actorID, now)
	})
}

func (e *engineImpl) Instance(ctx context.Context, subjectID int64) (*Instance, error) {
	agg, err := e.store.Load(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	view := &Instance{Subject: agg.Subject, Template: agg.Template}
	if agg.Subject.ApprovalStatus == entity.ApprovalStatusPending {
		if current, ok := domainwf.CurrentStage(agg.Stages); ok {
			view.CurrentStage = current
			view.Actions = domainwf.StageActions(current)
		}
	}
	return view, nil
}

func (e *engineImpl) transition(ctx context.Context, op string, subjectID, actorID int64, apply rule) (*domainwf.Outcome, error) {
	start := time.Now()
	out, err := e.commit(ctx, subjectID, apply)
	e.metrics.RecordTransition(op, err, time.Since(start))
	if err != nil {
		e.logger.Error("Workflow transition failed",
			"operation", op,
			"subject_id", subjectID,
			"actor_id", actorID,
			"error", err,
		)
		return nil, err
	}

	e.logger.Info("Workflow transition committed",
		"operation", op,
		"subject_id", subjectID,
		"actor_id", actorID,
		"previous_status", out.PreviousStatus,
		"new_status", out.NewStatus,
		"effects", len(out.Effects),
	)
	e.dispatch(ctx, out)
	return out, nil
}

// commit holds the subject lock for load, rule and write, and releases it
// before any effect runs
func (e *engineImpl) commit(ctx context.Context, subjectID int64, apply rule) (*domainwf.Outcome, error) {
	release, err := e.locker.Lock(ctx, SubjectLockKey(subjectID))
	if err != nil {
		return nil, fmt.Errorf("lock subject %d: %w", subjectID, err)
	}
	defer release()

	var out *domainwf.Outcome
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		agg, err := e.store.Load(txCtx, subjectID)
		if err != nil {
			return err
		}
		out, err = apply(agg, e.now())
		if err != nil {
			return err
		}
		return e.store.Persist(txCtx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *engineImpl) dispatch(ctx context.Context, out *domainwf.Outcome) {
	if e.dispatcher == nil || len(out.Effects) == 0 {
		return
	}
	if err := e.dispatcher.DispatchAll(context.WithoutCancel(ctx), out.Effects); err != nil {
		e.logger.Error("Workflow effects failed",
			"subject_id", out.Subject.ID,
			"correlation_id", out.Effects[0].CorrelationID,
			"error", err,
		)
	}
}
