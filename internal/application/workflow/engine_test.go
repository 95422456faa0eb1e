package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/contract-approval/internal/application/port"
	"github.com/garyjia/contract-approval/internal/domain/entity"
	"github.com/garyjia/contract-approval/internal/domain/event"
	domainwf "github.com/garyjia/contract-approval/internal/domain/workflow"
	"github.com/garyjia/contract-approval/internal/infrastructure/lock"
	"github.com/garyjia/contract-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/contract-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/contract-approval/migrations"
	"github.com/garyjia/contract-approval/pkg/database"
)

var engineNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type recordingDispatcher struct {
	mu      sync.Mutex
	effects []*event.Event
	err     error
}

func (d *recordingDispatcher) DispatchAll(ctx context.Context, evts []*event.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.effects = append(d.effects, evts...)
	return d.err
}

func (d *recordingDispatcher) types() []event.Type {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]event.Type, 0, len(d.effects))
	for _, e := range d.effects {
		out = append(out, e.Type)
	}
	return out
}

type failingLocker struct{ err error }

func (l failingLocker) Lock(ctx context.Context, key string) (func(), error) {
	return nil, l.err
}

type noopLocker struct{}

func (noopLocker) Lock(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

type fixture struct {
	store      *Store
	tx         port.TransactionManager
	dispatcher *recordingDispatcher
	users      port.UserRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "engine.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(migrations.FS))

	f := &fixture{
		store: &Store{
			Subjects:  repository.NewSubjectRepository(db.DB, logger),
			Templates: repository.NewTemplateRepository(db.DB, logger),
			Stages:    repository.NewStageRepository(db.DB, logger),
		},
		tx:         sqlite.NewDB(db.DB, logger),
		dispatcher: &recordingDispatcher{},
		users:      repository.NewUserRepository(db.DB, logger),
	}

	ctx := context.Background()
	for _, u := range []*entity.User{
		{ID: 5, Name: "Author", Role: entity.RoleAuthor},
		{ID: 11, Name: "Buyer", Role: entity.RoleApprover},
		{ID: 12, Name: "Legal", Role: entity.RoleManager},
		{ID: 90, Name: "Director", Role: entity.RoleFinalAuthority},
	} {
		require.NoError(t, f.users.Upsert(ctx, u))
	}
	return f
}

func (f *fixture) engine(opts ...EngineOption) Engine {
	opts = append([]EngineOption{
		WithDispatcher(f.dispatcher),
		WithClock(func() time.Time { return engineNow }),
	}, opts...)
	return NewEngine(f.store, f.tx, lock.NewKeyedMutex(), opts...)
}

// pendingSubject creates a subject of kind whose instance has approvers
// 11, 12, 90 with stage 1 active
func (f *fixture) pendingSubject(t *testing.T, kind string) (*entity.Subject, []*entity.Stage) {
	t.Helper()
	ctx := context.Background()

	subject := &entity.Subject{Kind: kind, Title: "Supply agreement", AuthorID: 5, ApprovalStatus: entity.ApprovalStatusPending}
	require.NoError(t, f.store.Subjects.Create(ctx, subject))

	tpl := &entity.WorkflowTemplate{Name: "standard", OwnerUserID: 5, SubjectKind: kind, BoundSubjectID: &subject.ID, CustomStagesCount: 3}
	require.NoError(t, f.store.Templates.Create(ctx, tpl))

	stages := []*entity.Stage{
		{Order: 1, ApproverID: 11, Status: entity.StageStatusApproving},
		{Order: 2, ApproverID: 12, Status: entity.StageStatusNotStarted},
		{Order: 3, ApproverID: 90, Status: entity.StageStatusNotStarted},
	}
	require.NoError(t, f.store.Stages.CreateBatch(ctx, tpl.ID, stages))
	require.NoError(t, f.store.Subjects.SetWorkflow(ctx, subject.ID, tpl.ID, entity.ApprovalStatusPending))
	return subject, stages
}

func (f *fixture) reload(t *testing.T, subjectID int64) *domainwf.Aggregate {
	t.Helper()
	agg, err := f.store.Load(context.Background(), subjectID)
	require.NoError(t, err)
	return agg
}

func stageStatuses(stages []*entity.Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.Status
	}
	return out
}

func TestEngine_ApproveChainToCompletion(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	ctx := context.Background()
	subject, stages := f.pendingSubject(t, entity.SubjectKindContract)

	_, err := e.Approve(ctx, subject.ID, stages[0].ID, 11)
	require.NoError(t, err)
	agg := f.reload(t, subject.ID)
	assert.Equal(t, []string{"APPROVED", "APPROVING", "NOT_STARTED"}, stageStatuses(agg.Stages))
	require.NotNil(t, agg.Stages[0].ApprovedAt)
	assert.True(t, engineNow.Equal(*agg.Stages[0].ApprovedAt))

	_, err = e.Approve(ctx, subject.ID, stages[1].ID, 12)
	require.NoError(t, err)
	out, err := e.Approve(ctx, subject.ID, stages[2].ID, 90)
	require.NoError(t, err)
	assert.Equal(t, entity.ApprovalStatusApproved, out.NewStatus)

	agg = f.reload(t, subject.ID)
	assert.Equal(t, entity.ApprovalStatusApproved, agg.Subject.ApprovalStatus)
	assert.Equal(t, []string{"APPROVED", "APPROVED", "APPROVED"}, stageStatuses(agg.Stages))

	assert.Equal(t, []event.Type{
		event.TypeApprovalRequested,
		event.TypeApprovalRequested,
		event.TypeStatusChanged,
		event.TypeSubjectApproved,
	}, f.dispatcher.types())
}

func TestEngine_RejectThenResubmit(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	ctx := context.Background()
	subject, stages := f.pendingSubject(t, entity.SubjectKindAddendum)

	_, err := e.Approve(ctx, subject.ID, stages[0].ID, 11)
	require.NoError(t, err)
	_, err = e.Reject(ctx, subject.ID, stages[1].ID, 12, "wrong amounts")
	require.NoError(t, err)

	agg := f.reload(t, subject.ID)
	assert.Equal(t, entity.ApprovalStatusRejected, agg.Subject.ApprovalStatus)
	assert.Equal(t, "wrong amounts", agg.Stages[1].Comment)

	// frozen until resubmit
	_, err = e.Approve(ctx, subject.ID, stages[2].ID, 90)
	assert.ErrorIs(t, err, domainwf.ErrSubjectNotPending)

	out, err := e.Resubmit(ctx, subject.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, entity.ApprovalStatusRejected, out.PreviousStatus)

	agg = f.reload(t, subject.ID)
	assert.Equal(t, entity.ApprovalStatusPending, agg.Subject.ApprovalStatus)
	assert.Equal(t, []string{"APPROVING", "NOT_STARTED", "NOT_STARTED"}, stageStatuses(agg.Stages))
	for _, s := range agg.Stages {
		assert.Nil(t, s.ApprovedAt)
		assert.Empty(t, s.Comment)
	}
	// same instance, same stage ids
	assert.Equal(t, stages[0].ID, agg.Stages[0].ID)
	assert.Equal(t, stages[2].ID, agg.Stages[2].ID)
}

func TestEngine_GuardErrorsLeaveStateUntouched(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	ctx := context.Background()
	subject, stages := f.pendingSubject(t, entity.SubjectKindContract)

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"unknown subject", func() error {
			_, err := e.Approve(ctx, 9999, stages[0].ID, 11)
			return err
		}, domainwf.ErrSubjectNotFound},
		{"unknown stage", func() error {
			_, err := e.Approve(ctx, subject.ID, 9999, 11)
			return err
		}, domainwf.ErrStageNotFound},
		{"wrong approver", func() error {
			_, err := e.Approve(ctx, subject.ID, stages[0].ID, 12)
			return err
		}, domainwf.ErrUnauthorized},
		{"not yet active", func() error {
			_, err := e.Reject(ctx, subject.ID, stages[1].ID, 12, "early")
			return err
		}, domainwf.ErrStageNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.wantErr)
		})
	}

	agg := f.reload(t, subject.ID)
	assert.Equal(t, []string{"APPROVING", "NOT_STARTED", "NOT_STARTED"}, stageStatuses(agg.Stages))
	assert.Equal(t, entity.ApprovalStatusPending, agg.Subject.ApprovalStatus)
	assert.Empty(t, f.dispatcher.types())
}

func TestEngine_ResubmitWithoutWorkflow(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	ctx := context.Background()

	subject := &entity.Subject{Kind: entity.SubjectKindContract, Title: "Draft", AuthorID: 5, ApprovalStatus: entity.ApprovalStatusNotSubmitted}
	require.NoError(t, f.store.Subjects.Create(ctx, subject))

	_, err := e.Resubmit(ctx, subject.ID, 5)
	assert.ErrorIs(t, err, domainwf.ErrNoWorkflowAssigned)
	assert.ErrorIs(t, err, domainwf.ErrValidation)
}

// Concurrent approvals of the same stage
func TestEngine_ConcurrentApproveSameStage(t *testing.T) {
	for _, tc := range []struct {
		name   string
		locker port.Locker
	}{
		{"keyed mutex", lock.NewKeyedMutex()},
		{"database only", noopLocker{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			e := NewEngine(f.store, f.tx, tc.locker, WithDispatcher(f.dispatcher))
			subject, stages := f.pendingSubject(t, entity.SubjectKindContract)

			const callers = 8
			var wg sync.WaitGroup
			errs := make([]error, callers)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = e.Approve(context.Background(), subject.ID, stages[0].ID, 11)
				}(i)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				assert.ErrorIs(t, err, domainwf.ErrAlreadyProcessed)
			}
			assert.Equal(t, 1, succeeded)

			agg := f.reload(t, subject.ID)
			assert.Equal(t, []string{"APPROVED", "APPROVING", "NOT_STARTED"}, stageStatuses(agg.Stages))
			assert.Equal(t, []event.Type{event.TypeApprovalRequested}, f.dispatcher.types())
		})
	}
}

func TestEngine_DifferentSubjectsInParallel(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	const n = 5
	subjects := make([]*entity.Subject, n)
	firstStages := make([]int64, n)
	for i := range subjects {
		s, stages := f.pendingSubject(t, entity.SubjectKindContract)
		subjects[i] = s
		firstStages[i] = stages[0].ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range subjects {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Approve(context.Background(), subjects[i].ID, firstStages[i], 11)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "subject %d", subjects[i].ID)
	}
}

func TestEngine_EffectFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("lark unavailable")
	e := f.engine()
	subject, stages := f.pendingSubject(t, entity.SubjectKindContract)

	_, err := e.Approve(context.Background(), subject.ID, stages[0].ID, 11)
	require.NoError(t, err)
	assert.Equal(t, entity.StageStatusApproved, f.reload(t, subject.ID).Stages[0].Status)
}

func TestEngine_LockFailure(t *testing.T) {
	f := newFixture(t)
	e := NewEngine(f.store, f.tx, failingLocker{err: lock.ErrLockTimeout})
	subject, stages := f.pendingSubject(t, entity.SubjectKindContract)

	_, err := e.Approve(context.Background(), subject.ID, stages[0].ID, 11)
	assert.ErrorIs(t, err, lock.ErrLockTimeout)
	assert.Equal(t, entity.StageStatusApproving, f.reload(t, subject.ID).Stages[0].Status)
}

func TestEngine_Instance(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	ctx := context.Background()
	subject, stages := f.pendingSubject(t, entity.SubjectKindContract)

	view, err := e.Instance(ctx, subject.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Template)
	assert.Len(t, view.Template.Stages, 3)
	require.NotNil(t, view.CurrentStage)
	assert.Equal(t, stages[0].ID, view.CurrentStage.ID)
	assert.Equal(t, []domainwf.Trigger{domainwf.TriggerApprove, domainwf.TriggerReject}, view.Actions)

	_, err = e.Reject(ctx, subject.ID, stages[0].ID, stages[0].ApproverID, "redo")
	require.NoError(t, err)
	view, err = e.Instance(ctx, subject.ID)
	require.NoError(t, err)
	assert.Nil(t, view.CurrentStage)
	assert.Empty(t, view.Actions)

	_, err = e.Instance(ctx, 4242)
	assert.ErrorIs(t, err, domainwf.ErrNotFound)
}
