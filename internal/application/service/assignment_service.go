package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/contract-approval/internal/application/port"
	appwf "github.com/garyjia/contract-approval/internal/application/workflow"
	"github.com/garyjia/contract-approval/internal/domain/entity"
	domainwf "github.com/garyjia/contract-approval/internal/domain/workflow"
)

// AssignmentService manages workflow templates and binds them to subjects
type AssignmentService interface {
	// RegisterSubject records a contract or addendum that can later receive a workflow
	RegisterSubject(ctx context.Context, subject *entity.Subject) error

	// Assign binds a template to a subject, cloning it when it is already bound,
	// and starts the chain at stage 1
	Assign(ctx context.Context, subjectID, templateID, actorID int64) (*entity.WorkflowTemplate, error)

	// CreateFromStages creates a free template whose chain ends with a final authority
	CreateFromStages(ctx context.Context, name string, inputs []domainwf.StageInput, ownerID int64) (*entity.WorkflowTemplate, error)

	// CreateForSubject creates a template already bound to the subject and starts it
	CreateForSubject(ctx context.Context, subjectID int64, name string, inputs []domainwf.StageInput, ownerID int64) (*entity.WorkflowTemplate, error)

	GetTemplate(ctx context.Context, id int64) (*entity.WorkflowTemplate, error)
	ListTemplates(ctx context.Context, freeOnly bool, limit, offset int) ([]*entity.WorkflowTemplate, error)
}

type assignmentServiceImpl struct {
	store      *appwf.Store
	userRepo   port.UserRepository
	txManager  port.TransactionManager
	locker     port.Locker
	dispatcher appwf.EffectDispatcher
	metrics    port.Metrics
	logger     Logger
	now        func() time.Time
}

// NewAssignmentService creates a new AssignmentService
func NewAssignmentService(
	store *appwf.Store,
	userRepo port.UserRepository,
	txManager port.TransactionManager,
	locker port.Locker,
	dispatcher appwf.EffectDispatcher,
	metrics port.Metrics,
	logger Logger,
) AssignmentService {
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	return &assignmentServiceImpl{
		store:      store,
		userRepo:   userRepo,
		txManager:  txManager,
		locker:     locker,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		now:        utcNow,
	}
}

func (s *assignmentServiceImpl) RegisterSubject(ctx context.Context, subject *entity.Subject) error {
	if !entity.IsValidSubjectKind(subject.Kind) {
		return fmt.Errorf("%w: unknown subject kind %q", domainwf.ErrValidation, subject.Kind)
	}
	subject.Title = strings.TrimSpace(subject.Title)
	if subject.Title == "" {
		return fmt.Errorf("%w: title is required", domainwf.ErrValidation)
	}

	author, err := s.userRepo.GetByID(ctx, subject.AuthorID)
	if err != nil {
		return fmt.Errorf("get author: %w", err)
	}
	if author == nil {
		return fmt.Errorf("%w: author %d", domainwf.ErrUserNotFound, subject.AuthorID)
	}

	switch subject.Kind {
	case entity.SubjectKindAddendum:
		if subject.ParentID == nil {
			return fmt.Errorf("%w: addendum requires a parent contract", domainwf.ErrValidation)
		}
		parent, err := s.store.Subjects.GetByID(ctx, *subject.ParentID)
		if err != nil {
			return fmt.Errorf("get parent: %w", err)
		}
		if parent == nil || parent.Kind != entity.SubjectKindContract {
			return fmt.Errorf("%w: parent contract %d", domainwf.ErrSubjectNotFound, *subject.ParentID)
		}
	default:
		subject.ParentID = nil
	}

	subject.ApprovalStatus = entity.ApprovalStatusNotSubmitted
	subject.WorkflowTemplateID = nil
	if err := s.store.Subjects.Create(ctx, subject); err != nil {
		s.logger.Error("Failed to register subject", "error", err, "kind", subject.Kind)
		return fmt.Errorf("create subject: %w", err)
	}

	s.logger.Info("Subject registered", "subject_id", subject.ID, "kind", subject.Kind, "author_id", subject.AuthorID)
	return nil
}

func (s *assignmentServiceImpl) Assign(ctx context.Context, subjectID, templateID, actorID int64) (*entity.WorkflowTemplate, error) {
	start := time.Now()
	out, cloned, err := s.assign(ctx, subjectID, templateID, actorID)
	s.metrics.RecordTransition(appwf.OpAssign, err, time.Since(start))
	if err != nil {
		s.logger.Error("Failed to assign workflow",
			"error", err,
			"subject_id", subjectID,
			"template_id", templateID,
		)
		return nil, err
	}
	if cloned {
		s.metrics.RecordClone(out.Subject.Kind)
	}

	s.logger.Info("Workflow assigned",
		"subject_id", subjectID,
		"template_id", templateID,
		"instance_id", out.Template.ID,
		"cloned", cloned,
	)
	s.dispatch(ctx, out)
	return out.Template, nil
}

// assign locks the template before the subject so concurrent assignments of
// one template decide bind-or-clone one at a time
func (s *assignmentServiceImpl) assign(ctx context.Context, subjectID, templateID, actorID int64) (*domainwf.Outcome, bool, error) {
	releaseTemplate, err := s.locker.Lock(ctx, appwf.TemplateLockKey(templateID))
	if err != nil {
		return nil, false, fmt.Errorf("lock template %d: %w", templateID, err)
	}
	defer releaseTemplate()

	releaseSubject, err := s.locker.Lock(ctx, appwf.SubjectLockKey(subjectID))
	if err != nil {
		return nil, false, fmt.Errorf("lock subject %d: %w", subjectID, err)
	}
	defer releaseSubject()

	var out *domainwf.Outcome
	var cloned bool
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		agg, err := s.store.Load(txCtx, subjectID)
		if err != nil {
			return err
		}

		tpl, err := s.loadTemplate(txCtx, templateID)
		if err != nil {
			return err
		}
		if len(tpl.Stages) == 0 {
			return fmt.Errorf("%w: template %d", domainwf.ErrEmptyWorkflow, templateID)
		}

		now := s.now()
		var instance *entity.WorkflowTemplate
		instance, cloned = domainwf.Bind(tpl, agg.Subject, now)
		if cloned {
			if err := s.insertTemplate(txCtx, instance); err != nil {
				return err
			}
		} else if err := s.store.Templates.Bind(txCtx, tpl.ID, agg.Subject.ID, agg.Subject.Kind); err != nil {
			return err
		}

		out, err = domainwf.Start(&domainwf.Aggregate{
			Subject:  agg.Subject,
			Template: instance,
			Stages:   instance.Stages,
		}, actorID, now)
		if err != nil {
			return err
		}
		return s.store.Persist(txCtx, out)
	})
	if err != nil {
		return nil, false, err
	}
	return out, cloned, nil
}

func (s *assignmentServiceImpl) CreateFromStages(ctx context.Context, name string, inputs []domainwf.StageInput, ownerID int64) (*entity.WorkflowTemplate, error) {
	tpl, err := s.buildTemplate(ctx, name, inputs, ownerID)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.insertTemplate(txCtx, tpl)
	})
	if err != nil {
		s.logger.Error("Failed to create template", "error", err, "name", name)
		return nil, err
	}

	s.logger.Info("Template created",
		"template_id", tpl.ID,
		"owner_id", ownerID,
		"stages", tpl.CustomStagesCount,
	)
	return tpl, nil
}

func (s *assignmentServiceImpl) CreateForSubject(ctx context.Context, subjectID int64, name string, inputs []domainwf.StageInput, ownerID int64) (*entity.WorkflowTemplate, error) {
	tpl, err := s.buildTemplate(ctx, name, inputs, ownerID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := s.createBound(ctx, subjectID, tpl, ownerID)
	s.metrics.RecordTransition(appwf.OpAssign, err, time.Since(start))
	if err != nil {
		s.logger.Error("Failed to create bound workflow", "error", err, "subject_id", subjectID)
		return nil, err
	}

	s.logger.Info("Bound workflow created",
		"subject_id", subjectID,
		"instance_id", out.Template.ID,
		"stages", len(out.Stages),
	)
	s.dispatch(ctx, out)
	return out.Template, nil
}

func (s *assignmentServiceImpl) createBound(ctx context.Context, subjectID int64, tpl *entity.WorkflowTemplate, actorID int64) (*domainwf.Outcome, error) {
	release, err := s.locker.Lock(ctx, appwf.SubjectLockKey(subjectID))
	if err != nil {
		return nil, fmt.Errorf("lock subject %d: %w", subjectID, err)
	}
	defer release()

	var out *domainwf.Outcome
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		agg, err := s.store.Load(txCtx, subjectID)
		if err != nil {
			return err
		}

		id := agg.Subject.ID
		tpl.BoundSubjectID = &id
		tpl.SubjectKind = agg.Subject.Kind
		if err := s.insertTemplate(txCtx, tpl); err != nil {
			return err
		}

		out, err = domainwf.Start(&domainwf.Aggregate{Subject: agg.Subject, Template: tpl, Stages: tpl.Stages}, actorID, s.now())
		if err != nil {
			return err
		}
		return s.store.Persist(txCtx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *assignmentServiceImpl) GetTemplate(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	return s.loadTemplate(ctx, id)
}

func (s *assignmentServiceImpl) ListTemplates(ctx context.Context, freeOnly bool, limit, offset int) ([]*entity.WorkflowTemplate, error) {
	if offset < 0 {
		offset = 0
	}
	templates, err := s.store.Templates.List(ctx, freeOnly, pageSize(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// buildTemplate validates the requested chain against the directory and
// completes it with a final-authority stage when needed. Nothing is written.
func (s *assignmentServiceImpl) buildTemplate(ctx context.Context, name string, inputs []domainwf.StageInput, ownerID int64) (*entity.WorkflowTemplate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: template name is required", domainwf.ErrValidation)
	}

	ids := make([]int64, 0, len(inputs))
	for _, in := range inputs {
		ids = append(ids, in.ApproverID)
	}
	directory, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get approvers: %w", err)
	}
	if directory == nil {
		directory = make(map[int64]*entity.User)
	}
	finalAuthorities, err := s.userRepo.ListByRole(ctx, entity.RoleFinalAuthority)
	if err != nil {
		return nil, fmt.Errorf("list final authorities: %w", err)
	}
	for _, fa := range finalAuthorities {
		if _, ok := directory[fa.ID]; !ok {
			directory[fa.ID] = fa
		}
	}

	stages, err := domainwf.BuildStages(inputs, directory, finalAuthorities)
	if err != nil {
		return nil, err
	}

	return &entity.WorkflowTemplate{
		Name:              name,
		OwnerUserID:       ownerID,
		CustomStagesCount: len(stages),
		CreatedAt:         s.now(),
		Stages:            stages,
	}, nil
}

func (s *assignmentServiceImpl) insertTemplate(ctx context.Context, tpl *entity.WorkflowTemplate) error {
	if err := s.store.Templates.Create(ctx, tpl); err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	if err := s.store.Stages.CreateBatch(ctx, tpl.ID, tpl.Stages); err != nil {
		return fmt.Errorf("create stages: %w", err)
	}
	return nil
}

func (s *assignmentServiceImpl) loadTemplate(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	tpl, err := s.store.Templates.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if tpl == nil {
		return nil, fmt.Errorf("%w: %d", domainwf.ErrTemplateNotFound, id)
	}
	stages, err := s.store.Stages.GetByTemplateID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get stages: %w", err)
	}
	domainwf.SortStages(stages)
	tpl.Stages = stages
	return tpl, nil
}

func (s *assignmentServiceImpl) dispatch(ctx context.Context, out *domainwf.Outcome) {
	if s.dispatcher == nil || len(out.Effects) == 0 {
		return
	}
	if err := s.dispatcher.DispatchAll(context.WithoutCancel(ctx), out.Effects); err != nil {
		s.logger.Error("Assignment effects failed", "error", err, "subject_id", out.Subject.ID)
	}
}
