package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/contract-approval/internal/application/port"
	domainwf "github.com/garyjia/contract-approval/internal/domain/workflow"
)

// Store loads workflow aggregates and writes transition outcomes.
// Both methods must run inside the caller's transaction.
type Store struct {
	Subjects  port.SubjectRepository
	Templates port.TemplateRepository
	Stages    port.StageRepository
}

// Load reads a subject with the instance it references. A subject without a
// workflow yields an aggregate with a nil template.
func (s *Store) Load(ctx context.Context, subjectID int64) (*domainwf.Aggregate, error) {
	subject, err := s.Subjects.GetByID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	if subject == nil {
		return nil, fmt.Errorf("%w: %d", domainwf.ErrSubjectNotFound, subjectID)
	}

	agg := &domainwf.Aggregate{Subject: subject}
	if subject.WorkflowTemplateID == nil {
		return agg, nil
	}

	tpl, err := s.Templates.GetByID(ctx, *subject.WorkflowTemplateID)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if tpl == nil {
		return agg, nil
	}

	stages, err := s.Stages.GetByTemplateID(ctx, tpl.ID)
	if err != nil {
		return nil, fmt.Errorf("get stages: %w", err)
	}
	domainwf.SortStages(stages)
	tpl.Stages = stages

	agg.Template = tpl
	agg.Stages = stages
	return agg, nil
}

// Persist writes every changed stage guarded on its previous status, then
// points the subject at the outcome's instance with its new status.
func (s *Store) Persist(ctx context.Context, out *domainwf.Outcome) error {
	for _, ch := range out.Changes {
		if err := s.Stages.UpdateDecision(ctx, ch.Stage, ch.From); err != nil {
			return err
		}
	}

	subject := out.Subject
	rebind := out.Template != nil &&
		(subject.WorkflowTemplateID == nil || *subject.WorkflowTemplateID != out.Template.ID)

	switch {
	case rebind:
		if err := s.Subjects.SetWorkflow(ctx, subject.ID, out.Template.ID, out.NewStatus); err != nil {
			return fmt.Errorf("set workflow: %w", err)
		}
		id := out.Template.ID
		subject.WorkflowTemplateID = &id
	case out.SubjectChanged():
		if err := s.Subjects.UpdateStatus(ctx, subject.ID, out.NewStatus); err != nil {
			return fmt.Errorf("update subject status: %w", err)
		}
	}

	if out.Template != nil {
		out.Template.Stages = out.Stages
	}
	return nil
}
