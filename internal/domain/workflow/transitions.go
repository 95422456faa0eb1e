package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/contract-approval/internal/domain/entity"
	"github.com/garyjia/contract-approval/internal/domain/event"
)

// Aggregate is a subject together with the workflow instance it references
type Aggregate struct {
	Subject  *entity.Subject
	Template *entity.WorkflowTemplate
	Stages   []*entity.Stage
}

// StageChange is a stage whose status moved, with the status it must still
// hold in storage for the write to apply
type StageChange struct {
	Stage *entity.Stage
	From  string
}

// Outcome is the committed state of a transition plus the effects to run after commit
type Outcome struct {
	Subject        *entity.Subject
	Template       *entity.WorkflowTemplate
	Stages         []*entity.Stage
	Changes        []StageChange
	PreviousStatus string
	NewStatus      string
	Effects        []*event.Event
}

// SubjectChanged reports whether the subject approval status moved
func (o *Outcome) SubjectChanged() bool {
	return o.PreviousStatus != o.NewStatus
}

type transitionContext struct {
	out         *Outcome
	correlation string
	templateID  int64
	touched     map[*entity.Stage]bool
}

func begin(agg *Aggregate) *transitionContext {
	subject := *agg.Subject
	out := &Outcome{
		Subject:        &subject,
		Template:       agg.Template,
		Stages:         copyStages(agg.Stages),
		PreviousStatus: agg.Subject.ApprovalStatus,
		NewStatus:      agg.Subject.ApprovalStatus,
	}
	SortStages(out.Stages)
	tc := &transitionContext{out: out, correlation: uuid.NewString(), touched: make(map[*entity.Stage]bool)}
	if agg.Template != nil {
		tc.templateID = agg.Template.ID
	}
	return tc
}

func (tc *transitionContext) fire(stage *entity.Stage, trigger Trigger) error {
	m, err := NewStageMachine(stage.Status)
	if err != nil {
		return err
	}
	from := stage.Status
	if err := m.Fire(trigger); err != nil {
		return fmt.Errorf("stage %d: %w", stage.ID, err)
	}
	stage.Status = m.State().String()
	// a stage fired twice in one transition is written once, guarded on its original status
	if !tc.touched[stage] {
		tc.touched[stage] = true
		tc.out.Changes = append(tc.out.Changes, StageChange{Stage: stage, From: from})
	}
	return nil
}

func (tc *transitionContext) setStatus(status string, now time.Time) {
	tc.out.Subject.ApprovalStatus = status
	tc.out.Subject.UpdatedAt = now
	tc.out.NewStatus = status
}

func (tc *transitionContext) emit(t event.Type, payload map[string]interface{}) {
	s := tc.out.Subject
	evt := event.NewEventWithCorrelation(t, s.ID, s.Kind, payload, tc.correlation).WithTemplate(tc.templateID)
	tc.out.Effects = append(tc.out.Effects, evt)
}

func (tc *transitionContext) emitStatusChange(actorID int64, action, summary string) {
	tc.emit(event.TypeStatusChanged, map[string]interface{}{
		event.KeyActorID:        actorID,
		event.KeyPreviousStatus: tc.out.PreviousStatus,
		event.KeyNewStatus:      tc.out.NewStatus,
		event.KeyAction:         action,
		event.KeySummary:        summary,
	})
}

func (tc *transitionContext) emitApprovalRequested(stage *entity.Stage) {
	tc.emit(event.TypeApprovalRequested, map[string]interface{}{
		event.KeyRecipientID: stage.ApproverID,
		event.KeyStageID:     stage.ID,
		event.KeyStageOrder:  stage.Order,
	})
}

// decisionGuards runs the checks shared by approve and reject, in order.
// No state is touched until all of them pass.
func decisionGuards(agg *Aggregate, stages []*entity.Stage, stageID, actorID int64) (*entity.Stage, error) {
	if agg.Template == nil {
		return nil, ErrStageNotFound
	}
	stage, ok := FindStage(stages, stageID)
	if !ok {
		return nil, fmt.Errorf("%w: stage %d on subject %d", ErrStageNotFound, stageID, agg.Subject.ID)
	}
	if err := Authorize(actorID, stage); err != nil {
		return nil, err
	}
	if HasActed(stages, actorID, stage.ID) {
		return nil, fmt.Errorf("%w: user %d already acted on this workflow", ErrAlreadyProcessed, actorID)
	}
	if IsDecided(stage) {
		return nil, fmt.Errorf("%w: stage %d is %s", ErrAlreadyProcessed, stage.ID, stage.Status)
	}
	if agg.Subject.ApprovalStatus != entity.ApprovalStatusPending {
		return nil, fmt.Errorf("%w: subject %d is %s", ErrSubjectNotPending, agg.Subject.ID, agg.Subject.ApprovalStatus)
	}
	current, ok := CurrentStage(stages)
	if !ok || current.ID != stage.ID || !canDecide(stage) {
		return nil, fmt.Errorf("%w: stage %d", ErrStageNotActive, stage.ID)
	}
	return stage, nil
}

// Approve records actorID's approval of the stage. The next stage becomes
// active, or, on the last stage, the subject is approved.
func Approve(agg *Aggregate, stageID, actorID int64, now time.Time) (*Outcome, error) {
	tc := begin(agg)
	stage, err := decisionGuards(agg, tc.out.Stages, stageID, actorID)
	if err != nil {
		return nil, err
	}

	if err := tc.fire(stage, TriggerApprove); err != nil {
		return nil, err
	}
	approvedAt := now
	stage.ApprovedAt = &approvedAt

	if next, ok := NextStage(tc.out.Stages, stage.Order); ok {
		if err := tc.fire(next, TriggerActivate); err != nil {
			return nil, err
		}
		tc.emitApprovalRequested(next)
		return tc.out, nil
	}

	tc.setStatus(entity.ApprovalStatusApproved, now)
	tc.emitStatusChange(actorID, entity.ActionApprove, fmt.Sprintf("approved at final stage %d", stage.Order))
	tc.emit(event.TypeSubjectApproved, map[string]interface{}{
		event.KeyRecipientID: actorID,
		event.KeyActorID:     actorID,
	})
	if tc.out.Subject.Kind == entity.SubjectKindAddendum && tc.out.Subject.AuthorID != actorID {
		tc.emit(event.TypeSubjectApproved, map[string]interface{}{
			event.KeyRecipientID: tc.out.Subject.AuthorID,
			event.KeyActorID:     actorID,
		})
	}
	return tc.out, nil
}

// Reject records actorID's rejection of the stage and halts the whole subject
func Reject(agg *Aggregate, stageID, actorID int64, comment string, now time.Time) (*Outcome, error) {
	tc := begin(agg)
	stage, err := decisionGuards(agg, tc.out.Stages, stageID, actorID)
	if err != nil {
		return nil, err
	}

	if err := tc.fire(stage, TriggerReject); err != nil {
		return nil, err
	}
	decidedAt := now
	stage.ApprovedAt = &decidedAt
	stage.Comment = comment

	tc.setStatus(entity.ApprovalStatusRejected, now)
	tc.emitStatusChange(actorID, entity.ActionReject, fmt.Sprintf("rejected at stage %d: %s", stage.Order, comment))
	tc.emit(event.TypeSubjectRejected, map[string]interface{}{
		event.KeyRecipientID: tc.out.Subject.AuthorID,
		event.KeyActorID:     actorID,
		event.KeyStageOrder:  stage.Order,
		event.KeyComment:     comment,
	})
	return tc.out, nil
}

// Resubmit resets every stage and restarts the chain from stage 1. Only a
// rejected or still pending subject can be resubmitted.
func Resubmit(agg *Aggregate, actorID int64, now time.Time) (*Outcome, error) {
	if agg.Template == nil || len(agg.Stages) == 0 {
		return nil, fmt.Errorf("%w: subject %d", ErrNoWorkflowAssigned, agg.Subject.ID)
	}
	switch agg.Subject.ApprovalStatus {
	case entity.ApprovalStatusRejected, entity.ApprovalStatusPending:
	default:
		return nil, fmt.Errorf("%w: subject %d is %s", ErrNotResubmittable, agg.Subject.ID, agg.Subject.ApprovalStatus)
	}
	return restart(agg, actorID, entity.ActionResubmit, now)
}

// Start puts a freshly bound instance into motion: stage 1 active, subject pending
func Start(agg *Aggregate, actorID int64, now time.Time) (*Outcome, error) {
	if agg.Template == nil || len(agg.Stages) == 0 {
		return nil, fmt.Errorf("%w: subject %d", ErrEmptyWorkflow, agg.Subject.ID)
	}
	return restart(agg, actorID, entity.ActionAssign, now)
}

func restart(agg *Aggregate, actorID int64, action string, now time.Time) (*Outcome, error) {
	tc := begin(agg)
	if err := ValidateOrders(tc.out.Stages); err != nil {
		return nil, err
	}

	for _, s := range tc.out.Stages {
		if s.Status != entity.StageStatusNotStarted {
			if err := tc.fire(s, TriggerReset); err != nil {
				return nil, err
			}
		}
		s.ApprovedAt = nil
		s.Comment = ""
	}

	first := tc.out.Stages[0]
	if err := tc.fire(first, TriggerActivate); err != nil {
		return nil, err
	}

	tc.setStatus(entity.ApprovalStatusPending, now)
	tc.emitStatusChange(actorID, action, fmt.Sprintf("%d-stage workflow started", len(tc.out.Stages)))
	tc.emitApprovalRequested(first)
	return tc.out, nil
}
