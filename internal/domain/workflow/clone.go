package workflow

import (
	"fmt"
	"time"

	"github.com/garyjia/contract-approval/internal/domain/entity"
)

// StageInput describes one requested approver slot
type StageInput struct {
	ApproverID int64      `json:"approver_id"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
}

// BuildStages turns requested approver slots into an ordered chain whose last
// stage belongs to a final-authority user. When the requested chain does not
// end with one, the first candidate not already in the chain is appended.
func BuildStages(inputs []StageInput, directory map[int64]*entity.User, finalAuthorities []*entity.User) ([]*entity.Stage, error) {
	used := make(map[int64]bool, len(inputs)+1)
	stages := make([]*entity.Stage, 0, len(inputs)+1)

	for i, in := range inputs {
		if used[in.ApproverID] {
			return nil, fmt.Errorf("%w: user %d", ErrDuplicateApprover, in.ApproverID)
		}
		if _, ok := directory[in.ApproverID]; !ok {
			return nil, fmt.Errorf("%w: user %d", ErrUnknownApprover, in.ApproverID)
		}
		used[in.ApproverID] = true
		stages = append(stages, newStage(i+1, in.ApproverID, in.StartDate, in.DueDate))
	}

	if n := len(stages); n > 0 && IsFinalAuthority(directory[stages[n-1].ApproverID]) {
		return stages, nil
	}

	for _, fa := range finalAuthorities {
		if !IsFinalAuthority(fa) || used[fa.ID] {
			continue
		}
		return append(stages, newStage(len(stages)+1, fa.ID, nil, nil)), nil
	}

	return nil, ErrNoFinalAuthorityUser
}

func newStage(order int, approverID int64, start, due *time.Time) *entity.Stage {
	return &entity.Stage{
		Order:      order,
		ApproverID: approverID,
		Status:     entity.StageStatusNotStarted,
		StartDate:  copyTime(start),
		DueDate:    copyTime(due),
	}
}

// CloneTemplate deep-copies a template into a fresh, unbound, unpersisted
// instance for the given subject kind. Every copied stage starts NOT_STARTED
// with its decision cleared. The source is never modified.
func CloneTemplate(src *entity.WorkflowTemplate, kind string, now time.Time) *entity.WorkflowTemplate {
	clone := &entity.WorkflowTemplate{
		Name:              src.Name,
		OwnerUserID:       src.OwnerUserID,
		SubjectKind:       kind,
		CustomStagesCount: src.CustomStagesCount,
		CreatedAt:         now,
		Stages:            make([]*entity.Stage, 0, len(src.Stages)),
	}
	for _, s := range src.Stages {
		clone.Stages = append(clone.Stages, newStage(s.Order, s.ApproverID, s.StartDate, s.DueDate))
	}
	SortStages(clone.Stages)
	return clone
}

// Bind decides how a subject takes a template: a free template is bound in
// place, a template already bound elsewhere (or to this subject) is cloned.
// The returned template carries the subject binding; cloned reports which path ran.
func Bind(tpl *entity.WorkflowTemplate, subject *entity.Subject, now time.Time) (instance *entity.WorkflowTemplate, cloned bool) {
	if tpl.IsBound() {
		instance = CloneTemplate(tpl, subject.Kind, now)
		cloned = true
	} else {
		instance = copyTemplate(tpl)
		instance.SubjectKind = subject.Kind
	}
	id := subject.ID
	instance.BoundSubjectID = &id
	return instance, cloned
}

func copyTemplate(src *entity.WorkflowTemplate) *entity.WorkflowTemplate {
	cp := *src
	if src.BoundSubjectID != nil {
		id := *src.BoundSubjectID
		cp.BoundSubjectID = &id
	}
	cp.Stages = copyStages(src.Stages)
	return &cp
}

func copyStages(stages []*entity.Stage) []*entity.Stage {
	out := make([]*entity.Stage, len(stages))
	for i, s := range stages {
		cp := *s
		cp.ApprovedAt = copyTime(s.ApprovedAt)
		cp.StartDate = copyTime(s.StartDate)
		cp.DueDate = copyTime(s.DueDate)
		out[i] = &cp
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
