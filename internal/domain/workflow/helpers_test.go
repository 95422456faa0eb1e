package workflow

import (
	"time"

	"github.com/garyjia/contract-approval/internal/domain/entity"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func stage(id int64, order int, approver int64, status string) *entity.Stage {
	return &entity.Stage{ID: id, TemplateID: 100, Order: order, ApproverID: approver, Status: status}
}

// pendingAggregate is a fresh subject whose approvers 11, 12, 13 are at orders 1..3
func pendingAggregate(kind string) *Aggregate {
	tplID := int64(100)
	subject := &entity.Subject{
		ID:                 1,
		Kind:               kind,
		AuthorID:           5,
		ApprovalStatus:     entity.ApprovalStatusPending,
		WorkflowTemplateID: &tplID,
	}
	boundID := subject.ID
	return &Aggregate{
		Subject:  subject,
		Template: &entity.WorkflowTemplate{ID: tplID, BoundSubjectID: &boundID, SubjectKind: kind},
		Stages: []*entity.Stage{
			stage(1, 1, 11, entity.StageStatusApproving),
			stage(2, 2, 12, entity.StageStatusNotStarted),
			stage(3, 3, 13, entity.StageStatusNotStarted),
		},
	}
}

// apply folds an outcome back into an aggregate, like a committed transaction would
func apply(agg *Aggregate, out *Outcome) *Aggregate {
	return &Aggregate{Subject: out.Subject, Template: agg.Template, Stages: out.Stages}
}

func statuses(stages []*entity.Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.Status
	}
	return out
}
