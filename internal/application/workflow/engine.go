package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/contract-approval/internal/domain/entity"
	domainwf "github.com/garyjia/contract-approval/internal/domain/workflow"
)

// Engine drives approval transitions on a subject's workflow instance.
// Every call runs under the subject lock and one database transaction;
// effects are dispatched after commit and their failures are only logged.
type Engine interface {
	Approve(ctx context.Context, subjectID, stageID, actorID int64) (*domainwf.Outcome, error)
	Reject(ctx context.Context, subjectID, stageID, actorID int64, comment string) (*domainwf.Outcome, error)
	Resubmit(ctx context.Context, subjectID, actorID int64) (*domainwf.Outcome, error)
	Instance(ctx context.Context, subjectID int64) (*Instance, error)
}

// Instance is a read view of a subject and the workflow it currently references
type Instance struct {
	Subject      *entity.Subject          `json:"subject"`
	Template     *entity.WorkflowTemplate `json:"workflow,omitempty"`
	CurrentStage *entity.Stage            `json:"current_stage,omitempty"`
	// Actions the current stage's approver can take
	Actions []domainwf.Trigger `json:"actions,omitempty"`
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// SubjectLockKey is the lock key guarding one subject's workflow instance
func SubjectLockKey(subjectID int64) string {
	return fmt.Sprintf("subject:%d", subjectID)
}

// TemplateLockKey is the lock key guarding bind-or-clone decisions on a template
func TemplateLockKey(templateID int64) string {
	return fmt.Sprintf("template:%d", templateID)
}

// Operation names used in logs and metrics
const (
	OpAssign   = "assign"
	OpApprove  = "approve"
	OpReject   = "reject"
	OpResubmit = "resubmit"
)
