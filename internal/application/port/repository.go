package port

import (
	"context"

	"github.com/garyjia/contract-approval/internal/domain/entity"
)

// Repositories return (nil, nil) when a row does not exist.

// UserRepository reads the user directory
type UserRepository interface {
	Upsert(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*entity.User, error)
	ListByRole(ctx context.Context, role string) ([]*entity.User, error)
}

// SubjectRepository persists contracts and addenda
type SubjectRepository interface {
	Create(ctx context.Context, subject *entity.Subject) error
	GetByID(ctx context.Context, id int64) (*entity.Subject, error)
	// SetWorkflow points the subject at a workflow instance and sets its status
	SetWorkflow(ctx context.Context, id, templateID int64, status string) error
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// TemplateRepository is the template store
type TemplateRepository interface {
	Create(ctx context.Context, tpl *entity.WorkflowTemplate) error
	// GetByID returns the template without stages
	GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error)
	List(ctx context.Context, freeOnly bool, limit, offset int) ([]*entity.WorkflowTemplate, error)
	// Bind claims a free template for a subject. It fails with a conflict if
	// the template is already bound.
	Bind(ctx context.Context, id, subjectID int64, kind string) error
}

// StageRepository is the stage ledger
type StageRepository interface {
	CreateBatch(ctx context.Context, templateID int64, stages []*entity.Stage) error
	GetByTemplateID(ctx context.Context, templateID int64) ([]*entity.Stage, error)
	// UpdateDecision writes status, approval time and comment only if the stored
	// status still equals fromStatus. A lost race fails with a conflict.
	UpdateDecision(ctx context.Context, stage *entity.Stage, fromStatus string) error
}

// HistoryRepository stores the approval audit trail
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.ApprovalHistory) error
	GetBySubjectID(ctx context.Context, subjectID int64) ([]*entity.ApprovalHistory, error)
}

// NotificationRepository stores in-app notifications and their delivery state
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	GetByID(ctx context.Context, id int64) (*entity.Notification, error)
	ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*entity.Notification, error)
	ListFailed(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error)
	// RecordAttempt bumps the attempt counter and sets the delivery status
	RecordAttempt(ctx context.Context, id int64, status, errorMsg string) error
	MarkRead(ctx context.Context, id, userID int64) error
}

// StatsRepository computes role-scoped counters keyed by subject kind.
// Only the instance a subject currently references is considered.
type StatsRepository interface {
	AuthorCounts(ctx context.Context, userID int64) (map[string]entity.Stats, error)
	ApproverCounts(ctx context.Context, userID int64) (map[string]entity.Stats, error)
	FinalAuthorityCounts(ctx context.Context, userID int64) (map[string]entity.Stats, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
