package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/contract-approval/internal/application/port"
	"github.com/garyjia/contract-approval/internal/domain/entity"
	"github.com/garyjia/contract-approval/internal/domain/workflow"
)

// SubjectRepository implements port.SubjectRepository
type SubjectRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSubjectRepository creates a new subject repository
func NewSubjectRepository(db *sql.DB, logger *zap.Logger) port.SubjectRepository {
	return &SubjectRepository{db: db, logger: logger}
}

// Create creates a new contract or addendum record
func (r *SubjectRepository) Create(ctx context.Context, subject *entity.Subject) error {
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now
	if subject.ApprovalStatus == "" {
		subject.ApprovalStatus = entity.ApprovalStatusNotSubmitted
	}

	result, err := executorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO subjects (
			kind, title, author_id, parent_id, approval_status,
			workflow_template_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		subject.Kind,
		subject.Title,
		subject.AuthorID,
		nullInt64(subject.ParentID),
		subject.ApprovalStatus,
		nullInt64(subject.WorkflowTemplateID),
		subject.CreatedAt,
		subject.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create subject", zap.String("kind", subject.Kind), zap.Error(err))
		return fmt.Errorf("failed to create subject: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	subject.ID = id
	return nil
}

// GetByID retrieves a subject by ID
func (r *SubjectRepository) GetByID(ctx context.Context, id int64) (*entity.Subject, error) {
	var subject entity.Subject
	var parentID, templateID sql.NullInt64

	err := executorFor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, kind, title, author_id, parent_id, approval_status,
			workflow_template_id, created_at, updated_at
		FROM subjects
		WHERE id = ?
	`, id).Scan(
		&subject.ID,
		&subject.Kind,
		&subject.Title,
		&subject.AuthorID,
		&parentID,
		&subject.ApprovalStatus,
		&templateID,
		&subject.CreatedAt,
		&subject.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get subject by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}

	subject.ParentID = int64Ptr(parentID)
	subject.WorkflowTemplateID = int64Ptr(templateID)
	return &subject, nil
}

// SetWorkflow points the subject at a workflow instance and sets its status
func (r *SubjectRepository) SetWorkflow(ctx context.Context, id, templateID int64, status string) error {
	result, err := executorFor(ctx, r.db).ExecContext(ctx, `
		UPDATE subjects
		SET workflow_template_id = ?, approval_status = ?, updated_at = ?
		WHERE id = ?
	`, templateID, status, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to set subject workflow",
			zap.Int64("id", id),
			zap.Int64("template_id", templateID),
			zap.Error(err))
		return fmt.Errorf("failed to set subject workflow: %w", err)
	}
	return expectRow(result, workflow.ErrSubjectNotFound)
}

// UpdateStatus updates the subject approval status
func (r *SubjectRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	result, err := executorFor(ctx, r.db).ExecContext(ctx,
		`UPDATE subjects SET approval_status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update subject status",
			zap.Int64("id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update status: %w", err)
	}
	return expectRow(result, workflow.ErrSubjectNotFound)
}

func expectRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

var _ port.SubjectRepository = (*SubjectRepository)(nil)
