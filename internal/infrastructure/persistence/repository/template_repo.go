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

// TemplateRepository implements port.TemplateRepository
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) port.TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

const templateColumns = `id, name, owner_user_id, subject_kind, bound_subject_id, custom_stages_count, created_at`

// Create inserts the template row. Stages are written by the stage ledger.
func (r *TemplateRepository) Create(ctx context.Context, tpl *entity.WorkflowTemplate) error {
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now().UTC()
	}

	result, err := executorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO workflow_templates (
			name, owner_user_id, subject_kind, bound_subject_id,
			custom_stages_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		tpl.Name,
		tpl.OwnerUserID,
		tpl.SubjectKind,
		nullInt64(tpl.BoundSubjectID),
		tpl.CustomStagesCount,
		tpl.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create template", zap.String("name", tpl.Name), zap.Error(err))
		return fmt.Errorf("failed to create template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	tpl.ID = id
	return nil
}

// GetByID retrieves a template by ID, without stages
func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	row := executorFor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM workflow_templates WHERE id = ?`, id)

	tpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get template by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tpl, nil
}

// List returns templates newest first. freeOnly restricts to unbound templates.
func (r *TemplateRepository) List(ctx context.Context, freeOnly bool, limit, offset int) ([]*entity.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates`
	if freeOnly {
		query += ` WHERE bound_subject_id IS NULL`
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`

	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list templates", zap.Error(err))
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*entity.WorkflowTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

// Bind claims a free template for a subject
func (r *TemplateRepository) Bind(ctx context.Context, id, subjectID int64, kind string) error {
	result, err := executorFor(ctx, r.db).ExecContext(ctx, `
		UPDATE workflow_templates
		SET bound_subject_id = ?, subject_kind = ?
		WHERE id = ? AND bound_subject_id IS NULL
	`, subjectID, kind, id)
	if err != nil {
		r.logger.Error("Failed to bind template",
			zap.Int64("id", id),
			zap.Int64("subject_id", subjectID),
			zap.Error(err))
		return fmt.Errorf("failed to bind template: %w", err)
	}
	return expectRow(result, fmt.Errorf("%w: template %d is already bound", workflow.ErrConflict, id))
}

func scanTemplate(row rowScanner) (*entity.WorkflowTemplate, error) {
	var tpl entity.WorkflowTemplate
	var bound sql.NullInt64
	if err := row.Scan(
		&tpl.ID,
		&tpl.Name,
		&tpl.OwnerUserID,
		&tpl.SubjectKind,
		&bound,
		&tpl.CustomStagesCount,
		&tpl.CreatedAt,
	); err != nil {
		return nil, err
	}
	tpl.BoundSubjectID = int64Ptr(bound)
	return &tpl, nil
}

var _ port.TemplateRepository = (*TemplateRepository)(nil)
