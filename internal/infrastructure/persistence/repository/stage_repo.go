package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/contract-approval/internal/application/port"
	"github.com/garyjia/contract-approval/internal/domain/entity"
	"github.com/garyjia/contract-approval/internal/domain/workflow"
)

// StageRepository implements port.StageRepository
type StageRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStageRepository creates a new stage repository
func NewStageRepository(db *sql.DB, logger *zap.Logger) port.StageRepository {
	return &StageRepository{db: db, logger: logger}
}

// CreateBatch inserts all stages of a template, filling in their IDs
func (r *StageRepository) CreateBatch(ctx context.Context, templateID int64, stages []*entity.Stage) error {
	exec := executorFor(ctx, r.db)
	for _, stage := range stages {
		result, err := exec.ExecContext(ctx, `
			INSERT INTO workflow_stages (
				template_id, stage_order, approver_id, status,
				approved_at, comment, start_date, due_date
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			templateID,
			stage.Order,
			stage.ApproverID,
			stage.Status,
			nullTime(stage.ApprovedAt),
			nullString(stage.Comment),
			nullTime(stage.StartDate),
			nullTime(stage.DueDate),
		)
		if err != nil {
			r.logger.Error("Failed to create stage",
				zap.Int64("template_id", templateID),
				zap.Int("order", stage.Order),
				zap.Error(err))
			return fmt.Errorf("failed to create stage %d: %w", stage.Order, err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		stage.ID = id
		stage.TemplateID = templateID
	}
	return nil
}

// GetByTemplateID retrieves the stages of a template in chain order
func (r *StageRepository) GetByTemplateID(ctx context.Context, templateID int64) ([]*entity.Stage, error) {
	rows, err := executorFor(ctx, r.db).QueryContext(ctx, `
		SELECT id, template_id, stage_order, approver_id, status,
			approved_at, comment, start_date, due_date
		FROM workflow_stages
		WHERE template_id = ?
		ORDER BY stage_order ASC
	`, templateID)
	if err != nil {
		r.logger.Error("Failed to get stages", zap.Int64("template_id", templateID), zap.Error(err))
		return nil, fmt.Errorf("failed to get stages: %w", err)
	}
	defer rows.Close()

	var stages []*entity.Stage
	for rows.Next() {
		var s entity.Stage
		var approvedAt, startDate, dueDate sql.NullTime
		var comment sql.NullString
		if err := rows.Scan(
			&s.ID,
			&s.TemplateID,
			&s.Order,
			&s.ApproverID,
			&s.Status,
			&approvedAt,
			&comment,
			&startDate,
			&dueDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		s.ApprovedAt = timePtr(approvedAt)
		s.StartDate = timePtr(startDate)
		s.DueDate = timePtr(dueDate)
		s.Comment = comment.String
		stages = append(stages, &s)
	}
	return stages, rows.Err()
}

// UpdateDecision writes the stage decision if the stored status still equals fromStatus
func (r *StageRepository) UpdateDecision(ctx context.Context, stage *entity.Stage, fromStatus string) error {
	result, err := executorFor(ctx, r.db).ExecContext(ctx, `
		UPDATE workflow_stages
		SET status = ?, approved_at = ?, comment = ?
		WHERE id = ? AND status = ?
	`,
		stage.Status,
		nullTime(stage.ApprovedAt),
		nullString(stage.Comment),
		stage.ID,
		fromStatus,
	)
	if err != nil {
		r.logger.Error("Failed to update stage",
			zap.Int64("stage_id", stage.ID),
			zap.String("status", stage.Status),
			zap.Error(err))
		return fmt.Errorf("failed to update stage: %w", err)
	}
	return expectRow(result, fmt.Errorf("%w: stage %d left %s", workflow.ErrAlreadyProcessed, stage.ID, fromStatus))
}

var _ port.StageRepository = (*StageRepository)(nil)
