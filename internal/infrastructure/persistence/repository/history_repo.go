package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/contract-approval/internal/application/port"
	"github.com/garyjia/contract-approval/internal/domain/entity"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{db: db, logger: logger}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, history *entity.ApprovalHistory) error {
	if history.Timestamp.IsZero() {
		history.Timestamp = time.Now().UTC()
	}

	result, err := executorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO approval_history (
			subject_id, subject_kind, actor_user_id, previous_status,
			new_status, action_type, action_data, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		history.SubjectID,
		history.SubjectKind,
		history.ActorUserID,
		history.PreviousStatus,
		history.NewStatus,
		history.ActionType,
		history.ActionData,
		history.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to create history record",
			zap.Int64("subject_id", history.SubjectID),
			zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	history.ID = id
	return nil
}

// GetBySubjectID retrieves the trail of a subject, oldest first
func (r *HistoryRepository) GetBySubjectID(ctx context.Context, subjectID int64) ([]*entity.ApprovalHistory, error) {
	rows, err := executorFor(ctx, r.db).QueryContext(ctx, `
		SELECT id, subject_id, subject_kind, actor_user_id, previous_status,
			new_status, action_type, action_data, timestamp
		FROM approval_history
		WHERE subject_id = ?
		ORDER BY timestamp ASC, id ASC
	`, subjectID)
	if err != nil {
		r.logger.Error("Failed to get history by subject ID", zap.Int64("subject_id", subjectID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.ApprovalHistory
	for rows.Next() {
		var record entity.ApprovalHistory
		if err := rows.Scan(
			&record.ID,
			&record.SubjectID,
			&record.SubjectKind,
			&record.ActorUserID,
			&record.PreviousStatus,
			&record.NewStatus,
			&record.ActionType,
			&record.ActionData,
			&record.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
