package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/contract-approval/internal/application/port"
	"github.com/garyjia/contract-approval/internal/domain/entity"
)

// StatsRepository implements port.StatsRepository with grouped counts.
// Stages are reached through subjects.workflow_template_id so superseded
// instances never count.
type StatsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *sql.DB, logger *zap.Logger) port.StatsRepository {
	return &StatsRepository{db: db, logger: logger}
}

// AuthorCounts counts the caller's own subjects awaiting approval or rejected
func (r *StatsRepository) AuthorCounts(ctx context.Context, userID int64) (map[string]entity.Stats, error) {
	return r.grouped(ctx, "author", `
		SELECT kind,
			SUM(CASE WHEN approval_status = 'APPROVAL_PENDING' THEN 1 ELSE 0 END),
			SUM(CASE WHEN approval_status = 'REJECTED' THEN 1 ELSE 0 END),
			0
		FROM subjects
		WHERE author_id = ?
		GROUP BY kind
	`, userID)
}

// ApproverCounts counts stages waiting on the caller and stages the caller rejected
func (r *StatsRepository) ApproverCounts(ctx context.Context, userID int64) (map[string]entity.Stats, error) {
	return r.grouped(ctx, "approver", `
		SELECT s.kind,
			SUM(CASE WHEN st.status = 'APPROVING' THEN 1 ELSE 0 END),
			SUM(CASE WHEN st.status = 'REJECTED' THEN 1 ELSE 0 END),
			0
		FROM workflow_stages st
		JOIN subjects s ON s.workflow_template_id = st.template_id
		WHERE st.approver_id = ?
		GROUP BY s.kind
	`, userID)
}

// FinalAuthorityCounts counts pending and approved subjects whose current
// instance includes the caller at any stage
func (r *StatsRepository) FinalAuthorityCounts(ctx context.Context, userID int64) (map[string]entity.Stats, error) {
	return r.grouped(ctx, "final_authority", `
		SELECT s.kind,
			SUM(CASE WHEN s.approval_status = 'APPROVAL_PENDING' THEN 1 ELSE 0 END),
			0,
			SUM(CASE WHEN s.approval_status = 'APPROVED' THEN 1 ELSE 0 END)
		FROM subjects s
		WHERE EXISTS (
			SELECT 1 FROM workflow_stages st
			WHERE st.template_id = s.workflow_template_id AND st.approver_id = ?
		)
		GROUP BY s.kind
	`, userID)
}

func (r *StatsRepository) grouped(ctx context.Context, scope, query string, userID int64) (map[string]entity.Stats, error) {
	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to count stats",
			zap.String("scope", scope),
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to count %s stats: %w", scope, err)
	}
	defer rows.Close()

	out := make(map[string]entity.Stats)
	for rows.Next() {
		var kind string
		var s entity.Stats
		if err := rows.Scan(&kind, &s.Pending, &s.Rejected, &s.Approved); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		out[kind] = s
	}
	return out, rows.Err()
}

var _ port.StatsRepository = (*StatsRepository)(nil)
