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

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{db: db, logger: logger}
}

const notificationColumns = `id, user_id, subject_id, subject_kind, message, status,
	attempts, error_message, sent_at, read_at, created_at`

// Create creates a new notification record
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Status == "" {
		n.Status = entity.NotificationStatusPending
	}

	result, err := executorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO notifications (
			user_id, subject_id, subject_kind, message, status,
			attempts, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.UserID,
		n.SubjectID,
		n.SubjectKind,
		n.Message,
		n.Status,
		n.Attempts,
		nullString(n.ErrorMessage),
		n.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.Int64("user_id", n.UserID),
			zap.Int64("subject_id", n.SubjectID),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	n.ID = id
	return nil
}

// GetByID retrieves a notification by ID
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	row := executorFor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)

	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get notification", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// ListByUser returns a user's inbox, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	return r.list(ctx, query, userID, limit)
}

// ListFailed returns failed deliveries still under the attempt budget, oldest first
func (r *NotificationRepository) ListFailed(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error) {
	return r.list(ctx, `SELECT `+notificationColumns+` FROM notifications
		WHERE status = ? AND attempts < ?
		ORDER BY id ASC LIMIT ?`,
		entity.NotificationStatusFailed, maxAttempts, limit)
}

func (r *NotificationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Notification, error) {
	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*entity.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// RecordAttempt bumps the attempt counter and sets the delivery status
func (r *NotificationRepository) RecordAttempt(ctx context.Context, id int64, status, errorMsg string) error {
	var sentAt sql.NullTime
	if status == entity.NotificationStatusSent {
		sentAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	_, err := executorFor(ctx, r.db).ExecContext(ctx, `
		UPDATE notifications
		SET status = ?, attempts = attempts + 1, error_message = ?,
			sent_at = COALESCE(?, sent_at)
		WHERE id = ?
	`, status, nullString(errorMsg), sentAt, id)
	if err != nil {
		r.logger.Error("Failed to record notification attempt",
			zap.Int64("id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update notification: %w", err)
	}
	return nil
}

// MarkRead marks a notification read if it belongs to userID
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID int64) error {
	result, err := executorFor(ctx, r.db).ExecContext(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, ?)
		WHERE id = ? AND user_id = ?
	`, time.Now().UTC(), id, userID)
	if err != nil {
		r.logger.Error("Failed to mark notification read", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return expectRow(result, errNotificationNotFound)
}

func scanNotification(row rowScanner) (*entity.Notification, error) {
	var n entity.Notification
	var errMsg sql.NullString
	var sentAt, readAt sql.NullTime
	if err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.SubjectID,
		&n.SubjectKind,
		&n.Message,
		&n.Status,
		&n.Attempts,
		&errMsg,
		&sentAt,
		&readAt,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	n.ErrorMessage = errMsg.String
	n.SentAt = timePtr(sentAt)
	n.ReadAt = timePtr(readAt)
	return &n, nil
}

var _ port.NotificationRepository = (*NotificationRepository)(nil)
