package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/contract-approval/internal/application/port"
	"github.com/garyjia/contract-approval/internal/domain/entity"
	domainwf "github.com/garyjia/contract-approval/internal/domain/workflow"
)

// Notification channel names used in metrics
const (
	ChannelLarkIM   = "lark_im"
	ChannelLarkMail = "lark_mail"
)

// NotificationService keeps the in-app inbox and pushes notifications out
// over the configured channels
type NotificationService interface {
	port.NotificationDispatcher

	ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*entity.Notification, error)
	MarkRead(ctx context.Context, id, userID int64) error

	// RetryFailed redelivers failed notifications that have attempts left and
	// returns how many were sent
	RetryFailed(ctx context.Context, maxAttempts, limit int) (int, error)
}

type notificationServiceImpl struct {
	userRepo         port.UserRepository
	notificationRepo port.NotificationRepository
	messageSender    port.MessageSender
	mailSender       port.MailSender
	metrics          port.Metrics
	logger           Logger
}

// NewNotificationService creates a new NotificationService. A nil sender
// disables that channel; the inbox row is always written.
func NewNotificationService(
	userRepo port.UserRepository,
	notificationRepo port.NotificationRepository,
	messageSender port.MessageSender,
	mailSender port.MailSender,
	metrics port.Metrics,
	logger Logger,
) NotificationService {
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	return &notificationServiceImpl{
		userRepo:         userRepo,
		notificationRepo: notificationRepo,
		messageSender:    messageSender,
		mailSender:       mailSender,
		metrics:          metrics,
		logger:           logger,
	}
}

func (s *notificationServiceImpl) Notify(ctx context.Context, userID int64, message string, ref entity.SubjectRef) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("%w: %d", domainwf.ErrUserNotFound, userID)
	}

	n := &entity.Notification{
		UserID:      userID,
		SubjectID:   ref.ID,
		SubjectKind: ref.Kind,
		Message:     message,
		Status:      entity.NotificationStatusPending,
	}
	if err := s.notificationRepo.Create(ctx, n); err != nil {
		s.logger.Error("Failed to create notification", "error", err, "user_id", userID)
		return fmt.Errorf("create notification: %w", err)
	}

	if err := s.deliver(ctx, user, n); err != nil {
		return fmt.Errorf("deliver notification %d: %w", n.ID, err)
	}
	return nil
}

// deliver pushes n over every channel the user can be reached on and records the attempt
func (s *notificationServiceImpl) deliver(ctx context.Context, user *entity.User, n *entity.Notification) error {
	var errs []error

	if s.messageSender != nil && user.LarkOpenID != "" {
		err := s.messageSender.SendText(ctx, user.LarkOpenID, n.Message)
		s.metrics.RecordNotification(ChannelLarkIM, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ChannelLarkIM, err))
		}
	}

	if s.mailSender != nil && user.Email != "" {
		err := s.mailSender.SendMail(ctx, user.Email, mailSubject(n), n.Message)
		s.metrics.RecordNotification(ChannelLarkMail, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ChannelLarkMail, err))
		}
	}

	deliveryErr := errors.Join(errs...)
	status, errMsg := entity.NotificationStatusSent, ""
	if deliveryErr != nil {
		status, errMsg = entity.NotificationStatusFailed, deliveryErr.Error()
	}

	if err := s.notificationRepo.RecordAttempt(ctx, n.ID, status, errMsg); err != nil {
		s.logger.Error("Failed to record notification attempt", "error", err, "notification_id", n.ID)
		return errors.Join(deliveryErr, err)
	}

	if deliveryErr != nil {
		s.logger.Error("Notification delivery failed",
			"error", deliveryErr,
			"notification_id", n.ID,
			"user_id", user.ID,
		)
		return deliveryErr
	}

	s.logger.Info("Notification sent",
		"notification_id", n.ID,
		"user_id", user.ID,
		"subject_id", n.SubjectID,
	)
	return nil
}

func (s *notificationServiceImpl) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	list, err := s.notificationRepo.ListByUser(ctx, userID, unreadOnly, pageSize(limit))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

func (s *notificationServiceImpl) MarkRead(ctx context.Context, id, userID int64) error {
	return s.notificationRepo.MarkRead(ctx, id, userID)
}

func (s *notificationServiceImpl) RetryFailed(ctx context.Context, maxAttempts, limit int) (int, error) {
	failed, err := s.notificationRepo.ListFailed(ctx, maxAttempts, pageSize(limit))
	if err != nil {
		return 0, fmt.Errorf("list failed notifications: %w", err)
	}

	sent := 0
	for _, n := range failed {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		user, err := s.userRepo.GetByID(ctx, n.UserID)
		if err != nil || user == nil {
			s.logger.Error("Skipping notification retry, user unavailable",
				"notification_id", n.ID,
				"user_id", n.UserID,
				"error", err,
			)
			continue
		}
		if s.deliver(ctx, user, n) == nil {
			sent++
		}
	}

	if len(failed) > 0 {
		s.logger.Info("Notification retry pass finished", "candidates", len(failed), "sent", sent)
	}
	return sent, nil
}

func mailSubject(n *entity.Notification) string {
	kind := "Contract"
	if n.SubjectKind == entity.SubjectKindAddendum {
		kind = "Addendum"
	}
	return fmt.Sprintf("[%s #%d] Approval workflow update", kind, n.SubjectID)
}
