package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/contract-approval/internal/application/port"
	"github.com/garyjia/contract-approval/internal/domain/entity"
	domainwf "github.com/garyjia/contract-approval/internal/domain/workflow"
)

// AuditService appends to and reads the approval trail of subjects
type AuditService interface {
	port.AuditRecorder
	History(ctx context.Context, subjectID int64) ([]*entity.ApprovalHistory, error)
}

type auditServiceImpl struct {
	historyRepo port.HistoryRepository
	subjectRepo port.SubjectRepository
	logger      Logger
	now         func() time.Time
}

// NewAuditService creates a new AuditService
func NewAuditService(historyRepo port.HistoryRepository, subjectRepo port.SubjectRepository, logger Logger) AuditService {
	return &auditServiceImpl{
		historyRepo: historyRepo,
		subjectRepo: subjectRepo,
		logger:      logger,
		now:         utcNow,
	}
}

func (s *auditServiceImpl) Record(ctx context.Context, ref entity.SubjectRef, oldStatus, newStatus string, actorID int64, action, summary string) error {
	history := &entity.ApprovalHistory{
		SubjectID:      ref.ID,
		SubjectKind:    ref.Kind,
		ActorUserID:    actorID,
		PreviousStatus: oldStatus,
		NewStatus:      newStatus,
		ActionType:     action,
		ActionData:     summary,
		Timestamp:      s.now(),
	}
	if err := s.historyRepo.Create(ctx, history); err != nil {
		s.logger.Error("Failed to record history", "error", err, "subject_id", ref.ID, "action", action)
		return fmt.Errorf("create history: %w", err)
	}

	s.logger.Info("Approval history recorded",
		"subject_id", ref.ID,
		"previous_status", oldStatus,
		"new_status", newStatus,
		"action", action,
	)
	return nil
}

func (s *auditServiceImpl) History(ctx context.Context, subjectID int64) ([]*entity.ApprovalHistory, error) {
	subject, err := s.subjectRepo.GetByID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	if subject == nil {
		return nil, fmt.Errorf("%w: %d", domainwf.ErrSubjectNotFound, subjectID)
	}

	history, err := s.historyRepo.GetBySubjectID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return history, nil
}
