package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/contract-approval/internal/application/port"
	"github.com/garyjia/contract-approval/internal/domain/entity"
	domainwf "github.com/garyjia/contract-approval/internal/domain/workflow"
)

const statsSheet = "Stats"

// StatsExport is a rendered stats workbook
type StatsExport struct {
	FileName string
	Path     string // storage path when archived, empty otherwise
	Content  []byte
}

// StatsService computes role-scoped dashboard counters
type StatsService interface {
	ForUser(ctx context.Context, userID int64) (*entity.UserStats, error)
	Export(ctx context.Context, userID int64) (*StatsExport, error)
}

type statsServiceImpl struct {
	userRepo  port.UserRepository
	statsRepo port.StatsRepository
	storage   port.FileStorage
	logger    Logger
	now       func() time.Time
}

// NewStatsService creates a new StatsService. With a non-nil storage every
// export is also archived under exports/.
func NewStatsService(userRepo port.UserRepository, statsRepo port.StatsRepository, storage port.FileStorage, logger Logger) StatsService {
	return &statsServiceImpl{
		userRepo:  userRepo,
		statsRepo: statsRepo,
		storage:   storage,
		logger:    logger,
		now:       utcNow,
	}
}

func (s *statsServiceImpl) ForUser(ctx context.Context, userID int64) (*entity.UserStats, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %d", domainwf.ErrUserNotFound, userID)
	}

	var counts map[string]entity.Stats
	switch user.Role {
	case entity.RoleAuthor:
		counts, err = s.statsRepo.AuthorCounts(ctx, userID)
	case entity.RoleApprover, entity.RoleManager:
		counts, err = s.statsRepo.ApproverCounts(ctx, userID)
	case entity.RoleFinalAuthority:
		counts, err = s.statsRepo.FinalAuthorityCounts(ctx, userID)
	default:
		return nil, fmt.Errorf("%w: unknown role %q", domainwf.ErrValidation, user.Role)
	}
	if err != nil {
		s.logger.Error("Failed to compute stats", "error", err, "user_id", userID, "role", user.Role)
		return nil, fmt.Errorf("compute stats: %w", err)
	}

	return &entity.UserStats{
		UserID:    userID,
		Role:      user.Role,
		Contracts: counts[entity.SubjectKindContract],
		Addenda:   counts[entity.SubjectKindAddendum],
	}, nil
}

func (s *statsServiceImpl) Export(ctx context.Context, userID int64) (*StatsExport, error) {
	stats, err := s.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	content, err := renderStatsWorkbook(stats, s.now())
	if err != nil {
		return nil, err
	}

	export := &StatsExport{
		FileName: fmt.Sprintf("approval_stats_%d_%s.xlsx", userID, s.now().Format("20060102_150405")),
		Content:  content,
	}

	if s.storage != nil {
		path := "exports/" + export.FileName
		if err := s.storage.Save(ctx, path, content); err != nil {
			s.logger.Error("Failed to archive stats export", "error", err, "path", path)
		} else {
			export.Path = path
		}
	}

	s.logger.Info("Stats exported", "user_id", userID, "bytes", len(content))
	return export, nil
}

func renderStatsWorkbook(stats *entity.UserStats, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), statsSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	rows := [][]interface{}{
		{"User", stats.UserID, "Role", stats.Role},
		{"Generated", generatedAt.Format(time.RFC3339)},
		{},
		{"Kind", "Pending", "Rejected", "Approved"},
		{entity.SubjectKindContract, stats.Contracts.Pending, stats.Contracts.Rejected, stats.Contracts.Approved},
		{entity.SubjectKindAddendum, stats.Addenda.Pending, stats.Addenda.Rejected, stats.Addenda.Approved},
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(statsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), nil
}
