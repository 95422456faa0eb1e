package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/garyjia/contract-approval/internal/domain/entity"
	domainwf "github.com/garyjia/contract-approval/internal/domain/workflow"
)

func newStatsFixture(storage *mockStorage) (*statsServiceImpl, *[]string) {
	users := newMockUserRepo(
		&entity.User{ID: 5, Role: entity.RoleAuthor},
		&entity.User{ID: 11, Role: entity.RoleApprover},
		&entity.User{ID: 12, Role: entity.RoleManager},
		&entity.User{ID: 90, Role: entity.RoleFinalAuthority},
		&entity.User{ID: 99, Role: "GUEST"},
	)
	var called []string
	counts := func(name string) func(context.Context, int64) (map[string]entity.Stats, error) {
		return func(ctx context.Context, userID int64) (map[string]entity.Stats, error) {
			called = append(called, name)
			return map[string]entity.Stats{
				entity.SubjectKindContract: {Pending: 3, Rejected: 1, Approved: 4},
				entity.SubjectKindAddendum: {Pending: 1},
			}, nil
		}
	}
	repo := &mockStatsRepo{
		AuthorCountsFunc:         counts("author"),
		ApproverCountsFunc:       counts("approver"),
		FinalAuthorityCountsFunc: counts("final"),
	}

	var svc *statsServiceImpl
	if storage == nil {
		svc = NewStatsService(users, repo, nil, &mockLogger{}).(*statsServiceImpl)
	} else {
		svc = NewStatsService(users, repo, storage, &mockLogger{}).(*statsServiceImpl)
	}
	svc.now = func() time.Time { return time.Date(2026, 6, 30, 17, 45, 0, 0, time.UTC) }
	return svc, &called
}

func TestStatsService_RoutesByRole(t *testing.T) {
	tests := []struct {
		userID int64
		want   string
	}{
		{5, "author"},
		{11, "approver"},
		{12, "approver"},
		{90, "final"},
	}

	for _, tt := range tests {
		svc, called := newStatsFixture(nil)
		stats, err := svc.ForUser(context.Background(), tt.userID)
		require.NoError(t, err)
		assert.Equal(t, []string{tt.want}, *called)
		assert.Equal(t, 3, stats.Contracts.Pending)
		assert.Equal(t, 1, stats.Addenda.Pending)
	}
}

func TestStatsService_Errors(t *testing.T) {
	svc, _ := newStatsFixture(nil)

	_, err := svc.ForUser(context.Background(), 404)
	assert.ErrorIs(t, err, domainwf.ErrUserNotFound)

	_, err = svc.ForUser(context.Background(), 99)
	assert.ErrorIs(t, err, domainwf.ErrValidation)

	svc.statsRepo.(*mockStatsRepo).AuthorCountsFunc = func(ctx context.Context, userID int64) (map[string]entity.Stats, error) {
		return nil, errors.New("db locked")
	}
	_, err = svc.ForUser(context.Background(), 5)
	assert.ErrorContains(t, err, "db locked")
}

func TestStatsService_ExportWorkbook(t *testing.T) {
	storage := &mockStorage{}
	svc, _ := newStatsFixture(storage)

	export, err := svc.Export(context.Background(), 11)
	require.NoError(t, err)

	assert.Equal(t, "approval_stats_11_20260630_174500.xlsx", export.FileName)
	assert.Equal(t, "exports/"+export.FileName, export.Path)
	assert.Equal(t, export.Content, storage.files[export.Path])

	f, err := excelize.OpenReader(bytes.NewReader(export.Content))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(statsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"User", "11", "Role", entity.RoleApprover}, rows[0])
	assert.Equal(t, []string{"Kind", "Pending", "Rejected", "Approved"}, rows[3])
	assert.Equal(t, []string{entity.SubjectKindContract, "3", "1", "4"}, rows[4])
	assert.Equal(t, []string{entity.SubjectKindAddendum, "1", "0", "0"}, rows[5])
}

func TestStatsService_ExportArchiveFailureIsNotFatal(t *testing.T) {
	svc, _ := newStatsFixture(&mockStorage{saveErr: errors.New("read-only fs")})

	export, err := svc.Export(context.Background(), 90)
	require.NoError(t, err)
	assert.Empty(t, export.Path)
	assert.NotEmpty(t, export.Content)
}
