package container

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/contract-approval/internal/domain/entity"
	domainwf "github.com/garyjia/contract-approval/internal/domain/workflow"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	return &Config{
		Database: DatabaseConfig{Path: filepath.Join(dir, "approval.db"), MaxOpenConns: 4},
		Lock:     LockConfig{Driver: "memory"},
		Storage:  StorageConfig{BaseDir: filepath.Join(dir, "files"), ExportRetention: time.Hour, CleanupInterval: time.Hour},
		Notifications: NotificationsConfig{
			RetryInterval: time.Hour,
			MaxAttempts:   3,
			BatchSize:     10,
		},
		SeedUsers: []*entity.User{
			{ID: 5, Name: "Ana", Role: entity.RoleAuthor},
			{ID: 11, Name: "Ben", Role: entity.RoleApprover},
			{ID: 90, Name: "Dana", Role: entity.RoleFinalAuthority},
		},
	}
}

func startContainer(t *testing.T, cfg *Config) *Container {
	t.Helper()
	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		if !c.closed.Load() {
			_ = c.Close()
		}
	})
	return c
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	cfg := testConfig(t)
	_, err = NewContainer(cfg, nil)
	assert.Error(t, err)

	cfg.Lock.Driver = "zookeeper"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown lock driver")
}

// Assignment, two approvals, inbox and audit trail
func TestContainer_ApprovalFlow(t *testing.T) {
	c := startContainer(t, testConfig(t))
	ctx := context.Background()
	svc := c.Services()

	assert.True(t, c.Ready())
	assert.Equal(t, 2, c.Workers().Count())

	subject := &entity.Subject{Kind: entity.SubjectKindContract, Title: "Supply agreement", AuthorID: 5}
	require.NoError(t, svc.Assignment.RegisterSubject(ctx, subject))

	tpl, err := svc.Assignment.CreateFromStages(ctx, "standard", []domainwf.StageInput{{ApproverID: 11}}, 5)
	require.NoError(t, err)
	require.Len(t, tpl.Stages, 2)

	instance, err := svc.Assignment.Assign(ctx, subject.ID, tpl.ID, 5)
	require.NoError(t, err)

	out, err := c.Engine().Approve(ctx, subject.ID, instance.Stages[0].ID, 11)
	require.NoError(t, err)
	assert.Equal(t, entity.ApprovalStatusPending, out.NewStatus)

	out, err = c.Engine().Approve(ctx, subject.ID, instance.Stages[1].ID, 90)
	require.NoError(t, err)
	assert.Equal(t, entity.ApprovalStatusApproved, out.NewStatus)

	inbox, err := svc.Notification.ListForUser(ctx, 90, false, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 2, "asked to approve, then told the contract is approved")

	authorInbox, err := svc.Notification.ListForUser(ctx, 5, false, 0)
	require.NoError(t, err)
	assert.Empty(t, authorInbox, "contract authors are not notified on approval")

	trail, err := svc.Audit.History(ctx, subject.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, entity.ApprovalStatusApproved, trail[1].NewStatus)

	stats, err := svc.Stats.ForUser(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Contracts.Approved)

	rec := httptest.NewRecorder()
	c.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `approval_transitions_total{operation="approve",result="ok"} 2`)

	health := c.Health(ctx)
	assert.True(t, health.Overall)
	assert.True(t, health.Components["dispatcher"].Healthy)
}

func TestContainer_HealthBeforeStart(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	health := c.Health(context.Background())
	assert.False(t, health.Overall)
	assert.False(t, health.Components["dispatcher"].Healthy)
	assert.Equal(t, "not initialized", health.Components["dispatcher"].Message)
}

func TestContainer_RedisLockDriver(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Lock = LockConfig{Driver: "redis", RedisAddr: mr.Addr(), Prefix: "test:", TTL: time.Second}

	c := startContainer(t, cfg)
	ctx := context.Background()

	subject := &entity.Subject{Kind: entity.SubjectKindContract, Title: "NDA", AuthorID: 5}
	require.NoError(t, c.Services().Assignment.RegisterSubject(ctx, subject))
	_, err := c.Services().Assignment.CreateForSubject(ctx, subject.ID, "nda", nil, 5)
	require.NoError(t, err)

	health := c.Health(ctx)
	assert.True(t, health.Components["redis"].Healthy)
	assert.Empty(t, mr.Keys(), "locks are released after the call")
}

func TestContainer_RedisUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Lock = LockConfig{Driver: "redis", RedisAddr: "127.0.0.1:1"}

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	err = c.Start(context.Background())
	assert.ErrorContains(t, err, "redis")
	assert.False(t, c.Ready())
	assert.NoError(t, c.Close())
}

func TestContainer_Lifecycle(t *testing.T) {
	c := startContainer(t, testConfig(t))

	assert.Error(t, c.Start(context.Background()), "second start")
	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close(), "second close")
	assert.Error(t, c.Start(context.Background()), "start after close")
}
