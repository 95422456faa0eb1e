package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/contract-approval/internal/application/port"
	"github.com/garyjia/contract-approval/internal/domain/entity"
	"github.com/garyjia/contract-approval/internal/domain/event"
	domainwf "github.com/garyjia/contract-approval/internal/domain/workflow"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockLocker struct {
	keys []string
	err  error
}

func (m *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	if m.err != nil {
		return nil, m.err
	}
	m.keys = append(m.keys, key)
	return func() {}, nil
}

type mockDispatcher struct {
	effects []*event.Event
}

func (m *mockDispatcher) DispatchAll(ctx context.Context, evts []*event.Event) error {
	m.effects = append(m.effects, evts...)
	return nil
}

func (m *mockDispatcher) types() []event.Type {
	out := make([]event.Type, len(m.effects))
	for i, e := range m.effects {
		out[i] = e.Type
	}
	return out
}

type mockMetrics struct {
	transitions map[string]int
	clones      int
	channels    map[string]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{transitions: map[string]int{}, channels: map[string]int{}}
}

func (m *mockMetrics) RecordTransition(op string, err error, _ time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.transitions[op+":"+result]++
}
func (m *mockMetrics) RecordClone(string) { m.clones++ }
func (m *mockMetrics) RecordNotification(channel string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.channels[channel+":"+result]++
}
func (m *mockMetrics) RecordEffectFailure(string) {}

type mockUserRepo struct {
	users      map[int64]*entity.User
	getByIDErr error
}

func newMockUserRepo(users ...*entity.User) *mockUserRepo {
	m := &mockUserRepo{users: make(map[int64]*entity.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) Upsert(ctx context.Context, user *entity.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	if m.getByIDErr != nil {
		return nil, m.getByIDErr
	}
	return m.users[id], nil
}

func (m *mockUserRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]*entity.User, error) {
	out := make(map[int64]*entity.User)
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (m *mockUserRepo) ListByRole(ctx context.Context, role string) ([]*entity.User, error) {
	var out []*entity.User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type mockSubjectRepo struct {
	subjects map[int64]*entity.Subject
	nextID   int64
}

func newMockSubjectRepo() *mockSubjectRepo {
	return &mockSubjectRepo{subjects: make(map[int64]*entity.Subject), nextID: 1}
}

func (m *mockSubjectRepo) Create(ctx context.Context, subject *entity.Subject) error {
	subject.ID = m.nextID
	m.nextID++
	cp := *subject
	m.subjects[subject.ID] = &cp
	return nil
}

func (m *mockSubjectRepo) GetByID(ctx context.Context, id int64) (*entity.Subject, error) {
	s, ok := m.subjects[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockSubjectRepo) SetWorkflow(ctx context.Context, id, templateID int64, status string) error {
	s, ok := m.subjects[id]
	if !ok {
		return domainwf.ErrSubjectNotFound
	}
	s.WorkflowTemplateID = &templateID
	s.ApprovalStatus = status
	return nil
}

func (m *mockSubjectRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	s, ok := m.subjects[id]
	if !ok {
		return domainwf.ErrSubjectNotFound
	}
	s.ApprovalStatus = status
	return nil
}

type mockTemplateRepo struct {
	templates map[int64]*entity.WorkflowTemplate
	nextID    int64
}

func newMockTemplateRepo() *mockTemplateRepo {
	return &mockTemplateRepo{templates: make(map[int64]*entity.WorkflowTemplate), nextID: 100}
}

func (m *mockTemplateRepo) Create(ctx context.Context, tpl *entity.WorkflowTemplate) error {
	tpl.ID = m.nextID
	m.nextID++
	cp := *tpl
	cp.Stages = nil
	m.templates[tpl.ID] = &cp
	return nil
}

func (m *mockTemplateRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	t, ok := m.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *mockTemplateRepo) List(ctx context.Context, freeOnly bool, limit, offset int) ([]*entity.WorkflowTemplate, error) {
	var out []*entity.WorkflowTemplate
	for _, t := range m.templates {
		if freeOnly && t.IsBound() {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *mockTemplateRepo) Bind(ctx context.Context, id, subjectID int64, kind string) error {
	t, ok := m.templates[id]
	if !ok || t.IsBound() {
		return fmt.Errorf("%w: template %d is already bound", domainwf.ErrConflict, id)
	}
	t.BoundSubjectID = &subjectID
	t.SubjectKind = kind
	return nil
}

type mockStageRepo struct {
	stages map[int64][]*entity.Stage
	nextID int64
}

func newMockStageRepo() *mockStageRepo {
	return &mockStageRepo{stages: make(map[int64][]*entity.Stage), nextID: 1}
}

func (m *mockStageRepo) CreateBatch(ctx context.Context, templateID int64, stages []*entity.Stage) error {
	for _, s := range stages {
		s.ID = m.nextID
		s.TemplateID = templateID
		m.nextID++
		cp := *s
		m.stages[templateID] = append(m.stages[templateID], &cp)
	}
	return nil
}

func (m *mockStageRepo) GetByTemplateID(ctx context.Context, templateID int64) ([]*entity.Stage, error) {
	var out []*entity.Stage
	for _, s := range m.stages[templateID] {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockStageRepo) UpdateDecision(ctx context.Context, stage *entity.Stage, fromStatus string) error {
	for _, s := range m.stages[stage.TemplateID] {
		if s.ID != stage.ID {
			continue
		}
		if s.Status != fromStatus {
			return domainwf.ErrAlreadyProcessed
		}
		s.Status = stage.Status
		s.ApprovedAt = stage.ApprovedAt
		s.Comment = stage.Comment
		return nil
	}
	return domainwf.ErrStageNotFound
}

func (m *mockStageRepo) statuses(templateID int64) []string {
	var out []string
	for _, s := range m.stages[templateID] {
		out = append(out, s.Status)
	}
	return out
}

type mockNotificationRepo struct {
	notifications map[int64]*entity.Notification
	nextID        int64
	createErr     error
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{notifications: make(map[int64]*entity.Notification), nextID: 1}
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	n.ID = m.nextID
	m.nextID++
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	return m.notifications[id], nil
}

func (m *mockNotificationRepo) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	var out []*entity.Notification
	for _, n := range m.notifications {
		if n.UserID == userID && (!unreadOnly || n.ReadAt == nil) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) ListFailed(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error) {
	var out []*entity.Notification
	for _, n := range m.notifications {
		if n.Status == entity.NotificationStatusFailed && n.Attempts < maxAttempts {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockNotificationRepo) RecordAttempt(ctx context.Context, id int64, status, errorMsg string) error {
	n, ok := m.notifications[id]
	if !ok {
		return fmt.Errorf("notification %d: %w", id, domainwf.ErrNotFound)
	}
	n.Attempts++
	n.Status = status
	n.ErrorMessage = errorMsg
	return nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, userID int64) error {
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return fmt.Errorf("notification %d: %w", id, domainwf.ErrNotFound)
	}
	now := time.Now()
	n.ReadAt = &now
	return nil
}

type mockMessageSender struct {
	SendTextFunc func(ctx context.Context, openID, content string) error
	sent         []string
}

func (m *mockMessageSender) SendText(ctx context.Context, openID, content string) error {
	m.sent = append(m.sent, openID)
	if m.SendTextFunc != nil {
		return m.SendTextFunc(ctx, openID, content)
	}
	return nil
}

type mockMailSender struct {
	SendMailFunc func(ctx context.Context, email, subject, body string) error
	subjects     []string
}

func (m *mockMailSender) SendMail(ctx context.Context, email, subject, body string) error {
	m.subjects = append(m.subjects, subject)
	if m.SendMailFunc != nil {
		return m.SendMailFunc(ctx, email, subject, body)
	}
	return nil
}

type mockHistoryRepo struct {
	histories []*entity.ApprovalHistory
	createErr error
}

func (m *mockHistoryRepo) Create(ctx context.Context, h *entity.ApprovalHistory) error {
	if m.createErr != nil {
		return m.createErr
	}
	h.ID = int64(len(m.histories) + 1)
	m.histories = append(m.histories, h)
	return nil
}

func (m *mockHistoryRepo) GetBySubjectID(ctx context.Context, subjectID int64) ([]*entity.ApprovalHistory, error) {
	var out []*entity.ApprovalHistory
	for _, h := range m.histories {
		if h.SubjectID == subjectID {
			out = append(out, h)
		}
	}
	return out, nil
}

type mockStatsRepo struct {
	AuthorCountsFunc         func(ctx context.Context, userID int64) (map[string]entity.Stats, error)
	ApproverCountsFunc       func(ctx context.Context, userID int64) (map[string]entity.Stats, error)
	FinalAuthorityCountsFunc func(ctx context.Context, userID int64) (map[string]entity.Stats, error)
}

func (m *mockStatsRepo) AuthorCounts(ctx context.Context, userID int64) (map[string]entity.Stats, error) {
	return m.AuthorCountsFunc(ctx, userID)
}

func (m *mockStatsRepo) ApproverCounts(ctx context.Context, userID int64) (map[string]entity.Stats, error) {
	return m.ApproverCountsFunc(ctx, userID)
}

func (m *mockStatsRepo) FinalAuthorityCounts(ctx context.Context, userID int64) (map[string]entity.Stats, error) {
	return m.FinalAuthorityCountsFunc(ctx, userID)
}

type mockStorage struct {
	files   map[string][]byte
	saveErr error
}

func (m *mockStorage) Save(ctx context.Context, path string, content []byte) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[path] = content
	return nil
}

func (m *mockStorage) Read(ctx context.Context, path string) ([]byte, error) {
	return m.files[path], nil
}

func (m *mockStorage) Exists(ctx context.Context, path string) bool {
	_, ok := m.files[path]
	return ok
}

func (m *mockStorage) Delete(ctx context.Context, path string) error {
	delete(m.files, path)
	return nil
}

func (m *mockStorage) GetFullPath(relativePath string) string {
	return "/data/" + relativePath
}

var (
	_ port.UserRepository         = (*mockUserRepo)(nil)
	_ port.SubjectRepository      = (*mockSubjectRepo)(nil)
	_ port.TemplateRepository     = (*mockTemplateRepo)(nil)
	_ port.StageRepository        = (*mockStageRepo)(nil)
	_ port.NotificationRepository = (*mockNotificationRepo)(nil)
	_ port.HistoryRepository      = (*mockHistoryRepo)(nil)
	_ port.StatsRepository        = (*mockStatsRepo)(nil)
	_ port.FileStorage            = (*mockStorage)(nil)
)
