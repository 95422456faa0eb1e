package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/contract-approval/internal/application/service"
	"github.com/garyjia/contract-approval/internal/application/workflow"
	"github.com/garyjia/contract-approval/internal/domain/entity"
	domainwf "github.com/garyjia/contract-approval/internal/domain/workflow"
	"github.com/garyjia/contract-approval/pkg/utils"
)

const (
	maxTitleRunes   = 200
	maxCommentRunes = 2000
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine       workflow.Engine
	assignment   service.AssignmentService
	notification service.NotificationService
	audit        service.AuditService
	stats        service.StatsService
	health       HealthFunc
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, logger *zap.Logger) *Handlers {
	return &Handlers{
		engine:       deps.Engine,
		assignment:   deps.Assignment,
		notification: deps.Notification,
		audit:        deps.Audit,
		stats:        deps.Stats,
		health:       deps.Health,
		logger:       logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// CreateTemplateRequest is the body of POST /api/templates
type CreateTemplateRequest struct {
	Name   string                `json:"name" binding:"required"`
	Stages []domainwf.StageInput `json:"stages"`
}

// RegisterSubjectRequest is the body of POST /api/subjects
type RegisterSubjectRequest struct {
	Kind     string `json:"kind" binding:"required"`
	Title    string `json:"title" binding:"required"`
	ParentID *int64 `json:"parent_id"`
}

// AssignWorkflowRequest is the body of POST /api/subjects/:id/workflow.
// Either TemplateID names an existing template, or Name and Stages describe
// a new one built for the subject.
type AssignWorkflowRequest struct {
	TemplateID *int64                `json:"template_id"`
	Name       string                `json:"name"`
	Stages     []domainwf.StageInput `json:"stages"`
}

// RejectRequest is the body of the reject endpoint
type RejectRequest struct {
	Comment string `json:"comment"`
}

// ListTemplatesQuery holds query parameters for listing templates
type ListTemplatesQuery struct {
	Free   bool `form:"free"`
	Limit  int  `form:"limit"`
	Offset int  `form:"offset"`
}

// ListNotificationsQuery holds query parameters for the caller's inbox
type ListNotificationsQuery struct {
	Unread bool `form:"unread"`
	Limit  int  `form:"limit"`
}

// TransitionResponse is the committed result of approve, reject or resubmit
type TransitionResponse struct {
	Subject        *entity.Subject `json:"subject"`
	Stages         []*entity.Stage `json:"stages"`
	PreviousStatus string          `json:"previous_status"`
	NewStatus      string          `json:"new_status"`
}

func newTransitionResponse(out *domainwf.Outcome) TransitionResponse {
	return TransitionResponse{
		Subject:        out.Subject,
		Stages:         out.Stages,
		PreviousStatus: out.PreviousStatus,
		NewStatus:      out.NewStatus,
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.health == nil {
		respondOK(c, http.StatusOK, resp)
		return
	}

	healthy, details := h.health(c.Request.Context())
	resp.Components = details
	if !healthy {
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: resp, Error: "service unhealthy"})
		return
	}
	respondOK(c, http.StatusOK, resp)
}

// CreateTemplate handles POST /api/templates
func (h *Handlers) CreateTemplate(c *gin.Context) {
	actor, _ := actorFrom(c)

	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	tmpl, err := h.assignment.CreateFromStages(c.Request.Context(), utils.SanitizeText(req.Name, maxTitleRunes), req.Stages, actor)
	if err != nil {
		h.respondError(c, "create_template", err)
		return
	}
	respondOK(c, http.StatusCreated, tmpl)
}

// ListTemplates handles GET /api/templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	var q ListTemplatesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBadRequest(c, "invalid query parameters")
		return
	}

	templates, err := h.assignment.ListTemplates(c.Request.Context(), q.Free, q.Limit, q.Offset)
	if err != nil {
		h.respondError(c, "list_templates", err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"templates": templates,
		"count":     len(templates),
	})
}

// GetTemplate handles GET /api/templates/:id
func (h *Handlers) GetTemplate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	tmpl, err := h.assignment.GetTemplate(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get_template", err)
		return
	}
	respondOK(c, http.StatusOK, tmpl)
}

// RegisterSubject handles POST /api/subjects. The caller becomes the author.
func (h *Handlers) RegisterSubject(c *gin.Context) {
	actor, _ := actorFrom(c)

	var req RegisterSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	subject := &entity.Subject{
		Kind:     strings.ToUpper(strings.TrimSpace(req.Kind)),
		Title:    utils.SanitizeText(req.Title, maxTitleRunes),
		AuthorID: actor,
		ParentID: req.ParentID,
	}
	if err := h.assignment.RegisterSubject(c.Request.Context(), subject); err != nil {
		h.respondError(c, "register_subject", err)
		return
	}
	respondOK(c, http.StatusCreated, subject)
}

// GetSubject handles GET /api/subjects/:id
func (h *Handlers) GetSubject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	inst, err := h.engine.Instance(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get_subject", err)
		return
	}
	respondOK(c, http.StatusOK, inst)
}

// AssignWorkflow handles POST /api/subjects/:id/workflow
func (h *Handlers) AssignWorkflow(c *gin.Context) {
	actor, _ := actorFrom(c)
	subjectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req AssignWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	var (
		tmpl *entity.WorkflowTemplate
		err  error
	)
	switch {
	case req.TemplateID != nil:
		tmpl, err = h.assignment.Assign(ctx, subjectID, *req.TemplateID, actor)
	case strings.TrimSpace(req.Name) != "":
		tmpl, err = h.assignment.CreateForSubject(ctx, subjectID, utils.SanitizeText(req.Name, maxTitleRunes), req.Stages, actor)
	default:
		respondBadRequest(c, "template_id or name is required")
		return
	}
	if err != nil {
		h.respondError(c, "assign_workflow", err)
		return
	}
	respondOK(c, http.StatusOK, tmpl)
}

// ApproveStage handles POST /api/subjects/:id/stages/:stageId/approve
func (h *Handlers) ApproveStage(c *gin.Context) {
	actor, _ := actorFrom(c)
	subjectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	stageID, ok := pathID(c, "stageId")
	if !ok {
		return
	}

	out, err := h.engine.Approve(c.Request.Context(), subjectID, stageID, actor)
	if err != nil {
		h.respondError(c, workflow.OpApprove, err)
		return
	}
	respondOK(c, http.StatusOK, newTransitionResponse(out))
}

// RejectStage handles POST /api/subjects/:id/stages/:stageId/reject
func (h *Handlers) RejectStage(c *gin.Context) {
	actor, _ := actorFrom(c)
	subjectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	stageID, ok := pathID(c, "stageId")
	if !ok {
		return
	}

	var req RejectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body")
			return
		}
	}

	out, err := h.engine.Reject(c.Request.Context(), subjectID, stageID, actor, utils.SanitizeText(req.Comment, maxCommentRunes))
	if err != nil {
		h.respondError(c, workflow.OpReject, err)
		return
	}
	respondOK(c, http.StatusOK, newTransitionResponse(out))
}

// Resubmit handles POST /api/subjects/:id/resubmit
func (h *Handlers) Resubmit(c *gin.Context) {
	actor, _ := actorFrom(c)
	subjectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	out, err := h.engine.Resubmit(c.Request.Context(), subjectID, actor)
	if err != nil {
		h.respondError(c, workflow.OpResubmit, err)
		return
	}
	respondOK(c, http.StatusOK, newTransitionResponse(out))
}

// History handles GET /api/subjects/:id/history
func (h *Handlers) History(c *gin.Context) {
	subjectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	entries, err := h.audit.History(c.Request.Context(), subjectID)
	if err != nil {
		h.respondError(c, "history", err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"subject_id": subjectID,
		"entries":    entries,
	})
}

// Stats handles GET /api/stats for the caller
func (h *Handlers) Stats(c *gin.Context) {
	actor, _ := actorFrom(c)

	stats, err := h.stats.ForUser(c.Request.Context(), actor)
	if err != nil {
		h.respondError(c, "stats", err)
		return
	}
	respondOK(c, http.StatusOK, stats)
}

// ExportStats handles GET /api/stats/export and streams an xlsx workbook
func (h *Handlers) ExportStats(c *gin.Context) {
	actor, _ := actorFrom(c)

	export, err := h.stats.Export(c.Request.Context(), actor)
	if err != nil {
		h.respondError(c, "stats_export", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	c.Data(http.StatusOK, xlsxContentType, export.Content)
}

// ListNotifications handles GET /api/notifications for the caller
func (h *Handlers) ListNotifications(c *gin.Context) {
	actor, _ := actorFrom(c)

	var q ListNotificationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBadRequest(c, "invalid query parameters")
		return
	}

	items, err := h.notification.ListForUser(c.Request.Context(), actor, q.Unread, q.Limit)
	if err != nil {
		h.respondError(c, "list_notifications", err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"notifications": items,
		"count":         len(items),
	})
}

// MarkNotificationRead handles POST /api/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.notification.MarkRead(c.Request.Context(), id, actor); err != nil {
		h.respondError(c, "mark_notification_read", err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id, "read": true})
}

// pathID parses a positive int64 path parameter, writing 400 when it is not one
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondBadRequest(c, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}
