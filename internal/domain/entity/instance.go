package entity

import "time"

// WorkflowTemplate is an ordered chain of approval stages. Once bound to a
// subject it is that subject's workflow instance.
type WorkflowTemplate struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	OwnerUserID       int64     `json:"owner_user_id"`
	SubjectKind       string    `json:"subject_kind,omitempty"`
	BoundSubjectID    *int64    `json:"bound_subject_id,omitempty"`
	CustomStagesCount int       `json:"custom_stages_count"`
	CreatedAt         time.Time `json:"created_at"`
	Stages            []*Stage  `json:"stages,omitempty"`
}

// IsBound reports whether the template is already an instance of some subject
func (t *WorkflowTemplate) IsBound() bool {
	return t.BoundSubjectID != nil
}

// Stage is one approver's slot within a workflow template
type Stage struct {
	ID         int64      `json:"id"`
	TemplateID int64      `json:"template_id"`
	Order      int        `json:"order"`
	ApproverID int64      `json:"approver_id"`
	Status     string     `json:"status"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
}

// Subject is a contract or an addendum that goes through approval
type Subject struct {
	ID                 int64     `json:"id"`
	Kind               string    `json:"kind"`
	Title              string    `json:"title"`
	AuthorID           int64     `json:"author_id"`
	ParentID           *int64    `json:"parent_id,omitempty"`
	ApprovalStatus     string    `json:"approval_status"`
	WorkflowTemplateID *int64    `json:"workflow_template_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Ref returns the lightweight reference handed to notification and audit collaborators
func (s *Subject) Ref() SubjectRef {
	return SubjectRef{ID: s.ID, Kind: s.Kind}
}

// SubjectRef identifies a subject without carrying its state
type SubjectRef struct {
	ID   int64  `json:"id"`
	Kind string `json:"kind"`
}

// User is a directory entry. Roles drive authorization and stats scoping.
type User struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	LarkOpenID string    `json:"lark_open_id,omitempty"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}
