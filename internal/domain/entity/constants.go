package entity

// Subject kinds sharing the approval workflow
const (
	SubjectKindContract = "CONTRACT"
	SubjectKindAddendum = "ADDENDUM"
)

// Approval status constants for Subject
const (
	ApprovalStatusNotSubmitted = "NOT_SUBMITTED"
	ApprovalStatusPending      = "APPROVAL_PENDING"
	ApprovalStatusApproved     = "APPROVED"
	ApprovalStatusRejected     = "REJECTED"
)

// Stage status constants
const (
	StageStatusNotStarted = "NOT_STARTED"
	StageStatusApproving  = "APPROVING"
	StageStatusApproved   = "APPROVED"
	StageStatusRejected   = "REJECTED"
)

// User role constants
const (
	RoleAuthor         = "AUTHOR"
	RoleApprover       = "APPROVER"
	RoleManager        = "MANAGER"
	RoleFinalAuthority = "FINAL_AUTHORITY"
)

// Notification status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

// History action types
const (
	ActionAssign   = "ASSIGN"
	ActionApprove  = "APPROVE"
	ActionReject   = "REJECT"
	ActionResubmit = "RESUBMIT"
)

// IsValidSubjectKind reports whether kind names a supported subject kind
func IsValidSubjectKind(kind string) bool {
	return kind == SubjectKindContract || kind == SubjectKindAddendum
}

// IsValidRole reports whether role is a known directory role
func IsValidRole(role string) bool {
	switch role {
	case RoleAuthor, RoleApprover, RoleManager, RoleFinalAuthority:
		return true
	default:
		return false
	}
}
