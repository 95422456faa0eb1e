package event

// Type identifies the type of domain event
type Type string

const (
	// TypeApprovalRequested asks the recipient to act on the stage that just became active
	TypeApprovalRequested Type = "approval.requested"
	// TypeSubjectApproved tells the recipient the whole chain approved the subject
	TypeSubjectApproved Type = "subject.approved"
	// TypeSubjectRejected tells the recipient a stage rejected the subject
	TypeSubjectRejected Type = "subject.rejected"
	// TypeStatusChanged records a subject approval status change for the audit trail
	TypeStatusChanged Type = "subject.status_changed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeApprovalRequested,
		TypeSubjectApproved,
		TypeSubjectRejected,
		TypeStatusChanged:
		return true
	default:
		return false
	}
}

// IsNotification reports whether the event addresses a single recipient
func (t Type) IsNotification() bool {
	return t == TypeApprovalRequested || t == TypeSubjectApproved || t == TypeSubjectRejected
}

// Payload keys shared by producers and handlers
const (
	KeyRecipientID    = "recipient_id"
	KeyActorID        = "actor_id"
	KeyStageID        = "stage_id"
	KeyStageOrder     = "stage_order"
	KeyComment        = "comment"
	KeyPreviousStatus = "previous_status"
	KeyNewStatus      = "new_status"
	KeyAction         = "action"
	KeySummary        = "summary"
)
