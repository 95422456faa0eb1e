package entity

import "time"

// ApprovalHistory represents the audit trail of a subject's approval status
type ApprovalHistory struct {
	ID             int64     `json:"id"`
	SubjectID      int64     `json:"subject_id"`
	SubjectKind    string    `json:"subject_kind"`
	ActorUserID    int64     `json:"actor_user_id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	ActionType     string    `json:"action_type"`
	ActionData     string    `json:"action_data"`
	Timestamp      time.Time `json:"timestamp"`
}
