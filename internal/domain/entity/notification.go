package entity

import "time"

// Notification is an in-app inbox entry, also tracking external delivery
type Notification struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	SubjectID    int64      `json:"subject_id"`
	SubjectKind  string     `json:"subject_kind"`
	Message      string     `json:"message"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Stats holds role-scoped approval counters for one subject kind
type Stats struct {
	Pending  int `json:"pending"`
	Rejected int `json:"rejected"`
	Approved int `json:"approved,omitempty"`
}

// UserStats is the dashboard summary for a user, split by subject kind
type UserStats struct {
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
	Contracts Stats  `json:"contracts"`
	Addenda   Stats  `json:"addenda"`
}
