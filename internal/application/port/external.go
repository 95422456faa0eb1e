package port

import (
	"context"

	"github.com/garyjia/contract-approval/internal/domain/entity"
)

// MessageSender pushes a short text to a user's chat inbox
type MessageSender interface {
	SendText(ctx context.Context, openID string, content string) error
}

// MailSender delivers an email-style message
type MailSender interface {
	SendMail(ctx context.Context, email, subject, body string) error
}

// NotificationDispatcher informs a user about a subject
type NotificationDispatcher interface {
	Notify(ctx context.Context, userID int64, message string, ref entity.SubjectRef) error
}

// AuditRecorder appends to a subject's approval trail
type AuditRecorder interface {
	Record(ctx context.Context, ref entity.SubjectRef, oldStatus, newStatus string, actorID int64, action, summary string) error
}

// Locker serialises work on one key across goroutines (and, depending on the
// implementation, across processes). The returned release func is idempotent.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}
