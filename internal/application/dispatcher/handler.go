package dispatcher

import (
	"context"
	"fmt"

	"github.com/garyjia/contract-approval/internal/application/port"
	"github.com/garyjia/contract-approval/internal/domain/entity"
	"github.com/garyjia/contract-approval/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}

// NotificationHandler renders a recipient-addressed effect and hands it to the notifier
func NotificationHandler(notifier port.NotificationDispatcher) Handler {
	return func(ctx context.Context, evt *event.Event) error {
		recipient := evt.GetPayloadInt(event.KeyRecipientID)
		if recipient == 0 {
			return fmt.Errorf("event %s has no recipient", evt.ID)
		}
		ref := entity.SubjectRef{ID: evt.SubjectID, Kind: evt.SubjectKind}
		return notifier.Notify(ctx, recipient, RenderMessage(evt), ref)
	}
}

// AuditHandler appends a status change to the subject's approval trail
func AuditHandler(recorder port.AuditRecorder) Handler {
	return func(ctx context.Context, evt *event.Event) error {
		ref := entity.SubjectRef{ID: evt.SubjectID, Kind: evt.SubjectKind}
		return recorder.Record(ctx, ref,
			evt.GetPayloadString(event.KeyPreviousStatus),
			evt.GetPayloadString(event.KeyNewStatus),
			evt.GetPayloadInt(event.KeyActorID),
			evt.GetPayloadString(event.KeyAction),
			evt.GetPayloadString(event.KeySummary),
		)
	}
}

// workflowEffects are the effect types the transition engine emits
var workflowEffects = []event.Type{
	event.TypeApprovalRequested,
	event.TypeSubjectApproved,
	event.TypeSubjectRejected,
	event.TypeStatusChanged,
}

// RegisterWorkflowHandlers wires the notification and audit handlers
func RegisterWorkflowHandlers(d Dispatcher, notifier port.NotificationDispatcher, recorder port.AuditRecorder) {
	notify := NotificationHandler(notifier)
	for _, t := range []event.Type{event.TypeApprovalRequested, event.TypeSubjectApproved, event.TypeSubjectRejected} {
		d.SubscribeNamed(t, "notification", notify)
	}
	d.SubscribeNamed(event.TypeStatusChanged, "audit", AuditHandler(recorder))
}

// Unrouted returns the workflow effect types that have no handler on d.
// Effects of those types would be dropped silently.
func Unrouted(d Dispatcher) []event.Type {
	var missing []event.Type
	for _, t := range workflowEffects {
		if len(d.ListHandlers(t)) == 0 {
			missing = append(missing, t)
		}
	}
	return missing
}

// RenderMessage produces the user-facing text of a notification effect
func RenderMessage(evt *event.Event) string {
	noun := subjectNoun(evt.SubjectKind)
	switch evt.Type {
	case event.TypeApprovalRequested:
		return fmt.Sprintf("%s #%d is waiting for your approval (stage %d).",
			noun, evt.SubjectID, evt.GetPayloadInt(event.KeyStageOrder))
	case event.TypeSubjectApproved:
		return fmt.Sprintf("%s #%d has been fully approved.", noun, evt.SubjectID)
	case event.TypeSubjectRejected:
		msg := fmt.Sprintf("%s #%d was rejected at stage %d and needs correction.",
			noun, evt.SubjectID, evt.GetPayloadInt(event.KeyStageOrder))
		if c := evt.GetPayloadString(event.KeyComment); c != "" {
			msg += " Comment: " + c
		}
		return msg
	default:
		return fmt.Sprintf("%s #%d: %s", noun, evt.SubjectID, evt.Type)
	}
}

func subjectNoun(kind string) string {
	if kind == entity.SubjectKindAddendum {
		return "Addendum"
	}
	return "Contract"
}
