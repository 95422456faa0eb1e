package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a side effect produced by a committed workflow transition
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	SubjectID     int64                  `json:"subject_id"`
	SubjectKind   string                 `json:"subject_kind"`
	TemplateID    int64                  `json:"template_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with a fresh ID and correlation chain
func NewEvent(eventType Type, subjectID int64, subjectKind string, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, subjectID, subjectKind, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to an existing correlation chain.
// All effects of one transition share a correlation ID.
func NewEventWithCorrelation(eventType Type, subjectID int64, subjectKind string, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		SubjectID:     subjectID,
		SubjectKind:   subjectKind,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithTemplate returns a copy of the event tagged with the workflow instance ID
func (e *Event) WithTemplate(templateID int64) *Event {
	cp := *e
	cp.TemplateID = templateID
	return &cp
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}
