package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"approval requested", TypeApprovalRequested, true},
		{"subject approved", TypeSubjectApproved, true},
		{"subject rejected", TypeSubjectRejected, true},
		{"status changed", TypeStatusChanged, true},
		{"unknown", Type("instance.created"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eventType.IsValid())
		})
	}
}

func TestType_IsNotification(t *testing.T) {
	assert.True(t, TypeApprovalRequested.IsNotification())
	assert.True(t, TypeSubjectApproved.IsNotification())
	assert.True(t, TypeSubjectRejected.IsNotification())
	assert.False(t, TypeStatusChanged.IsNotification())
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeSubjectRejected, 42, "CONTRACT", map[string]interface{}{
		KeyRecipientID: int64(7),
		KeyComment:     "price too high",
	})

	require.NotNil(t, evt)
	assert.NotEmpty(t, evt.ID)
	assert.NotEmpty(t, evt.CorrelationID)
	assert.NotEqual(t, evt.ID, evt.CorrelationID)
	assert.Equal(t, int64(42), evt.SubjectID)
	assert.Equal(t, "CONTRACT", evt.SubjectKind)
	assert.False(t, evt.Timestamp.IsZero())
	assert.Equal(t, int64(7), evt.GetPayloadInt(KeyRecipientID))
	assert.Equal(t, "price too high", evt.GetPayloadString(KeyComment))
}

func TestNewEventWithCorrelation_SharesChain(t *testing.T) {
	a := NewEventWithCorrelation(TypeStatusChanged, 1, "ADDENDUM", nil, "chain-1")
	b := NewEventWithCorrelation(TypeApprovalRequested, 1, "ADDENDUM", nil, "chain-1")

	assert.Equal(t, a.CorrelationID, b.CorrelationID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotNil(t, a.Payload)
}

func TestEvent_WithPayloadDoesNotMutate(t *testing.T) {
	original := NewEvent(TypeStatusChanged, 1, "CONTRACT", map[string]interface{}{KeyNewStatus: "APPROVED"})
	updated := original.WithPayload(KeySummary, "done")

	assert.Equal(t, "", original.GetPayloadString(KeySummary))
	assert.Equal(t, "done", updated.GetPayloadString(KeySummary))
	assert.Equal(t, "APPROVED", updated.GetPayloadString(KeyNewStatus))
	assert.Equal(t, original.ID, updated.ID)
}

func TestEvent_WithTemplate(t *testing.T) {
	original := NewEvent(TypeApprovalRequested, 3, "CONTRACT", nil)
	tagged := original.WithTemplate(99)

	assert.Equal(t, int64(0), original.TemplateID)
	assert.Equal(t, int64(99), tagged.TemplateID)
}

func TestEvent_GetPayloadInt_Conversions(t *testing.T) {
	evt := NewEvent(TypeApprovalRequested, 1, "CONTRACT", map[string]interface{}{
		"a": 5,
		"b": float64(6),
		"c": "x",
	})

	assert.Equal(t, int64(5), evt.GetPayloadInt("a"))
	assert.Equal(t, int64(6), evt.GetPayloadInt("b"))
	assert.Equal(t, int64(0), evt.GetPayloadInt("c"))
	assert.Equal(t, int64(0), evt.GetPayloadInt("missing"))
}
