package types

// EscalationLevel is the severity raised for a pass left open too long.
// The zero value means no escalation is warranted.
type EscalationLevel string

const (
	EscalationNone    EscalationLevel = ""
	EscalationWarning EscalationLevel = "warning"
	EscalationAlert   EscalationLevel = "alert"
)

// EscalationRecord is an append-only entry in the escalations collection.
type EscalationRecord struct {
	PassID    string          `json:"passId" validate:"required"`
	Level     EscalationLevel `json:"level" validate:"required,oneof=warning alert"`
	Timestamp int64           `json:"timestamp" validate:"required"`
}

// NotificationTypeEscalation tags notifications produced by the escalation engine.
const NotificationTypeEscalation = "escalation"

// Notification is a record written to the notifications collection for
// downstream delivery.
type Notification struct {
	Type      string          `json:"type" validate:"required"`
	PassID    string          `json:"passId" validate:"required"`
	StudentID string          `json:"studentId" validate:"required"`
	Level     EscalationLevel `json:"level" validate:"required,oneof=warning alert"`
	Timestamp int64           `json:"timestamp" validate:"required"`
}
