package types

// AuditEntry is a free-form record in the auditLogs collection.
type AuditEntry struct {
	ID        string `json:"id,omitempty"`
	Action    string `json:"action" validate:"required"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp" validate:"required"`
}
