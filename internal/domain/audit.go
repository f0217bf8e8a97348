package domain

import (
	"time"
)

// Operation identifies the kind of data operation an audit entry records.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpRead   Operation = "READ"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// AuditEntry is an immutable record of one completed data operation.
// RegistrationID is a pointer so entries survive deletion of the record
// they describe.
type AuditEntry struct {
	ID             int64     `json:"id"`
	RegistrationID *int64    `json:"registration_id,omitempty"`
	Operation      Operation `json:"operation"`
	Details        string    `json:"details,omitempty"`
	PerformedAt    time.Time `json:"performed_at"`
}
