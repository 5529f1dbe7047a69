package entities

import "time"

// Audit actions recorded by the relationship writer.
const (
	AuditRelationshipCreated = "relationship.created"
	AuditRelationshipDeleted = "relationship.deleted"
	AuditPartialWrite        = "relationship.partial_write"
	AuditPersonDeleted       = "person.deleted"
)

// AuditEntry represents a logged action in the system.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Action    string         `json:"action"`
	PersonID  string         `json:"person_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
