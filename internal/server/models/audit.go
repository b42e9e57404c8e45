package models

import "time"

// AuditEvent is one append-only audit log entry.
type AuditEvent struct {
	ID          string
	Action      string
	SubjectType string
	SubjectID   string
	ActorID     string
	Before      map[string]any
	After       map[string]any
	CreatedAt   time.Time
}
