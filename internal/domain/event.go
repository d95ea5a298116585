package domain

import (
	"encoding/json"
	"time"
)

// AuditEventID is a unique identifier for an audit event.
type AuditEventID string

// AuditEventType classifies a sensitive operation.
type AuditEventType string

const (
	AuditVideoUpload       AuditEventType = "VIDEO_UPLOAD"
	AuditVideoDelete       AuditEventType = "VIDEO_DELETE"
	AuditLinkDelete        AuditEventType = "LINK_DELETE"
	AuditDataMigration     AuditEventType = "DATA_MIGRATION"
	AuditRateLimitExceeded AuditEventType = "RATE_LIMIT_EXCEEDED"
	AuditSecurityViolation AuditEventType = "SECURITY_VIOLATION"
)

// AuditEvent records a security-relevant operation for later review.
// SECURITY_VIOLATION events must stay distinguishable from ordinary
// failures; they are never folded into generic error responses.
type AuditEvent struct {
	ID        AuditEventID    `json:"id"`
	Type      AuditEventType  `json:"type"`
	UserID    string          `json:"user_id,omitempty"`
	LinkID    LinkID          `json:"link_id,omitempty"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AuditMetadata is a convenience map for event metadata.
type AuditMetadata map[string]any

// ToJSON marshals the metadata, returning nil on error or empty input.
func (m AuditMetadata) ToJSON() json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}
