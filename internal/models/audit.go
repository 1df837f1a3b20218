package models

import (
	"time"
)

// Audit streams. Access events are short-lived operational records, audit
// events cover administrative and security-relevant mutations.
const (
	StreamAccess = "access"
	StreamAudit  = "audit"
)

// AuditEvent is one immutable append-only record. TenantID holds either a
// client domain UUID or a reseller id. ExpiresAt encodes the retention
// window for the stream; the broker itself never deletes entries.
type AuditEvent struct {
	ID        int64
	Timestamp time.Time
	Stream    string
	EventType string
	TenantID  string
	DeviceID  string
	Actor     string
	Object    string
	Operation string
	Note      string
	Payload   map[string]any
	ExpiresAt time.Time
}
