package domain

import "time"

// AuditAction enumerates the domain actions recorded in the audit trail.
type AuditAction string

const (
	AuditLinkGenerated     AuditAction = "link_generated"
	AuditLinkConsumed      AuditAction = "link_consumed"
	AuditLinkConsumeDenied AuditAction = "link_consume_denied"
	AuditLinkRevoked       AuditAction = "link_revoked"
	AuditLinkReissued      AuditAction = "link_reissued"
	AuditLinkExtended      AuditAction = "link_extended"
	AuditLinkExtendDenied  AuditAction = "link_extend_denied"
	AuditOTPSent           AuditAction = "otp_sent"
	AuditOTPVerified       AuditAction = "otp_verified"
	AuditOTPDenied         AuditAction = "otp_denied"
	AuditOTPLocked         AuditAction = "otp_locked"
	AuditConsentChanged    AuditAction = "consent_changed"
)

// AuditLogEntry is one immutable record of a state transition. Entries are
// ordered by timestamp with the ULID id as tie-break, and are never updated
// or deleted by application code.
type AuditLogEntry struct {
	ID        string         `json:"id"`
	TenantID  int64          `json:"-"`
	ActorID   string         `json:"actor_id,omitempty"`
	Action    AuditAction    `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AuditQuery filters a read of the trail. Zero values mean "no constraint";
// Limit is capped by the trail service.
type AuditQuery struct {
	TenantID int64
	ActorID  string
	Action   AuditAction
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}
