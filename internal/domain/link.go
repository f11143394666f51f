package domain

import "time"

// ShareLink maps a bearer-token digest to the decision it protects. The
// plaintext token is never persisted; only its SHA-256 digest is stored.
type ShareLink struct {
	ID          int64
	TenantID    int64
	TokenHash   string
	ResourceID  string
	RequiresOTP bool
	MaxUsage    *int32
	UsageCount  int32
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	RevokedAt   *time.Time
}

// DeadReason explains why a link is not live. Internal only; callers must
// never surface it to the party presenting the token.
type DeadReason string

const (
	DeadReasonNone      DeadReason = ""
	DeadReasonRevoked   DeadReason = "revoked"
	DeadReasonExpired   DeadReason = "expired"
	DeadReasonExhausted DeadReason = "exhausted"
)

// Live reports whether the link grants access at the given instant: not
// revoked, not past its expiry, and not usage-exhausted.
func (l ShareLink) Live(now time.Time) bool {
	return l.Dead(now) == DeadReasonNone
}

// Dead returns the first reason the link no longer grants access, or
// DeadReasonNone when it is still live. Revocation wins over expiry so a
// revoked link stays reported as revoked in the audit trail regardless of
// its expiry window.
func (l ShareLink) Dead(now time.Time) DeadReason {
	if l.RevokedAt != nil {
		return DeadReasonRevoked
	}
	if l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
		return DeadReasonExpired
	}
	if l.MaxUsage != nil && l.UsageCount >= *l.MaxUsage {
		return DeadReasonExhausted
	}
	return DeadReasonNone
}

// OtpChallenge is a short-lived one-time passcode issued in front of an
// OTP-gated link. Only the bcrypt digest of the code is stored.
type OtpChallenge struct {
	ID           int64
	TenantID     int64
	ResourceID   string
	Email        string
	CodeHash     string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	ConsumedAt   *time.Time
	AttemptCount int32
}

// Open reports whether the challenge can still be verified: not yet consumed,
// not expired, and under the attempt cap.
func (c OtpChallenge) Open(now time.Time, maxAttempts int32) bool {
	return c.ConsumedAt == nil && c.ExpiresAt.After(now) && c.AttemptCount < maxAttempts
}
