package repository

import (
	"context"
	"errors"
	"time"

	"github.com/archject/portal-access/internal/domain"
)

// Sentinel errors returned by repositories. Services compare with errors.Is
// and translate to the external taxonomy; raw storage errors never leave the
// service boundary.
var (
	ErrNotFound = errors.New("repository: not found")
	// ErrConditionFailed reports that a conditional update matched no row:
	// the consume/extend precondition did not hold at the store.
	ErrConditionFailed = errors.New("repository: conditional update matched no row")
)

// LinkRepository persists share links keyed by token hash. Links are never
// physically deleted; revocation and expiry leave the row for audit.
type LinkRepository interface {
	Create(ctx context.Context, link domain.ShareLink) (domain.ShareLink, error)
	GetByTokenHash(ctx context.Context, tenantID int64, tokenHash string) (domain.ShareLink, error)
	// Consume atomically increments usage_count iff the link is live at the
	// store: not revoked, not expired at now, and under its usage cap. The
	// check and increment are one conditional UPDATE so two concurrent
	// consumers of a max_usage=1 link cannot both succeed.
	Consume(ctx context.Context, tenantID int64, tokenHash string, now time.Time) (domain.ShareLink, error)
	// Revoke sets revoked_at if not already set. Idempotent: revoking a
	// revoked link is not an error.
	Revoke(ctx context.Context, tenantID int64, tokenHash string, now time.Time) error
	// Extend moves expires_at forward iff the link is not revoked, currently
	// has an expiry, and the new expiry is strictly later.
	Extend(ctx context.Context, tenantID int64, tokenHash string, expiresAt time.Time) (domain.ShareLink, error)
}

// OtpRepository persists OTP challenges.
type OtpRepository interface {
	Create(ctx context.Context, ch domain.OtpChallenge) (domain.OtpChallenge, error)
	// LatestOpen returns the most recent unconsumed, unexpired challenge for
	// the (resource, email) pair.
	LatestOpen(ctx context.Context, tenantID int64, resourceID, email string, now time.Time) (domain.OtpChallenge, error)
	MarkConsumed(ctx context.Context, id int64, now time.Time) error
	// IncrementAttempts bumps attempt_count and returns the new value.
	IncrementAttempts(ctx context.Context, id int64) (int32, error)
}

// AuditRepository is the append-only trail store. No update or delete path
// is exposed.
type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	Query(ctx context.Context, q domain.AuditQuery) ([]domain.AuditLogEntry, error)
}

// NotificationRepository persists per-recipient notification rows.
type NotificationRepository interface {
	Insert(ctx context.Context, n domain.DecisionNotification) error
	ListForUser(ctx context.Context, tenantID int64, userID string, limit, offset int) ([]domain.DecisionNotification, error)
	GetByID(ctx context.Context, tenantID int64, id string) (domain.DecisionNotification, error)
	// MarkRead sets read_at iff currently null; marking a read notification
	// again is a no-op, never a revert.
	MarkRead(ctx context.Context, tenantID int64, id string, now time.Time) error
	MarkAllRead(ctx context.Context, tenantID int64, userID string, now time.Time) error
	Mute(ctx context.Context, tenantID int64, id string, mutedAt time.Time, mutedUntil *time.Time) error
}

// ConsentRepository stores one consent blob per subject.
type ConsentRepository interface {
	Get(ctx context.Context, tenantID int64, subjectID string) (domain.ConsentRecord, error)
	Save(ctx context.Context, rec domain.ConsentRecord) error
}

// TenantRepository loads studio metadata used to resolve requests.
type TenantRepository interface {
	GetDomainByHost(ctx context.Context, host string) (domain.Domain, error)
	GetStudio(ctx context.Context, tenantID int64) (domain.Studio, error)
	GetStudioBySlug(ctx context.Context, slug string) (domain.Studio, error)
	GetBranding(ctx context.Context, tenantID int64) (domain.Branding, error)
	GetPortalPolicy(ctx context.Context, tenantID int64) (domain.PortalPolicy, error)
}
