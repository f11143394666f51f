package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archject/portal-access/internal/domain"
)

// Compile-time interface assertions.
var (
	_ LinkRepository         = (*PostgresLinkRepo)(nil)
	_ OtpRepository          = (*PostgresOtpRepo)(nil)
	_ AuditRepository        = (*PostgresAuditRepo)(nil)
	_ NotificationRepository = (*PostgresNotificationRepo)(nil)
	_ ConsentRepository      = (*PostgresConsentRepo)(nil)
	_ TenantRepository       = (*PostgresTenantRepo)(nil)
)

// PostgresLinkRepo implements LinkRepository on pgx.
type PostgresLinkRepo struct {
	db *pgxpool.Pool
}

func NewPostgresLinkRepo(db *pgxpool.Pool) *PostgresLinkRepo {
	return &PostgresLinkRepo{db: db}
}

const linkColumns = `id, tenant_id, token_hash, resource_id, requires_otp, max_usage, usage_count, created_at, expires_at, revoked_at`

const insertLinkSQL = `INSERT INTO share_links (tenant_id, token_hash, resource_id, requires_otp, max_usage, usage_count, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
RETURNING ` + linkColumns

func (r *PostgresLinkRepo) Create(ctx context.Context, link domain.ShareLink) (domain.ShareLink, error) {
	row := r.db.QueryRow(ctx, insertLinkSQL,
		link.TenantID,
		link.TokenHash,
		link.ResourceID,
		link.RequiresOTP,
		link.MaxUsage,
		link.CreatedAt,
		link.ExpiresAt,
	)
	created, err := scanLink(row)
	if err != nil {
		return domain.ShareLink{}, fmt.Errorf("create link: %w", err)
	}
	return created, nil
}

const getLinkSQL = `SELECT ` + linkColumns + ` FROM share_links WHERE tenant_id = $1 AND token_hash = $2`

func (r *PostgresLinkRepo) GetByTokenHash(ctx context.Context, tenantID int64, tokenHash string) (domain.ShareLink, error) {
	link, err := scanLink(r.db.QueryRow(ctx, getLinkSQL, tenantID, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ShareLink{}, ErrNotFound
	}
	if err != nil {
		return domain.ShareLink{}, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

// consumeLinkSQL is the correctness-critical primitive: the liveness check and
// the increment are a single conditional UPDATE, so concurrent consumers of a
// capped link serialize at the store.
const consumeLinkSQL = `UPDATE share_links
SET usage_count = usage_count + 1
WHERE tenant_id = $1 AND token_hash = $2
  AND revoked_at IS NULL
  AND (expires_at IS NULL OR expires_at > $3)
  AND (max_usage IS NULL OR usage_count < max_usage)
RETURNING ` + linkColumns

func (r *PostgresLinkRepo) Consume(ctx context.Context, tenantID int64, tokenHash string, now time.Time) (domain.ShareLink, error) {
	link, err := scanLink(r.db.QueryRow(ctx, consumeLinkSQL, tenantID, tokenHash, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ShareLink{}, ErrConditionFailed
	}
	if err != nil {
		return domain.ShareLink{}, fmt.Errorf("consume link: %w", err)
	}
	return link, nil
}

const revokeLinkSQL = `UPDATE share_links SET revoked_at = $3
WHERE tenant_id = $1 AND token_hash = $2 AND revoked_at IS NULL`

func (r *PostgresLinkRepo) Revoke(ctx context.Context, tenantID int64, tokenHash string, now time.Time) error {
	if _, err := r.db.Exec(ctx, revokeLinkSQL, tenantID, tokenHash, now); err != nil {
		return fmt.Errorf("revoke link: %w", err)
	}
	return nil
}

const extendLinkSQL = `UPDATE share_links SET expires_at = $3
WHERE tenant_id = $1 AND token_hash = $2
  AND revoked_at IS NULL
  AND expires_at IS NOT NULL
  AND expires_at < $3
RETURNING ` + linkColumns

func (r *PostgresLinkRepo) Extend(ctx context.Context, tenantID int64, tokenHash string, expiresAt time.Time) (domain.ShareLink, error) {
	link, err := scanLink(r.db.QueryRow(ctx, extendLinkSQL, tenantID, tokenHash, expiresAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ShareLink{}, ErrConditionFailed
	}
	if err != nil {
		return domain.ShareLink{}, fmt.Errorf("extend link: %w", err)
	}
	return link, nil
}

func scanLink(row pgx.Row) (domain.ShareLink, error) {
	var l domain.ShareLink
	err := row.Scan(
		&l.ID,
		&l.TenantID,
		&l.TokenHash,
		&l.ResourceID,
		&l.RequiresOTP,
		&l.MaxUsage,
		&l.UsageCount,
		&l.CreatedAt,
		&l.ExpiresAt,
		&l.RevokedAt,
	)
	return l, err
}

// PostgresOtpRepo implements OtpRepository.
type PostgresOtpRepo struct {
	db *pgxpool.Pool
}

func NewPostgresOtpRepo(db *pgxpool.Pool) *PostgresOtpRepo {
	return &PostgresOtpRepo{db: db}
}

const otpColumns = `id, tenant_id, resource_id, email, code_hash, issued_at, expires_at, consumed_at, attempt_count`

const insertOtpSQL = `INSERT INTO otp_challenges (tenant_id, resource_id, email, code_hash, issued_at, expires_at, attempt_count)
VALUES ($1, $2, $3, $4, $5, $6, 0)
RETURNING ` + otpColumns

func (r *PostgresOtpRepo) Create(ctx context.Context, ch domain.OtpChallenge) (domain.OtpChallenge, error) {
	row := r.db.QueryRow(ctx, insertOtpSQL,
		ch.TenantID,
		ch.ResourceID,
		ch.Email,
		ch.CodeHash,
		ch.IssuedAt,
		ch.ExpiresAt,
	)
	created, err := scanChallenge(row)
	if err != nil {
		return domain.OtpChallenge{}, fmt.Errorf("create otp challenge: %w", err)
	}
	return created, nil
}

const latestOpenOtpSQL = `SELECT ` + otpColumns + ` FROM otp_challenges
WHERE tenant_id = $1 AND resource_id = $2 AND email = $3
  AND consumed_at IS NULL
  AND expires_at > $4
ORDER BY issued_at DESC
LIMIT 1`

func (r *PostgresOtpRepo) LatestOpen(ctx context.Context, tenantID int64, resourceID, email string, now time.Time) (domain.OtpChallenge, error) {
	ch, err := scanChallenge(r.db.QueryRow(ctx, latestOpenOtpSQL, tenantID, resourceID, email, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OtpChallenge{}, ErrNotFound
	}
	if err != nil {
		return domain.OtpChallenge{}, fmt.Errorf("latest otp challenge: %w", err)
	}
	return ch, nil
}

const consumeOtpSQL = `UPDATE otp_challenges SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`

func (r *PostgresOtpRepo) MarkConsumed(ctx context.Context, id int64, now time.Time) error {
	tag, err := r.db.Exec(ctx, consumeOtpSQL, id, now)
	if err != nil {
		return fmt.Errorf("consume otp challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConditionFailed
	}
	return nil
}

const bumpOtpAttemptsSQL = `UPDATE otp_challenges SET attempt_count = attempt_count + 1 WHERE id = $1 RETURNING attempt_count`

func (r *PostgresOtpRepo) IncrementAttempts(ctx context.Context, id int64) (int32, error) {
	var count int32
	if err := r.db.QueryRow(ctx, bumpOtpAttemptsSQL, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("bump otp attempts: %w", err)
	}
	return count, nil
}

func scanChallenge(row pgx.Row) (domain.OtpChallenge, error) {
	var c domain.OtpChallenge
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.ResourceID,
		&c.Email,
		&c.CodeHash,
		&c.IssuedAt,
		&c.ExpiresAt,
		&c.ConsumedAt,
		&c.AttemptCount,
	)
	return c, err
}

// PostgresAuditRepo implements AuditRepository. Inserts only; the table has
// no update path in application code.
type PostgresAuditRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAuditRepo(db *pgxpool.Pool) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

const insertAuditSQL = `INSERT INTO audit_log (id, tenant_id, actor_id, action, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

func (r *PostgresAuditRepo) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	if _, err := r.db.Exec(ctx, insertAuditSQL,
		entry.ID,
		entry.TenantID,
		entry.ActorID,
		string(entry.Action),
		details,
		entry.Timestamp,
	); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

const queryAuditSQL = `SELECT id, tenant_id, actor_id, action, details, created_at FROM audit_log
WHERE tenant_id = $1
  AND ($2 = '' OR actor_id = $2)
  AND ($3 = '' OR action = $3)
  AND ($4::timestamptz IS NULL OR created_at >= $4)
  AND ($5::timestamptz IS NULL OR created_at < $5)
ORDER BY created_at DESC, id DESC
LIMIT $6 OFFSET $7`

func (r *PostgresAuditRepo) Query(ctx context.Context, q domain.AuditQuery) ([]domain.AuditLogEntry, error) {
	var from, to *time.Time
	if !q.From.IsZero() {
		from = &q.From
	}
	if !q.To.IsZero() {
		to = &q.To
	}
	rows, err := r.db.Query(ctx, queryAuditSQL, q.TenantID, q.ActorID, string(q.Action), from, to, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditLogEntry
	for rows.Next() {
		var (
			e       domain.AuditLogEntry
			action  string
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorID, &action, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = domain.AuditAction(action)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// PostgresNotificationRepo implements NotificationRepository.
type PostgresNotificationRepo struct {
	db *pgxpool.Pool
}

func NewPostgresNotificationRepo(db *pgxpool.Pool) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

const notificationColumns = `id, tenant_id, user_id, decision_id, type, reference_id, payload, read_at, muted_at, muted_until, created_at`

const insertNotificationSQL = `INSERT INTO decision_notifications (id, tenant_id, user_id, decision_id, type, reference_id, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (r *PostgresNotificationRepo) Insert(ctx context.Context, n domain.DecisionNotification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}
	if _, err := r.db.Exec(ctx, insertNotificationSQL,
		n.ID,
		n.TenantID,
		n.UserID,
		n.DecisionID,
		string(n.Type),
		n.ReferenceID,
		payload,
		n.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

const listNotificationsSQL = `SELECT ` + notificationColumns + ` FROM decision_notifications
WHERE tenant_id = $1 AND user_id = $2
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`

func (r *PostgresNotificationRepo) ListForUser(ctx context.Context, tenantID int64, userID string, limit, offset int) ([]domain.DecisionNotification, error) {
	rows, err := r.db.Query(ctx, listNotificationsSQL, tenantID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.DecisionNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

const getNotificationSQL = `SELECT ` + notificationColumns + ` FROM decision_notifications WHERE tenant_id = $1 AND id = $2`

func (r *PostgresNotificationRepo) GetByID(ctx context.Context, tenantID int64, id string) (domain.DecisionNotification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx, getNotificationSQL, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DecisionNotification{}, ErrNotFound
	}
	if err != nil {
		return domain.DecisionNotification{}, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

const markReadSQL = `UPDATE decision_notifications SET read_at = $3
WHERE tenant_id = $1 AND id = $2 AND read_at IS NULL`

func (r *PostgresNotificationRepo) MarkRead(ctx context.Context, tenantID int64, id string, now time.Time) error {
	if _, err := r.db.Exec(ctx, markReadSQL, tenantID, id, now); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

const markAllReadSQL = `UPDATE decision_notifications SET read_at = $3
WHERE tenant_id = $1 AND user_id = $2 AND read_at IS NULL`

func (r *PostgresNotificationRepo) MarkAllRead(ctx context.Context, tenantID int64, userID string, now time.Time) error {
	if _, err := r.db.Exec(ctx, markAllReadSQL, tenantID, userID, now); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

const muteNotificationSQL = `UPDATE decision_notifications SET muted_at = $3, muted_until = $4
WHERE tenant_id = $1 AND id = $2`

func (r *PostgresNotificationRepo) Mute(ctx context.Context, tenantID int64, id string, mutedAt time.Time, mutedUntil *time.Time) error {
	if _, err := r.db.Exec(ctx, muteNotificationSQL, tenantID, id, mutedAt, mutedUntil); err != nil {
		return fmt.Errorf("mute notification: %w", err)
	}
	return nil
}

func scanNotification(row pgx.Row) (domain.DecisionNotification, error) {
	var (
		n       domain.DecisionNotification
		typ     string
		payload []byte
	)
	err := row.Scan(
		&n.ID,
		&n.TenantID,
		&n.UserID,
		&n.DecisionID,
		&typ,
		&n.ReferenceID,
		&payload,
		&n.ReadAt,
		&n.MutedAt,
		&n.MutedUntil,
		&n.CreatedAt,
	)
	if err != nil {
		return domain.DecisionNotification{}, err
	}
	n.Type = domain.NotificationType(typ)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return domain.DecisionNotification{}, err
		}
	}
	return n, nil
}

// PostgresConsentRepo implements ConsentRepository on a single-row-per-subject
// blob table, matching the client-local storage shape.
type PostgresConsentRepo struct {
	db *pgxpool.Pool
}

func NewPostgresConsentRepo(db *pgxpool.Pool) *PostgresConsentRepo {
	return &PostgresConsentRepo{db: db}
}

const getConsentSQL = `SELECT blob, updated_at FROM consent_records WHERE tenant_id = $1 AND subject_id = $2`

func (r *PostgresConsentRepo) Get(ctx context.Context, tenantID int64, subjectID string) (domain.ConsentRecord, error) {
	var (
		blob      []byte
		updatedAt time.Time
	)
	err := r.db.QueryRow(ctx, getConsentSQL, tenantID, subjectID).Scan(&blob, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ConsentRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.ConsentRecord{}, fmt.Errorf("get consent: %w", err)
	}
	rec := domain.ConsentRecord{TenantID: tenantID, SubjectID: subjectID, UpdatedAt: updatedAt}
	if err := json.Unmarshal(blob, &rec); err != nil {
		return domain.ConsentRecord{}, fmt.Errorf("decode consent blob: %w", err)
	}
	return rec, nil
}

const saveConsentSQL = `INSERT INTO consent_records (tenant_id, subject_id, blob, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (tenant_id, subject_id) DO UPDATE SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at`

func (r *PostgresConsentRepo) Save(ctx context.Context, rec domain.ConsentRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode consent blob: %w", err)
	}
	if _, err := r.db.Exec(ctx, saveConsentSQL, rec.TenantID, rec.SubjectID, blob, rec.UpdatedAt); err != nil {
		return fmt.Errorf("save consent: %w", err)
	}
	return nil
}

// PostgresTenantRepo implements TenantRepository.
type PostgresTenantRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTenantRepo(db *pgxpool.Pool) *PostgresTenantRepo {
	return &PostgresTenantRepo{db: db}
}

func (r *PostgresTenantRepo) GetDomainByHost(ctx context.Context, host string) (domain.Domain, error) {
	var d domain.Domain
	err := r.db.QueryRow(ctx,
		`SELECT id, host, tenant_id, is_primary, verified, created_at, updated_at FROM portal_domains WHERE host = $1`,
		host,
	).Scan(&d.ID, &d.Host, &d.TenantID, &d.IsPrimary, &d.Verified, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Domain{}, ErrNotFound
	}
	if err != nil {
		return domain.Domain{}, fmt.Errorf("get domain: %w", err)
	}
	return d, nil
}

const studioColumns = `id, name, slug, timezone, status, created_at, updated_at`

func (r *PostgresTenantRepo) GetStudio(ctx context.Context, tenantID int64) (domain.Studio, error) {
	return r.getStudio(ctx, `SELECT `+studioColumns+` FROM studios WHERE id = $1`, tenantID)
}

func (r *PostgresTenantRepo) GetStudioBySlug(ctx context.Context, slug string) (domain.Studio, error) {
	return r.getStudio(ctx, `SELECT `+studioColumns+` FROM studios WHERE slug = $1`, slug)
}

func (r *PostgresTenantRepo) getStudio(ctx context.Context, sql string, arg any) (domain.Studio, error) {
	var s domain.Studio
	err := r.db.QueryRow(ctx, sql, arg).Scan(&s.ID, &s.Name, &s.Slug, &s.Timezone, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Studio{}, ErrNotFound
	}
	if err != nil {
		return domain.Studio{}, fmt.Errorf("get studio: %w", err)
	}
	return s, nil
}

func (r *PostgresTenantRepo) GetBranding(ctx context.Context, tenantID int64) (domain.Branding, error) {
	var b domain.Branding
	err := r.db.QueryRow(ctx,
		`SELECT tenant_id, logo_url, primary_color, secondary_color, created_at, updated_at FROM studio_branding WHERE tenant_id = $1`,
		tenantID,
	).Scan(&b.TenantID, &b.LogoURL, &b.PrimaryColor, &b.SecondaryColor, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Branding{}, ErrNotFound
	}
	if err != nil {
		return domain.Branding{}, fmt.Errorf("get branding: %w", err)
	}
	return b, nil
}

func (r *PostgresTenantRepo) GetPortalPolicy(ctx context.Context, tenantID int64) (domain.PortalPolicy, error) {
	var (
		p              domain.PortalPolicy
		linkTTLSeconds int64
		otpTTLSeconds  int64
	)
	err := r.db.QueryRow(ctx,
		`SELECT tenant_id, default_link_ttl_seconds, otp_length, otp_ttl_seconds, otp_max_attempts, otp_sends_per_hour, created_at, updated_at
FROM portal_policies WHERE tenant_id = $1`,
		tenantID,
	).Scan(&p.TenantID, &linkTTLSeconds, &p.OTPLength, &otpTTLSeconds, &p.OTPMaxAttempts, &p.OTPSendsPerHour, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PortalPolicy{}, ErrNotFound
	}
	if err != nil {
		return domain.PortalPolicy{}, fmt.Errorf("get portal policy: %w", err)
	}
	p.DefaultLinkTTL = time.Duration(linkTTLSeconds) * time.Second
	p.OTPTTL = time.Duration(otpTTLSeconds) * time.Second
	return p, nil
}
