package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/archject/portal-access/internal/audit"
	"github.com/archject/portal-access/internal/config"
	"github.com/archject/portal-access/internal/dispatch"
	"github.com/archject/portal-access/internal/domain"
	"github.com/archject/portal-access/internal/metrics"
	"github.com/archject/portal-access/internal/repository"
	"github.com/archject/portal-access/internal/resource"
	"github.com/archject/portal-access/internal/tenant"
	"github.com/archject/portal-access/internal/token"
)

// LinkService owns the share-link state machine: generate, verify, consume,
// revoke, reissue, extend. All liveness decisions happen against current
// store state; nothing mutable is cached across requests.
type LinkService struct {
	links     repository.LinkRepository
	trail     *audit.Trail
	resources resource.DecisionClient
	sender    dispatch.Sender
	metrics   *metrics.Metrics
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewLinkService(
	links repository.LinkRepository,
	trail *audit.Trail,
	resources resource.DecisionClient,
	sender dispatch.Sender,
	m *metrics.Metrics,
	cfg config.Config,
	logger *zap.Logger,
) *LinkService {
	return &LinkService{
		links:     links,
		trail:     trail,
		resources: resources,
		sender:    sender,
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("portal-access/service"),
	}
}

// GenerateInput carries the link policy. A nil ExpirySeconds falls back to
// the studio's default TTL; an explicit zero means the link never expires.
// When Recipient is set the branded URL is dispatched to that address after
// the link is created.
type GenerateInput struct {
	ResourceID    string
	ExpirySeconds *int64
	RequireOTP    bool
	MaxUsage      *int32
	Recipient     string
}

// GenerateResult returns the plaintext token exactly once. It is never
// persisted or logged.
type GenerateResult struct {
	Token       string     `json:"token"`
	URL         string     `json:"url"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RequiresOTP bool       `json:"requires_otp"`
	MaxUsage    *int32     `json:"max_usage,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Generate mints a new share link for a decision.
func (s *LinkService) Generate(ctx context.Context, tenantCtx *tenant.Context, actorID string, in GenerateInput) (GenerateResult, error) {
	ctx, span := s.startSpan(ctx, "LinkService.Generate")
	defer span.End()

	if in.ResourceID == "" {
		return GenerateResult{}, errInvalidRequest("resource_id is required.")
	}
	if in.MaxUsage != nil && *in.MaxUsage < 1 {
		return GenerateResult{}, errInvalidRequest("max_usage must be at least 1.")
	}

	plaintext, err := token.Generate(s.cfg.LinkTokenBytes)
	if err != nil {
		span.RecordError(err)
		return GenerateResult{}, fmt.Errorf("generate token: %w", err)
	}

	now := time.Now().UTC()
	expiresAt := s.resolveExpiry(tenantCtx, in.ExpirySeconds, now)

	created, err := s.links.Create(ctx, domain.ShareLink{
		TenantID:    tenantCtx.Studio.ID,
		TokenHash:   token.Hash(plaintext),
		ResourceID:  in.ResourceID,
		RequiresOTP: in.RequireOTP,
		MaxUsage:    in.MaxUsage,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.Link("generate", "error")
		return GenerateResult{}, errUpstream()
	}

	s.metrics.Link("generate", "success")
	s.trail.Record(ctx, created.TenantID, actorID, domain.AuditLinkGenerated, map[string]any{
		"resource_id":  created.ResourceID,
		"requires_otp": created.RequiresOTP,
		"has_expiry":   created.ExpiresAt != nil,
		"max_usage":    created.MaxUsage,
	})

	url := s.portalURL(tenantCtx, plaintext)
	if in.Recipient != "" {
		// Best effort, like the OTP send path: the link already exists and
		// the staff caller still receives the URL in the response.
		if err := s.sender.SendShareLink(ctx, in.Recipient, url); err != nil {
			span.RecordError(err)
			s.log().Warn("share link dispatch failed",
				zap.Int64("tenant_id", created.TenantID),
				zap.String("resource_id", created.ResourceID),
				zap.Error(err),
			)
		}
	}

	return GenerateResult{
		Token:       plaintext,
		URL:         url,
		ExpiresAt:   created.ExpiresAt,
		RequiresOTP: created.RequiresOTP,
		MaxUsage:    created.MaxUsage,
		CreatedAt:   created.CreatedAt,
	}, nil
}

// VerifyResult reports liveness plus link metadata. Invalid presentations of
// any kind return Valid false and nothing else.
type VerifyResult struct {
	Valid       bool       `json:"valid"`
	ResourceID  string     `json:"resource_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RequiresOTP bool       `json:"requires_otp,omitempty"`
	UsageCount  int32      `json:"usage_count,omitempty"`
	MaxUsage    *int32     `json:"max_usage,omitempty"`
}

// Verify is idempotent and side-effect-free; it is safe to call on every
// page load. Malformed tokens never reach the store.
func (s *LinkService) Verify(ctx context.Context, tenantCtx *tenant.Context, presented string) (VerifyResult, error) {
	ctx, span := s.startSpan(ctx, "LinkService.Verify")
	defer span.End()

	if err := token.ValidateFormat(presented); err != nil {
		s.metrics.Link("verify", "malformed")
		return VerifyResult{}, nil
	}

	link, err := s.links.GetByTokenHash(ctx, tenantCtx.Studio.ID, token.Hash(presented))
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.Link("verify", "not_found")
		return VerifyResult{}, nil
	}
	if err != nil {
		span.RecordError(err)
		return VerifyResult{}, errUpstream()
	}

	if !link.Live(time.Now().UTC()) {
		s.metrics.Link("verify", "dead")
		return VerifyResult{}, nil
	}

	s.metrics.Link("verify", "live")
	return VerifyResult{
		Valid:       true,
		ResourceID:  link.ResourceID,
		ExpiresAt:   link.ExpiresAt,
		RequiresOTP: link.RequiresOTP,
		UsageCount:  link.UsageCount,
		MaxUsage:    link.MaxUsage,
	}, nil
}

// ConsumeResult carries the protected payload on success.
type ConsumeResult struct {
	ResourceID string            `json:"resource_id"`
	Decision   resource.Decision `json:"decision"`
	UsageCount int32             `json:"usage_count"`
}

// Consume marks one usage and returns the protected decision. The increment
// and the liveness check are one conditional update in the store, so of N
// concurrent consumers of a max_usage=1 link exactly one succeeds; the losers
// see the same outcome as a late arrival and must not retry.
//
// otpVerified asserts that the caller passed the OTP gate for this link's
// resource in the current session; the handler derives it from the signed
// otp_verified claim before calling in.
func (s *LinkService) Consume(ctx context.Context, tenantCtx *tenant.Context, presented string, otpVerified func(resourceID string) bool) (ConsumeResult, error) {
	ctx, span := s.startSpan(ctx, "LinkService.Consume")
	defer span.End()

	if err := token.ValidateFormat(presented); err != nil {
		s.metrics.Link("consume", "malformed")
		return ConsumeResult{}, errInvalidLink()
	}

	tenantID := tenantCtx.Studio.ID
	hash := token.Hash(presented)
	now := time.Now().UTC()

	link, err := s.links.GetByTokenHash(ctx, tenantID, hash)
	if errors.Is(err, repository.ErrNotFound) {
		s.denyConsume(ctx, tenantID, "", "not_found")
		return ConsumeResult{}, errInvalidLink()
	}
	if err != nil {
		span.RecordError(err)
		return ConsumeResult{}, errUpstream()
	}

	if link.RequiresOTP && (otpVerified == nil || !otpVerified(link.ResourceID)) {
		s.denyConsume(ctx, tenantID, link.ResourceID, "otp_required")
		return ConsumeResult{}, errInvalidLink()
	}

	// Fetch the payload before burning a usage, so a storage-side increment
	// is never followed by an empty-handed failure. A fetch whose caller then
	// loses the conditional update discloses nothing: the decision is only
	// returned after the update succeeds.
	decision, err := s.resources.GetDecision(ctx, tenantID, link.ResourceID)
	if err != nil {
		span.RecordError(err)
		s.log().Error("decision fetch failed",
			zap.Int64("tenant_id", tenantID),
			zap.String("resource_id", link.ResourceID),
			zap.Error(err),
		)
		s.metrics.Link("consume", "resource_error")
		return ConsumeResult{}, errUpstream()
	}

	consumed, err := s.links.Consume(ctx, tenantID, hash, now)
	if errors.Is(err, repository.ErrConditionFailed) {
		reason := string(link.Dead(now))
		if reason == "" {
			// Lost a concurrent race for the last usage; same outcome as
			// arriving after the cap.
			reason = string(domain.DeadReasonExhausted)
		}
		s.denyConsume(ctx, tenantID, link.ResourceID, reason)
		return ConsumeResult{}, errInvalidLink()
	}
	if err != nil {
		span.RecordError(err)
		return ConsumeResult{}, errUpstream()
	}

	s.metrics.Link("consume", "success")
	s.trail.Record(ctx, tenantID, "", domain.AuditLinkConsumed, map[string]any{
		"resource_id": consumed.ResourceID,
		"usage_count": consumed.UsageCount,
	})

	return ConsumeResult{
		ResourceID: consumed.ResourceID,
		Decision:   decision,
		UsageCount: consumed.UsageCount,
	}, nil
}

// Revoke kills the link permanently. Idempotent: revoking a revoked or
// unknown token still reports success, so the endpoint leaks nothing.
func (s *LinkService) Revoke(ctx context.Context, tenantCtx *tenant.Context, actorID, presented string) error {
	ctx, span := s.startSpan(ctx, "LinkService.Revoke")
	defer span.End()

	if err := token.ValidateFormat(presented); err != nil {
		return errInvalidLink()
	}
	if err := s.links.Revoke(ctx, tenantCtx.Studio.ID, token.Hash(presented), time.Now().UTC()); err != nil {
		span.RecordError(err)
		return errUpstream()
	}
	s.metrics.Link("revoke", "success")
	s.trail.Record(ctx, tenantCtx.Studio.ID, actorID, domain.AuditLinkRevoked, nil)
	return nil
}

// Reissue revokes the old link and generates a fresh token for the same
// resource under the same policy, usage reset to zero. The old token stops
// working the instant the new one exists; there is no dual-valid window.
func (s *LinkService) Reissue(ctx context.Context, tenantCtx *tenant.Context, actorID, presented string) (GenerateResult, error) {
	ctx, span := s.startSpan(ctx, "LinkService.Reissue")
	defer span.End()

	if err := token.ValidateFormat(presented); err != nil {
		return GenerateResult{}, errInvalidLink()
	}

	tenantID := tenantCtx.Studio.ID
	old, err := s.links.GetByTokenHash(ctx, tenantID, token.Hash(presented))
	if errors.Is(err, repository.ErrNotFound) {
		return GenerateResult{}, errInvalidLink()
	}
	if err != nil {
		span.RecordError(err)
		return GenerateResult{}, errUpstream()
	}

	if err := s.links.Revoke(ctx, tenantID, old.TokenHash, time.Now().UTC()); err != nil {
		span.RecordError(err)
		return GenerateResult{}, errUpstream()
	}

	in := GenerateInput{
		ResourceID: old.ResourceID,
		RequireOTP: old.RequiresOTP,
		MaxUsage:   old.MaxUsage,
	}
	if old.ExpiresAt != nil {
		// The window restarts from now with the original duration.
		seconds := int64(old.ExpiresAt.Sub(old.CreatedAt) / time.Second)
		in.ExpirySeconds = &seconds
	} else {
		zero := int64(0)
		in.ExpirySeconds = &zero
	}

	result, err := s.Generate(ctx, tenantCtx, actorID, in)
	if err != nil {
		return GenerateResult{}, err
	}
	s.trail.Record(ctx, tenantID, actorID, domain.AuditLinkReissued, map[string]any{
		"resource_id": old.ResourceID,
	})
	return result, nil
}

// ExtendInput accepts either an absolute expiry or a relative window from now.
type ExtendInput struct {
	ExpiresAt     *time.Time
	ExpirySeconds *int64
}

// Extend pushes expires_at forward. Revoked links cannot be resurrected, and
// an extension that would shorten the window is rejected rather than silently
// ignored.
func (s *LinkService) Extend(ctx context.Context, tenantCtx *tenant.Context, actorID, presented string, in ExtendInput) (*time.Time, error) {
	ctx, span := s.startSpan(ctx, "LinkService.Extend")
	defer span.End()

	if err := token.ValidateFormat(presented); err != nil {
		return nil, errInvalidLink()
	}

	now := time.Now().UTC()
	var target time.Time
	switch {
	case in.ExpiresAt != nil:
		target = in.ExpiresAt.UTC()
	case in.ExpirySeconds != nil && *in.ExpirySeconds > 0:
		target = now.Add(time.Duration(*in.ExpirySeconds) * time.Second)
	default:
		return nil, errInvalidRequest("expires_at or expiry_seconds is required.")
	}

	tenantID := tenantCtx.Studio.ID
	hash := token.Hash(presented)

	extended, err := s.links.Extend(ctx, tenantID, hash, target)
	if err == nil {
		s.metrics.Link("extend", "success")
		s.trail.Record(ctx, tenantID, actorID, domain.AuditLinkExtended, map[string]any{
			"resource_id": extended.ResourceID,
			"expires_at":  target,
		})
		return extended.ExpiresAt, nil
	}
	if !errors.Is(err, repository.ErrConditionFailed) {
		span.RecordError(err)
		return nil, errUpstream()
	}

	// The conditional update matched nothing; load the row to say why.
	link, err := s.links.GetByTokenHash(ctx, tenantID, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errInvalidLink()
	}
	if err != nil {
		span.RecordError(err)
		return nil, errUpstream()
	}

	reason := "not_later"
	if link.RevokedAt != nil {
		reason = string(domain.DeadReasonRevoked)
	}
	s.metrics.Link("extend", "denied")
	s.trail.Record(ctx, tenantID, actorID, domain.AuditLinkExtendDenied, map[string]any{
		"resource_id": link.ResourceID,
		"reason":      reason,
	})
	if link.RevokedAt != nil {
		return nil, errInvalidLink()
	}
	if link.ExpiresAt == nil {
		return nil, errInvalidRequest("Link has no expiry; nothing to extend.")
	}
	return nil, errInvalidRequest("New expiry must be later than the current expiry.")
}

func (s *LinkService) denyConsume(ctx context.Context, tenantID int64, resourceID, reason string) {
	s.metrics.Link("consume", "denied")
	details := map[string]any{"reason": reason}
	if resourceID != "" {
		details["resource_id"] = resourceID
	}
	s.trail.Record(ctx, tenantID, "", domain.AuditLinkConsumeDenied, details)
}

func (s *LinkService) resolveExpiry(tenantCtx *tenant.Context, expirySeconds *int64, now time.Time) *time.Time {
	var ttl time.Duration
	switch {
	case expirySeconds != nil && *expirySeconds > 0:
		ttl = time.Duration(*expirySeconds) * time.Second
	case expirySeconds != nil:
		return nil // explicit zero: never expires
	case tenantCtx.Policy.DefaultLinkTTL > 0:
		ttl = tenantCtx.Policy.DefaultLinkTTL
	case s.cfg.LinkDefaultTTL > 0:
		ttl = s.cfg.LinkDefaultTTL
	default:
		return nil
	}
	at := now.Add(ttl)
	return &at
}

func (s *LinkService) portalURL(tenantCtx *tenant.Context, plaintext string) string {
	if host := tenantCtx.Domain.Host; host != "" {
		return fmt.Sprintf("https://%s/portal/%s", host, plaintext)
	}
	return fmt.Sprintf("%s/portal/%s", s.cfg.PortalBaseURL, plaintext)
}

func (s *LinkService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

func (s *LinkService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
