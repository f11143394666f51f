package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/archject/portal-access/internal/audit"
	"github.com/archject/portal-access/internal/config"
	"github.com/archject/portal-access/internal/dispatch"
	"github.com/archject/portal-access/internal/domain"
	"github.com/archject/portal-access/internal/metrics"
	"github.com/archject/portal-access/internal/rate"
	"github.com/archject/portal-access/internal/repository"
	"github.com/archject/portal-access/internal/tenant"
	"github.com/archject/portal-access/internal/token"
)

// OtpService issues and verifies the one-time passcodes gating OTP-protected
// links. It knows nothing about share links; the handler layer composes the
// two by minting an otp_verified session claim on success.
type OtpService struct {
	challenges repository.OtpRepository
	trail      *audit.Trail
	sender     dispatch.Sender
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	cfg        config.Config
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewOtpService(
	challenges repository.OtpRepository,
	trail *audit.Trail,
	sender dispatch.Sender,
	limiter *rate.Limiter,
	m *metrics.Metrics,
	cfg config.Config,
	logger *zap.Logger,
) *OtpService {
	return &OtpService{
		challenges: challenges,
		trail:      trail,
		sender:     sender,
		limiter:    limiter,
		metrics:    m,
		cfg:        cfg,
		logger:     logger,
		tracer:     otel.Tracer("portal-access/service"),
	}
}

// Send issues a fresh challenge for the (resource, email) pair and hands the
// code to the dispatch collaborator. Sends are rate limited per pair.
func (s *OtpService) Send(ctx context.Context, tenantCtx *tenant.Context, resourceID, email string) error {
	ctx, span := s.startSpan(ctx, "OtpService.Send")
	defer span.End()

	email = normalizeEmail(email)
	if resourceID == "" {
		return errInvalidRequest("resource_id is required.")
	}
	if email == "" {
		return errInvalidRequest("Email is required.")
	}

	tenantID := tenantCtx.Studio.ID
	sendsPerHour := tenantCtx.Policy.OTPSendsPerHour
	if sendsPerHour <= 0 {
		sendsPerHour = s.cfg.OTPSendsPerHour
	}
	key := fmt.Sprintf("otp:%d:%s:%s", tenantID, resourceID, email)
	if !s.limiter.Allow(key, sendsPerHour, time.Hour) {
		s.metrics.OTP("send", "rate_limited")
		return errRateLimited()
	}

	length := tenantCtx.Policy.OTPLength
	if length <= 0 {
		length = s.cfg.OTPLength
	}
	code, err := token.NumericCode(length)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("generate otp code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("hash otp code: %w", err)
	}

	ttl := tenantCtx.Policy.OTPTTL
	if ttl <= 0 {
		ttl = s.cfg.OTPTTL
	}
	now := time.Now().UTC()
	if _, err := s.challenges.Create(ctx, domain.OtpChallenge{
		TenantID:   tenantID,
		ResourceID: resourceID,
		Email:      email,
		CodeHash:   string(hash),
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}); err != nil {
		span.RecordError(err)
		return errUpstream()
	}

	if err := s.sender.SendOTP(ctx, email, code); err != nil {
		// Best-effort boundary: log and report accepted; the client can
		// request another code.
		span.RecordError(err)
		s.log().Warn("otp dispatch failed",
			zap.Int64("tenant_id", tenantID),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
	}

	s.metrics.OTP("send", "success")
	s.trail.Record(ctx, tenantID, email, domain.AuditOTPSent, map[string]any{
		"resource_id": resourceID,
	})
	return nil
}

// Verify checks a presented code against the most recent open challenge for
// the pair. Codes are single-use; a challenge locks permanently once the
// attempt cap is hit, even if the right code arrives afterwards.
func (s *OtpService) Verify(ctx context.Context, tenantCtx *tenant.Context, resourceID, email, code string) error {
	ctx, span := s.startSpan(ctx, "OtpService.Verify")
	defer span.End()

	email = normalizeEmail(email)
	if resourceID == "" || email == "" || strings.TrimSpace(code) == "" {
		return errInvalidRequest("resource_id, email, and code are required.")
	}

	tenantID := tenantCtx.Studio.ID
	maxAttempts := int32(tenantCtx.Policy.OTPMaxAttempts)
	if maxAttempts <= 0 {
		maxAttempts = int32(s.cfg.OTPMaxAttempts)
	}

	now := time.Now().UTC()
	ch, err := s.challenges.LatestOpen(ctx, tenantID, resourceID, email, now)
	if errors.Is(err, repository.ErrNotFound) {
		s.deny(ctx, tenantID, resourceID, email, "no_challenge")
		return errInvalidLink()
	}
	if err != nil {
		span.RecordError(err)
		return errUpstream()
	}

	if ch.AttemptCount >= maxAttempts {
		s.deny(ctx, tenantID, resourceID, email, "attempts_exceeded")
		return errInvalidLink()
	}

	if bcrypt.CompareHashAndPassword([]byte(ch.CodeHash), []byte(code)) != nil {
		attempts, err := s.challenges.IncrementAttempts(ctx, ch.ID)
		if err != nil {
			span.RecordError(err)
			return errUpstream()
		}
		if attempts >= maxAttempts {
			s.metrics.OTP("verify", "locked")
			s.trail.Record(ctx, tenantID, email, domain.AuditOTPLocked, map[string]any{
				"resource_id": resourceID,
			})
			return errInvalidLink()
		}
		s.deny(ctx, tenantID, resourceID, email, "mismatch")
		return errIncorrectCode()
	}

	if err := s.challenges.MarkConsumed(ctx, ch.ID, now); err != nil {
		if errors.Is(err, repository.ErrConditionFailed) {
			// Someone consumed it first; single use holds.
			s.deny(ctx, tenantID, resourceID, email, "already_consumed")
			return errInvalidLink()
		}
		span.RecordError(err)
		return errUpstream()
	}

	s.metrics.OTP("verify", "success")
	s.trail.Record(ctx, tenantID, email, domain.AuditOTPVerified, map[string]any{
		"resource_id": resourceID,
	})
	return nil
}

func (s *OtpService) deny(ctx context.Context, tenantID int64, resourceID, email, reason string) {
	s.metrics.OTP("verify", "denied")
	s.trail.Record(ctx, tenantID, email, domain.AuditOTPDenied, map[string]any{
		"resource_id": resourceID,
		"reason":      reason,
	})
}

func (s *OtpService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

func (s *OtpService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
