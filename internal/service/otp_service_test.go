package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/archject/portal-access/internal/audit"
	"github.com/archject/portal-access/internal/config"
	"github.com/archject/portal-access/internal/domain"
	"github.com/archject/portal-access/internal/metrics"
	"github.com/archject/portal-access/internal/rate"
	"github.com/archject/portal-access/internal/repository"
	"github.com/archject/portal-access/internal/service"
)

type memoryOtpRepo struct {
	mu         sync.Mutex
	nextID     int64
	challenges []*domain.OtpChallenge
}

func (m *memoryOtpRepo) Create(ctx context.Context, ch domain.OtpChallenge) (domain.OtpChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ch.ID = m.nextID
	cp := ch
	m.challenges = append(m.challenges, &cp)
	return cp, nil
}

func (m *memoryOtpRepo) LatestOpen(ctx context.Context, tenantID int64, resourceID, email string, now time.Time) (domain.OtpChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.challenges) - 1; i >= 0; i-- {
		ch := m.challenges[i]
		if ch.TenantID == tenantID && ch.ResourceID == resourceID && ch.Email == email &&
			ch.ConsumedAt == nil && ch.ExpiresAt.After(now) {
			return *ch, nil
		}
	}
	return domain.OtpChallenge{}, repository.ErrNotFound
}

func (m *memoryOtpRepo) MarkConsumed(ctx context.Context, id int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.challenges {
		if ch.ID == id {
			if ch.ConsumedAt != nil {
				return repository.ErrConditionFailed
			}
			cp := now
			ch.ConsumedAt = &cp
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memoryOtpRepo) IncrementAttempts(ctx context.Context, id int64) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.challenges {
		if ch.ID == id {
			ch.AttemptCount++
			return ch.AttemptCount, nil
		}
	}
	return 0, repository.ErrNotFound
}

// captureSender records what was handed to dispatch so tests can present
// codes back and inspect delivered link URLs.
type captureSender struct {
	mu    sync.Mutex
	codes []string
	urls  []string
}

func (s *captureSender) SendOTP(ctx context.Context, recipient, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, code)
	return nil
}

func (s *captureSender) SendShareLink(ctx context.Context, recipient, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, url)
	return nil
}

func (s *captureSender) sentURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.urls...)
}

func (s *captureSender) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return ""
	}
	return s.codes[len(s.codes)-1]
}

func newOtpService(repo *memoryOtpRepo, sender *captureSender, auditRepo *memoryAuditRepo) *service.OtpService {
	cfg := config.Config{
		OTPLength:       6,
		OTPTTL:          5 * time.Minute,
		OTPMaxAttempts:  5,
		OTPSendsPerHour: 100,
	}
	trail := audit.NewTrail(auditRepo, zap.NewNop())
	return service.NewOtpService(repo, trail, sender, rate.NewLimiter(), metrics.New(), cfg, zap.NewNop())
}

func TestOTPSendAndVerifyRoundTrip(t *testing.T) {
	repo := &memoryOtpRepo{}
	sender := &captureSender{}
	svc := newOtpService(repo, sender, &memoryAuditRepo{})
	ctx := context.Background()
	tc := testTenantCtx()

	require.NoError(t, svc.Send(ctx, tc, "decision-1", "Client@Example.com"))
	code := sender.lastCode()
	require.Len(t, code, 6)

	// Addresses are matched case-insensitively.
	require.NoError(t, svc.Verify(ctx, tc, "decision-1", "client@example.com", code))
}

func TestOTPCodeIsSingleUse(t *testing.T) {
	repo := &memoryOtpRepo{}
	sender := &captureSender{}
	svc := newOtpService(repo, sender, &memoryAuditRepo{})
	ctx := context.Background()
	tc := testTenantCtx()

	require.NoError(t, svc.Send(ctx, tc, "decision-1", "client@example.com"))
	code := sender.lastCode()

	require.NoError(t, svc.Verify(ctx, tc, "decision-1", "client@example.com", code))

	err := svc.Verify(ctx, tc, "decision-1", "client@example.com", code)
	require.Error(t, err, "a consumed code never verifies again")
	portalErr, ok := err.(*service.PortalError)
	require.True(t, ok)
	require.Equal(t, service.GenericLinkMessage, portalErr.Description)
}

func TestOTPLocksAfterAttemptCap(t *testing.T) {
	repo := &memoryOtpRepo{}
	sender := &captureSender{}
	auditRepo := &memoryAuditRepo{}
	svc := newOtpService(repo, sender, auditRepo)
	ctx := context.Background()
	tc := testTenantCtx()

	require.NoError(t, svc.Send(ctx, tc, "decision-1", "client@example.com"))
	code := sender.lastCode()

	for i := 0; i < 4; i++ {
		err := svc.Verify(ctx, tc, "decision-1", "client@example.com", "000000")
		require.Error(t, err)
		portalErr, ok := err.(*service.PortalError)
		require.True(t, ok)
		require.Equal(t, "incorrect_code", portalErr.Code)
	}

	// The fifth wrong attempt crosses the cap and locks the challenge.
	err := svc.Verify(ctx, tc, "decision-1", "client@example.com", "000000")
	require.Error(t, err)
	portalErr, ok := err.(*service.PortalError)
	require.True(t, ok)
	require.Equal(t, service.GenericLinkMessage, portalErr.Description)

	// The correct code arrives too late; the lock is permanent.
	err = svc.Verify(ctx, tc, "decision-1", "client@example.com", code)
	require.Error(t, err)
	portalErr, ok = err.(*service.PortalError)
	require.True(t, ok)
	require.Equal(t, service.GenericLinkMessage, portalErr.Description)

	require.Contains(t, auditRepo.actions(), domain.AuditOTPLocked)

	// Requesting a fresh code recovers the flow.
	require.NoError(t, svc.Send(ctx, tc, "decision-1", "client@example.com"))
	fresh := sender.lastCode()
	require.NoError(t, svc.Verify(ctx, tc, "decision-1", "client@example.com", fresh))
}

func TestOTPSendRateLimited(t *testing.T) {
	repo := &memoryOtpRepo{}
	sender := &captureSender{}
	svc := newOtpService(repo, sender, &memoryAuditRepo{})
	ctx := context.Background()
	tc := testTenantCtx()
	tc.Policy.OTPSendsPerHour = 2

	require.NoError(t, svc.Send(ctx, tc, "decision-1", "client@example.com"))
	require.NoError(t, svc.Send(ctx, tc, "decision-1", "client@example.com"))

	err := svc.Send(ctx, tc, "decision-1", "client@example.com")
	require.Error(t, err)
	portalErr, ok := err.(*service.PortalError)
	require.True(t, ok)
	require.Equal(t, "rate_limited", portalErr.Code)

	// A different resource has its own send allowance.
	require.NoError(t, svc.Send(ctx, tc, "decision-2", "client@example.com"))
}

func TestOTPVerifyWithoutChallenge(t *testing.T) {
	svc := newOtpService(&memoryOtpRepo{}, &captureSender{}, &memoryAuditRepo{})
	ctx := context.Background()

	err := svc.Verify(ctx, testTenantCtx(), "decision-1", "client@example.com", "123456")
	require.Error(t, err)
	portalErr, ok := err.(*service.PortalError)
	require.True(t, ok)
	require.Equal(t, service.GenericLinkMessage, portalErr.Description,
		"missing challenge and wrong state render identically")
}

func TestOTPLatestChallengeWins(t *testing.T) {
	repo := &memoryOtpRepo{}
	sender := &captureSender{}
	svc := newOtpService(repo, sender, &memoryAuditRepo{})
	ctx := context.Background()
	tc := testTenantCtx()

	require.NoError(t, svc.Send(ctx, tc, "decision-1", "client@example.com"))
	first := sender.lastCode()
	require.NoError(t, svc.Send(ctx, tc, "decision-1", "client@example.com"))
	second := sender.lastCode()

	if first == second {
		t.Skip("codes collided; nothing to distinguish")
	}

	// Only the newest open challenge is consulted.
	err := svc.Verify(ctx, tc, "decision-1", "client@example.com", first)
	require.Error(t, err)
	require.NoError(t, svc.Verify(ctx, tc, "decision-1", "client@example.com", second))
}
