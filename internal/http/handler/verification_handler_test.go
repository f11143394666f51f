package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/archject/portal-access/internal/audit"
	"github.com/archject/portal-access/internal/domain"
	httpHandler "github.com/archject/portal-access/internal/http/handler"
	"github.com/archject/portal-access/internal/metrics"
	"github.com/archject/portal-access/internal/rate"
	"github.com/archject/portal-access/internal/repository"
	"github.com/archject/portal-access/internal/service"
	"github.com/archject/portal-access/internal/session"
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

func newVerificationHandler(repo *memoryOtpRepo, sender *otpFlowSender) *httpHandler.VerificationHandler {
	cfg := testConfig()
	cfg.OTPLength = 6
	cfg.OTPTTL = 5 * time.Minute
	cfg.OTPMaxAttempts = 5
	cfg.OTPSendsPerHour = 100
	trail := audit.NewTrail(&memoryAuditRepo{}, zap.NewNop())
	svc := service.NewOtpService(repo, trail, sender, rate.NewLimiter(), metrics.New(), cfg, zap.NewNop())
	sessions := session.NewIssuer(cfg.SessionSigningSecret, time.Hour, 10*time.Minute)
	return httpHandler.NewVerificationHandler(svc, sessions)
}

func TestVerifyOTPHandlerRejectsWrongCode(t *testing.T) {
	sender := &otpFlowSender{}
	h := newVerificationHandler(&memoryOtpRepo{}, sender)

	body, _ := json.Marshal(map[string]string{"resource_id": "decision-1", "email": "client@example.com"})
	w := doRequest(h.SendOTP, http.MethodPost, "/verification/send-otp", body, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	body, _ = json.Marshal(map[string]string{"resource_id": "decision-1", "email": "client@example.com", "code": "000000"})
	w = doRequest(h.VerifyOTP, http.MethodPost, "/verification/verify-otp", body, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "incorrect_code")
	require.NotContains(t, w.Body.String(), "otp_session")
}

func TestSendOTPHandlerValidatesInput(t *testing.T) {
	h := newVerificationHandler(&memoryOtpRepo{}, &otpFlowSender{})

	body, _ := json.Marshal(map[string]string{"resource_id": "decision-1"})
	w := doRequest(h.SendOTP, http.MethodPost, "/verification/send-otp", body, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid_request")
}
