package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/archject/portal-access/internal/session"
)

func newTestIssuer() *session.Issuer {
	return session.NewIssuer("test-secret-test-secret-test-secret", time.Hour, 15*time.Minute)
}

func TestStaffSessionRoundTrip(t *testing.T) {
	issuer := newTestIssuer()
	now := time.Now().UTC()

	raw, err := issuer.IssueStaff(7, "user-42", now)
	require.NoError(t, err)

	claims, err := issuer.Verify(raw, session.KindStaff, 7, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(7), claims.TenantID)
	require.Equal(t, "user-42", claims.ActorID)
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	issuer := newTestIssuer()
	now := time.Now().UTC()

	raw, err := issuer.IssueOTPVerified(7, "decision-1", "client@example.com", now)
	require.NoError(t, err)

	_, err = issuer.Verify(raw, session.KindStaff, 7, now)
	require.Error(t, err)

	claims, err := issuer.Verify(raw, session.KindOTPVerified, 7, now)
	require.NoError(t, err)
	require.Equal(t, "decision-1", claims.ResourceID)
	require.Equal(t, "client@example.com", claims.Email)
}

func TestVerifyRejectsExpiredAndForeignTenant(t *testing.T) {
	issuer := newTestIssuer()
	now := time.Now().UTC()

	raw, err := issuer.IssueOTPVerified(7, "decision-1", "client@example.com", now)
	require.NoError(t, err)

	_, err = issuer.Verify(raw, session.KindOTPVerified, 7, now.Add(16*time.Minute))
	require.Error(t, err, "expired claim must fail")

	_, err = issuer.Verify(raw, session.KindOTPVerified, 8, now)
	require.Error(t, err, "foreign tenant must fail")
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	issuer := newTestIssuer()
	other := session.NewIssuer("another-secret-another-secret-abc", time.Hour, time.Hour)
	now := time.Now().UTC()

	raw, err := other.IssueStaff(7, "user-42", now)
	require.NoError(t, err)

	_, err = issuer.Verify(raw, session.KindStaff, 7, now)
	require.Error(t, err)
}
