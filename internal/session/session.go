// Package session issues and verifies the signed claims used around the link
// lifecycle: staff sessions for management endpoints and the short-lived
// "otp verified" claim that orders VerifyOtp before Consume on gated links.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Claim kinds carried in the token.
const (
	KindStaff       = "staff"
	KindOTPVerified = "otp_verified"
)

// Claims extends the standard JWT claim set with portal-specific fields.
type Claims struct {
	jwt.Claims
	Kind       string `json:"kind"`
	TenantID   int64  `json:"tenant_id"`
	ActorID    string `json:"actor_id,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Issuer signs and verifies portal session tokens with a shared HS256 secret.
type Issuer struct {
	secret   []byte
	staffTTL time.Duration
	otpTTL   time.Duration
}

func NewIssuer(secret string, staffTTL, otpTTL time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), staffTTL: staffTTL, otpTTL: otpTTL}
}

// IssueStaff mints a staff session token for management endpoints.
func (i *Issuer) IssueStaff(tenantID int64, actorID string, now time.Time) (string, error) {
	return i.sign(Claims{
		Claims: jwt.Claims{
			Subject:  actorID,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(i.staffTTL)),
		},
		Kind:     KindStaff,
		TenantID: tenantID,
		ActorID:  actorID,
	})
}

// IssueOTPVerified mints the short-lived claim a client holds after passing
// the OTP gate for one resource. Consume on a requires_otp link demands it.
func (i *Issuer) IssueOTPVerified(tenantID int64, resourceID, email string, now time.Time) (string, error) {
	return i.sign(Claims{
		Claims: jwt.Claims{
			Subject:  email,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(i.otpTTL)),
		},
		Kind:       KindOTPVerified,
		TenantID:   tenantID,
		ResourceID: resourceID,
		Email:      email,
	})
}

func (i *Issuer) sign(cl Claims) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: i.secret}, nil)
	if err != nil {
		return "", fmt.Errorf("create signer: %w", err)
	}
	raw, err := jwt.Signed(signer).Claims(cl).Serialize()
	if err != nil {
		return "", fmt.Errorf("sign claims: %w", err)
	}
	return raw, nil
}

// Verify parses and validates a token, enforcing the expected claim kind and
// tenant. tenantID of 0 skips the tenant check.
func (i *Issuer) Verify(raw, kind string, tenantID int64, now time.Time) (*Claims, error) {
	tok, err := jwt.ParseSigned(strings.TrimSpace(raw), []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	var cl Claims
	if err := tok.Claims(i.secret, &cl); err != nil {
		return nil, fmt.Errorf("verify signature: %w", err)
	}
	if err := cl.Validate(jwt.Expected{Time: now}); err != nil {
		return nil, fmt.Errorf("validate claims: %w", err)
	}
	if cl.Kind != kind {
		return nil, fmt.Errorf("unexpected claim kind %q", cl.Kind)
	}
	if tenantID != 0 && cl.TenantID != tenantID {
		return nil, fmt.Errorf("claim tenant mismatch")
	}
	return &cl, nil
}
