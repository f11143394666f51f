package domain

import "time"

// Domain represents the mapping of a portal host name to a studio.
type Domain struct {
	ID        int64
	Host      string
	TenantID  int64
	IsPrimary bool
	Verified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Studio represents a logical tenant: one architecture/design practice.
type Studio struct {
	ID        int64
	Name      string
	Slug      string
	Timezone  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Branding holds white-label information shown on a studio's client portal.
type Branding struct {
	TenantID       int64
	LogoURL        *string
	PrimaryColor   *string
	SecondaryColor *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PortalPolicy controls share-link and OTP behavior per studio.
type PortalPolicy struct {
	TenantID        int64
	DefaultLinkTTL  time.Duration
	OTPLength       int
	OTPTTL          time.Duration
	OTPMaxAttempts  int
	OTPSendsPerHour int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
