package tenant_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/archject/portal-access/internal/domain"
	"github.com/archject/portal-access/internal/tenant"
)

func TestResolverResolve(t *testing.T) {
	repo := &mockTenantRepo{}
	resolver := tenant.NewResolver(repo)

	ctx, err := resolver.Resolve(context.Background(), "portal.northstudio.test")
	require.NoError(t, err)
	require.Equal(t, int64(1), ctx.Studio.ID)
	require.Equal(t, "North Studio", ctx.Studio.Name)
	require.Equal(t, "portal.northstudio.test", ctx.Domain.Host)
	require.Equal(t, 6, ctx.Policy.OTPLength)
	require.Equal(t, 5*time.Minute, ctx.Policy.OTPTTL)
}

func TestResolverResolveBySlug(t *testing.T) {
	repo := &mockTenantRepo{}
	resolver := tenant.NewResolver(repo)

	ctx, err := resolver.ResolveBySlug(context.Background(), "North-Studio ")
	require.NoError(t, err)
	require.Equal(t, int64(1), ctx.Studio.ID)
	require.Empty(t, ctx.Domain.Host)
}

func TestResolverRejectsEmptyHost(t *testing.T) {
	resolver := tenant.NewResolver(&mockTenantRepo{})

	_, err := resolver.Resolve(context.Background(), "  ")
	require.Error(t, err)
}

type mockTenantRepo struct{}

func (m *mockTenantRepo) GetDomainByHost(ctx context.Context, host string) (domain.Domain, error) {
	return domain.Domain{ID: 1, Host: host, TenantID: 1}, nil
}

func (m *mockTenantRepo) GetStudio(ctx context.Context, tenantID int64) (domain.Studio, error) {
	return domain.Studio{ID: tenantID, Name: "North Studio", Slug: "north-studio"}, nil
}

func (m *mockTenantRepo) GetStudioBySlug(ctx context.Context, slug string) (domain.Studio, error) {
	return domain.Studio{ID: 1, Name: "North Studio", Slug: slug}, nil
}

func (m *mockTenantRepo) GetBranding(ctx context.Context, tenantID int64) (domain.Branding, error) {
	return domain.Branding{TenantID: tenantID, LogoURL: strPtr("https://cdn/logo.png")}, nil
}

func (m *mockTenantRepo) GetPortalPolicy(ctx context.Context, tenantID int64) (domain.PortalPolicy, error) {
	return domain.PortalPolicy{
		TenantID:        tenantID,
		DefaultLinkTTL:  30 * 24 * time.Hour,
		OTPLength:       6,
		OTPTTL:          5 * time.Minute,
		OTPMaxAttempts:  5,
		OTPSendsPerHour: 5,
	}, nil
}

func strPtr(s string) *string {
	return &s
}
