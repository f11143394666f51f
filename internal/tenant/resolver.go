package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/archject/portal-access/internal/domain"
	"github.com/archject/portal-access/internal/repository"
)

// Context stores resolved studio metadata used throughout the request
// lifecycle.
type Context struct {
	Domain   domain.Domain
	Studio   domain.Studio
	Branding domain.Branding
	Policy   domain.PortalPolicy
}

// Resolver loads studio metadata from repositories.
type Resolver struct {
	repo repository.TenantRepository
}

// NewResolver creates a studio resolver.
func NewResolver(repo repository.TenantRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve loads studio information from the request host header.
func (r *Resolver) Resolve(ctx context.Context, host string) (*Context, error) {
	cleaned := strings.ToLower(strings.TrimSpace(host))
	if cleaned == "" {
		zap.L().Warn("tenant resolver received empty host")
		return nil, fmt.Errorf("resolve studio: empty host")
	}

	domainRow, err := r.repo.GetDomainByHost(ctx, cleaned)
	if err != nil {
		zap.L().Error("failed to resolve domain", zap.String("host", cleaned), zap.Error(err))
		return nil, fmt.Errorf("resolve domain: %w", err)
	}

	studio, err := r.repo.GetStudio(ctx, domainRow.TenantID)
	if err != nil {
		zap.L().Error("failed to resolve studio", zap.String("host", cleaned), zap.Int64("tenant_id", domainRow.TenantID), zap.Error(err))
		return nil, fmt.Errorf("resolve studio: %w", err)
	}

	return r.assemble(ctx, domainRow, studio)
}

// ResolveBySlug loads studio information from an explicit tenant slug,
// used when requests arrive through a shared host.
func (r *Resolver) ResolveBySlug(ctx context.Context, slug string) (*Context, error) {
	cleaned := strings.ToLower(strings.TrimSpace(slug))
	if cleaned == "" {
		return nil, fmt.Errorf("resolve studio: empty slug")
	}

	studio, err := r.repo.GetStudioBySlug(ctx, cleaned)
	if err != nil {
		zap.L().Error("failed to resolve studio by slug", zap.String("slug", cleaned), zap.Error(err))
		return nil, fmt.Errorf("resolve studio: %w", err)
	}

	return r.assemble(ctx, domain.Domain{TenantID: studio.ID}, studio)
}

func (r *Resolver) assemble(ctx context.Context, domainRow domain.Domain, studio domain.Studio) (*Context, error) {
	// Branding and policy rows are optional; a studio without them falls back
	// to service-level defaults.
	branding, err := r.repo.GetBranding(ctx, studio.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		zap.L().Error("failed to resolve branding", zap.Int64("tenant_id", studio.ID), zap.Error(err))
		return nil, fmt.Errorf("resolve branding: %w", err)
	}

	policy, err := r.repo.GetPortalPolicy(ctx, studio.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		zap.L().Error("failed to load portal policy", zap.Int64("tenant_id", studio.ID), zap.Error(err))
		return nil, fmt.Errorf("resolve portal policy: %w", err)
	}

	zap.L().Debug("studio context resolved", zap.String("slug", studio.Slug), zap.Int64("tenant_id", studio.ID))

	return &Context{
		Domain:   domainRow,
		Studio:   studio,
		Branding: branding,
		Policy:   policy,
	}, nil
}
