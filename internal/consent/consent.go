// Package consent manages per-subject cookie/tracking opt-ins and their
// change-only history trail.
package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/archject/portal-access/internal/audit"
	"github.com/archject/portal-access/internal/domain"
	"github.com/archject/portal-access/internal/repository"
)

// Manager loads and mutates consent records. The necessary category is forced
// on in every write; history grows only when a category actually flips.
type Manager struct {
	repo   repository.ConsentRepository
	trail  *audit.Trail
	logger *zap.Logger
}

func NewManager(repo repository.ConsentRepository, trail *audit.Trail, logger *zap.Logger) *Manager {
	return &Manager{repo: repo, trail: trail, logger: logger}
}

// Get returns the subject's record, initializing defaults on first encounter
// without persisting them (a record exists once the subject first saves).
func (m *Manager) Get(ctx context.Context, tenantID int64, subjectID string) (domain.ConsentRecord, error) {
	rec, err := m.repo.Get(ctx, tenantID, subjectID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.ConsentRecord{
			TenantID:  tenantID,
			SubjectID: subjectID,
			Consent:   domain.DefaultConsent(),
			History:   nil,
		}, nil
	}
	if err != nil {
		return domain.ConsentRecord{}, fmt.Errorf("load consent: %w", err)
	}
	return rec, nil
}

// Save applies the requested state, appending one history entry per category
// that changed value. A save that changes nothing writes nothing.
func (m *Manager) Save(ctx context.Context, tenantID int64, subjectID string, next domain.ConsentState) (domain.ConsentRecord, error) {
	rec, err := m.Get(ctx, tenantID, subjectID)
	if err != nil {
		return domain.ConsentRecord{}, err
	}

	next.Necessary = true
	now := time.Now().UTC()
	changes := DiffToHistory(rec.Consent, next, now)
	if len(changes) == 0 {
		return rec, nil
	}

	rec.Consent = next
	rec.History = append(rec.History, changes...)
	rec.UpdatedAt = now
	if err := m.repo.Save(ctx, rec); err != nil {
		return domain.ConsentRecord{}, fmt.Errorf("save consent: %w", err)
	}

	for _, ch := range changes {
		m.trail.Record(ctx, tenantID, subjectID, domain.AuditConsentChanged, map[string]any{
			"category": string(ch.Category),
			"action":   string(ch.Action),
		})
	}
	return rec, nil
}

// AcceptAll opts the subject into every category.
func (m *Manager) AcceptAll(ctx context.Context, tenantID int64, subjectID string) (domain.ConsentRecord, error) {
	return m.Save(ctx, tenantID, subjectID, domain.ConsentState{
		Necessary:   true,
		Analytics:   true,
		Marketing:   true,
		Preferences: true,
	})
}

// Reset returns the subject to defaults: everything off except necessary.
func (m *Manager) Reset(ctx context.Context, tenantID int64, subjectID string) (domain.ConsentRecord, error) {
	return m.Save(ctx, tenantID, subjectID, domain.DefaultConsent())
}

// DiffToHistory compares each mutable category pairwise and emits one entry
// per category whose value differs. Unchanged categories emit nothing, so the
// trail stays proportional to actual changes.
func DiffToHistory(before, after domain.ConsentState, now time.Time) []domain.ChangeHistoryEntry {
	var entries []domain.ChangeHistoryEntry
	pairs := []struct {
		category domain.ConsentCategory
		before   bool
		after    bool
	}{
		{domain.ConsentAnalytics, before.Analytics, after.Analytics},
		{domain.ConsentMarketing, before.Marketing, after.Marketing},
		{domain.ConsentPreferences, before.Preferences, after.Preferences},
	}
	for _, p := range pairs {
		if p.before == p.after {
			continue
		}
		action := domain.ConsentOptOut
		if p.after {
			action = domain.ConsentOptIn
		}
		entries = append(entries, domain.ChangeHistoryEntry{
			Timestamp: now,
			Category:  p.category,
			Action:    action,
		})
	}
	return entries
}
