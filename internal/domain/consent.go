package domain

import "time"

// ConsentCategory names one user-controllable tracking category.
type ConsentCategory string

const (
	ConsentAnalytics   ConsentCategory = "analytics"
	ConsentMarketing   ConsentCategory = "marketing"
	ConsentPreferences ConsentCategory = "preferences"
)

// ConsentState holds a subject's cookie/tracking opt-ins. Necessary is fixed
// true and not user-editable.
type ConsentState struct {
	Necessary   bool `json:"necessary"`
	Analytics   bool `json:"analytics"`
	Marketing   bool `json:"marketing"`
	Preferences bool `json:"preferences"`
}

// DefaultConsent is the state assigned on first encounter.
func DefaultConsent() ConsentState {
	return ConsentState{Necessary: true}
}

// ChangeHistoryEntry records one category flipping value. Entries are
// append-only; no-op saves produce none.
type ChangeHistoryEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Category  ConsentCategory `json:"category"`
	Action    ConsentAction   `json:"action"`
}

// ConsentAction is the direction of a consent change.
type ConsentAction string

const (
	ConsentOptIn  ConsentAction = "opt-in"
	ConsentOptOut ConsentAction = "opt-out"
)

// ConsentRecord is the persisted blob for one subject: current state plus the
// full change history, stored under a single namespaced key so a future
// server-sync endpoint can return the identical shape.
type ConsentRecord struct {
	TenantID  int64                `json:"-"`
	SubjectID string               `json:"-"`
	Consent   ConsentState         `json:"consent"`
	History   []ChangeHistoryEntry `json:"history"`
	UpdatedAt time.Time            `json:"-"`
}
